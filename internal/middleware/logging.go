package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// responseMeter はhttp.ResponseWriterをラップし、ステータスコードと
// 書き込まれたボディのバイト数を記録する。
type responseMeter struct {
	http.ResponseWriter
	status  int
	bytes   int
	started bool
}

func (m *responseMeter) WriteHeader(code int) {
	if !m.started {
		m.status = code
		m.started = true
	}
	m.ResponseWriter.WriteHeader(code)
}

// Write はWriteHeader未呼び出しの場合に暗黙の200を記録する。
func (m *responseMeter) Write(b []byte) (int, error) {
	if !m.started {
		m.status = http.StatusOK
		m.started = true
	}
	n, err := m.ResponseWriter.Write(b)
	m.bytes += n
	return n, err
}

// NewLoggingMiddleware はリクエストごとにJSON構造化ログを1行出力する
// ミドルウェアを返す。method、path、status、bytes、duration_msに加え、
// 認証済みリクエストではuser_idを含む。ログレベルはステータスコードに
// 応じて5xxはError、4xxはWarn、それ以外はInfoとなる。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			meter := &responseMeter{
				ResponseWriter: w,
				status:         http.StatusOK,
			}

			next.ServeHTTP(meter, r)

			durationMs := float64(time.Since(start).Nanoseconds()) / float64(time.Millisecond)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", meter.status),
				slog.Int("bytes", meter.bytes),
				slog.Float64("duration_ms", durationMs),
			}
			if userID, err := UserIDFromContext(r.Context()); err == nil && userID != "" {
				attrs = append(attrs, slog.String("user_id", userID))
			}

			level := slog.LevelInfo
			switch {
			case meter.status >= 500:
				level = slog.LevelError
			case meter.status >= 400:
				level = slog.LevelWarn
			}

			logger.LogAttrs(r.Context(), level, "http request", attrs...)
		})
	}
}
