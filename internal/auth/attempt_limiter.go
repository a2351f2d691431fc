package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// emailLimiter はメールアドレスごとのレートリミッターとアクセス時刻を保持する。
type emailLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// attemptLimiter はメールアドレスごとのサインイン試行回数を制限する。
// ウィンドウあたりlimit回のトークンバケットで、
// 成功時はResetで即座に満タンへ戻す。
type attemptLimiter struct {
	rate  rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*emailLimiter
}

// limiterTTL はアクセスのないエントリを破棄するまでの時間。
const limiterTTL = 30 * time.Minute

func newAttemptLimiter(limit int, window time.Duration) *attemptLimiter {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &attemptLimiter{
		rate:     rate.Limit(float64(limit) / window.Seconds()),
		burst:    limit,
		limiters: make(map[string]*emailLimiter),
	}
}

// Allow は指定メールアドレスの試行を1回消費し、許可されるかを返す。
func (a *attemptLimiter) Allow(email string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	a.pruneLocked(now)

	entry, ok := a.limiters[email]
	if !ok {
		entry = &emailLimiter{limiter: rate.NewLimiter(a.rate, a.burst)}
		a.limiters[email] = entry
	}
	entry.lastAccess = now
	return entry.limiter.Allow()
}

// Reset はサインイン成功時にカウンタを破棄する。
func (a *attemptLimiter) Reset(email string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.limiters, email)
}

// pruneLocked は長時間アクセスのないエントリを削除する。
// 呼び出し側がmuを保持していること。
func (a *attemptLimiter) pruneLocked(now time.Time) {
	for email, entry := range a.limiters {
		if now.Sub(entry.lastAccess) > limiterTTL {
			delete(a.limiters, email)
		}
	}
}
