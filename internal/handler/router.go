package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/movaschool/movaschool/internal/middleware"
)

// HealthChecker はDB疎通確認のインターフェース。*sql.DBがそのまま満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	HealthChecker     HealthChecker
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig

	// 認証
	AuthService    AuthServiceInterface
	AuthConfig     AuthHandlerConfig
	LoginMetrics   LoginMetrics
	ProfileService ProfileServiceInterface
	Provisioner    ProfileProvisioner

	// 記事
	PostService PostServiceInterface

	// レッスン申込
	LessonService LessonServiceInterface

	// チャット
	ChatService ChatServiceInterface

	// 検索
	SearchService SearchServiceInterface

	// アバターアップロードの上限（バイト）
	MaxUploadBytes int64
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → (Session → RateLimit(General) → CSRF)
//
// 認証ルートと公開コンテンツはセッションミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.Provisioner, deps.LoginMetrics, deps.AuthConfig)
	profileHandler := NewProfileHandler(deps.ProfileService, deps.MaxUploadBytes)
	postHandler := NewPostHandler(deps.PostService, deps.ProfileService)
	appHandler := NewApplicationHandler(deps.LessonService, deps.ProfileService)
	msgHandler := NewMessageHandler(deps.ChatService, deps.ProfileService)
	searchHandler := NewSearchHandler(deps.SearchService)

	// --- 認証不要のルート ---

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if deps.HealthChecker != nil {
			if err := deps.HealthChecker.PingContext(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	// 認証ルート（ログイン・登録には専用レート制限を適用）
	r.Route("/api/auth", func(r chi.Router) {
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/register", authHandler.Register)
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// 公開コンテンツ
	r.Get("/api/posts", postHandler.ListPosts)
	r.Get("/api/posts/{slug}", postHandler.GetPost)
	r.Get("/api/search", searchHandler.Search)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		// プロフィール
		r.Route("/api/profile", func(r chi.Router) {
			r.Get("/", profileHandler.GetProfile)
			r.Patch("/", profileHandler.UpdateProfile)
			r.Post("/avatar", profileHandler.UpdateAvatar)
		})

		// 記事管理（作成・更新・削除）
		r.Post("/api/posts", postHandler.CreatePost)
		r.Patch("/api/posts/{slug}", postHandler.UpdatePost)
		r.Delete("/api/posts/{slug}", postHandler.DeletePost)

		// レッスン申込
		r.Route("/api/applications", func(r chi.Router) {
			r.Post("/", appHandler.Apply)
			r.Get("/", appHandler.ListMine)
			r.Get("/incoming", appHandler.ListIncoming)

			r.Route("/{id}", func(r chi.Router) {
				r.Post("/approve", appHandler.Approve)
				r.Post("/decline", appHandler.Decline)
			})
		})

		// チャット
		r.Route("/api/messages", func(r chi.Router) {
			r.Post("/", msgHandler.Send)
			r.Get("/{userID}", msgHandler.Conversation)
		})
	})

	return r
}
