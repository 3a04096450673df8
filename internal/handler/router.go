package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/ignitecall/internal/cookie"
	"github.com/hitoshi/ignitecall/internal/metrics"
	"github.com/hitoshi/ignitecall/internal/middleware"
	"github.com/hitoshi/ignitecall/internal/onboarding"
)

// HealthChecker はヘルスチェックでDB疎通を確認するためのインターフェース。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger         *slog.Logger
	Metrics        metrics.MetricsCollector
	MetricsHandler http.Handler
	HealthChecker  HealthChecker

	// ミドルウェア依存
	SessionLoader      middleware.SessionLoader
	CORSAllowedOrigins []string
	RateLimiter        *middleware.RateLimiter
	Cookie             cookie.Options

	// 認証
	AuthService   AuthServiceInterface
	SessionMaxAge int

	// ユーザー登録とオンボーディング画面
	UserService UserRegistrar
	Renderer    *onboarding.Renderer
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Recovery → SecurityHeaders → CORS → CookieStore → Session → Logging → RateLimit(General)
//
// フォームを受け付ける画面とサインアウトにはCSRFミドルウェアを追加する。
// POST /users はJSONクライアント向けのためCSRFトークンを要求しない。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.Cookie.Secure))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))
	r.Use(middleware.NewCookieStoreMiddleware(deps.Cookie))
	r.Use(middleware.NewSessionMiddleware(deps.SessionLoader))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(deps.RateLimiter.GeneralMiddleware())

	csrf := middleware.NewCSRFMiddleware(middleware.CSRFConfig{
		CookieSecure: deps.Cookie.Secure,
		CookieDomain: deps.Cookie.Domain,
	})
	registrationLimit := deps.RateLimiter.RegistrationMiddleware()

	userHandler := NewUserHandler(deps.UserService, deps.Cookie)
	authHandler := NewAuthHandler(deps.AuthService, AuthHandlerConfig{
		Cookie:        deps.Cookie,
		SessionMaxAge: deps.SessionMaxAge,
	})
	pages := NewOnboardingHandler(deps.Renderer, deps.UserService, deps.Cookie)

	// --- 運用 ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- ユーザー登録API ---
	// メソッド判定はハンドラー内で行い、POST以外は空ボディの405を返す
	r.With(registrationLimit).HandleFunc("/users", userHandler.CreateUser)
	r.With(registrationLimit).HandleFunc("/api/users", userHandler.CreateUser)

	// --- 認証 ---
	r.Route("/api/auth", func(r chi.Router) {
		r.Get("/signin/google", authHandler.SignIn)
		r.Get("/callback/google", authHandler.Callback)
		r.Get("/session", authHandler.Session)
		r.With(csrf).Post("/signout", authHandler.SignOut)
	})

	// --- オンボーディング画面 ---
	r.Group(func(r chi.Router) {
		r.Use(csrf)

		r.Get(onboarding.ClaimUsername.Path(), pages.ClaimUsernameForm)
		r.Post(onboarding.ClaimUsername.Path(), pages.ClaimUsername)
		r.Get(onboarding.Register.Path(), pages.RegisterForm)
		r.With(registrationLimit).Post(onboarding.Register.Path(), pages.Register)
		r.Get(onboarding.ConnectCalendar.Path(), pages.ConnectCalendar)
	})

	return r
}

// healthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.PingContext(r.Context()); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
