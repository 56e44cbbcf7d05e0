package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/steppath/internal/guard"
	"github.com/hitoshi/steppath/internal/metrics"
	"github.com/hitoshi/steppath/internal/middleware"
	"github.com/hitoshi/steppath/internal/oauth"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 認証
	Coordinator AuthCoordinatorInterface
	Navigator   *guard.Navigator

	// OAuthリレー
	BrowserRelay *oauth.BrowserRelay
	TokenRelay   *oauth.TokenRelay

	// 監視
	Collector metrics.MetricsCollector
	Gatherer  prometheus.Gatherer

	// DBヘルスチェック
	Pinger Pinger

	Logger *slog.Logger
}

// Pinger はヘルスチェックのDB疎通確認に必要なインターフェース。
type Pinger interface {
	Ping() error
}

// NewRouter は全ブリッジエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Identity → RateLimit(General)
//
// /healthと/metricsはレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(logger))

	authHandler := NewAuthHandler(deps.Coordinator, deps.Collector, logger)
	relayHandler := NewOAuthRelayHandler(deps.BrowserRelay, deps.TokenRelay, logger)
	profileHandler := NewProfileHandler(deps.Coordinator, logger)
	routeHandler := NewRouteHandler(deps.Coordinator, deps.Navigator, deps.Collector, logger)

	// --- 監視ルート（レート制限の外） ---
	r.Get("/health", newHealthHandler(deps.Pinger))
	r.Handle("/metrics", metrics.Handler(deps.Gatherer))

	// --- ブリッジルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewIdentityMiddleware(deps.Coordinator))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/auth", func(r chi.Router) {
			// メールアドレス認証（サインイン試行専用のレート制限を追加）
			r.With(deps.RateLimiter.SignInMiddleware()).Post("/signin", authHandler.SignIn)
			r.With(deps.RateLimiter.SignInMiddleware()).Post("/signup", authHandler.SignUp)
			r.Post("/signout", authHandler.SignOut)

			// プロバイダー認証
			r.With(deps.RateLimiter.SignInMiddleware()).Post("/google", authHandler.SignInWithGoogle)
			r.With(deps.RateLimiter.SignInMiddleware()).Post("/facebook", authHandler.SignInWithFacebook)

			// OAuthリレー
			r.Post("/oauth/callback", relayHandler.Callback)
			r.Post("/oauth/cancel", relayHandler.CancelBrowser)
			r.Get("/oauth/pending", relayHandler.Pending)
			r.Post("/facebook/token", relayHandler.DeliverSDKToken)
			r.Post("/facebook/failure", relayHandler.DeliverSDKFailure)
			r.Post("/facebook/cancel", relayHandler.CancelSDK)

			// 状態と遷移判定
			r.Get("/state", authHandler.State)
			r.Get("/route", routeHandler.Decide)
		})

		r.Route("/profile", func(r chi.Router) {
			r.Get("/", profileHandler.Get)
			r.Put("/", profileHandler.Update)
			r.Post("/refresh", profileHandler.Refresh)
		})
	})

	return r
}

// newHealthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
func newHealthHandler(pinger Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		code := http.StatusOK
		if pinger != nil {
			if err := pinger.Ping(); err != nil {
				status = "unavailable"
				code = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}
