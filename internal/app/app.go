package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/steppath/internal/auth"
	"github.com/hitoshi/steppath/internal/backend"
	"github.com/hitoshi/steppath/internal/config"
	"github.com/hitoshi/steppath/internal/database"
	"github.com/hitoshi/steppath/internal/guard"
	"github.com/hitoshi/steppath/internal/handler"
	"github.com/hitoshi/steppath/internal/logger"
	"github.com/hitoshi/steppath/internal/metrics"
	"github.com/hitoshi/steppath/internal/middleware"
	"github.com/hitoshi/steppath/internal/oauth"
	"github.com/hitoshi/steppath/internal/profile"
	"github.com/hitoshi/steppath/internal/repository"
	"github.com/hitoshi/steppath/internal/security"
	"github.com/hitoshi/steppath/internal/session"
)

// authHTTPTimeout は認証バックエンドへのHTTPリクエストのタイムアウト。
const authHTTPTimeout = 15 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("platform", string(cfg.Platform)),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はブリッジサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、ループバックHTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリとセキュリティサービスの初期化
	profileRepo := repository.NewPostgresProfileRepo(db)
	endpointGuard := security.NewEndpointGuard()
	sanitizer := security.NewTextSanitizer()

	// 3. 認証バックエンドクライアントの構築
	// グローバルIPの認証エンドポイントにはSSRF対策済みクライアントを使う。
	// ローカル開発ではエンドポイントがループバックになるため通常クライアントに切り替える。
	httpClient := endpointGuard.NewSafeClient(authHTTPTimeout)
	if err := endpointGuard.ValidateEndpoint(cfg.AuthBaseURL); err != nil {
		slog.Warn("auth endpoint is outside the egress allowlist, using unrestricted client",
			slog.String("error", err.Error()))
		httpClient = &http.Client{Timeout: authHTTPTimeout}
	}
	client := backend.NewGoTrueClient(backend.GoTrueConfig{
		BaseURL: cfg.AuthBaseURL,
		APIKey:  cfg.AuthAPIKey,
	}, httpClient)

	// 4. セッションストアとプロファイルサービスの初期化
	tokens := backend.NewFileTokenStore(cfg.SessionFile)
	store := session.NewStore(client, tokens, cfg.AuthRefreshMargin, slog.Default())
	bootstrapper := profile.NewBootstrapper(profileRepo, sanitizer, slog.Default())

	// 5. プロバイダーハンドシェイクの構築
	handshake := oauth.NewHandshake(oauth.HandshakeConfig{
		Platform:       cfg.Platform,
		DeepLinkScheme: cfg.DeepLinkScheme,
		WebOrigin:      cfg.WebOrigin,
		FacebookAppID:  cfg.FacebookAppID,
	}, client, store, bootstrapper, slog.Default())

	// 6. コーディネーターの起動
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coordinator := auth.NewCoordinator(store, bootstrapper, handshake, slog.Default())
	coordinator.Start(ctx)
	go store.StartAutoRefresh(ctx)

	// 7. 遷移判定とメトリクスの初期化
	// 実際の画面遷移はシェルがブリッジ応答を受けて行うため、Routerはログ記録のみ。
	navigator := guard.NewNavigator(&loggingRouter{logger: slog.Default()}, slog.Default())

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 8. ルーターの構築（req/min -> req/sec に変換）
	rlCfg := middleware.DefaultRateLimiterConfig()
	rlCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rlCfg.GeneralBurst = cfg.RateLimitGeneral
	rlCfg.SignInRate = rate.Limit(float64(cfg.RateLimitSignIn) / 60.0)
	rlCfg.SignInBurst = cfg.RateLimitSignIn
	rateLimiter := middleware.NewRateLimiter(rlCfg)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Coordinator:       coordinator,
		Navigator:         navigator,
		BrowserRelay:      handshake.Browser,
		TokenRelay:        handshake.Tokens,
		Collector:         collector,
		Gatherer:          registry,
		Pinger:            db,
		Logger:            slog.Default(),
	})

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("bridge server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down bridge server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("bridge server stopped gracefully")
	return nil
}

// loggingRouter は遷移指示を記録するRouter実装。
// ネイティブシェルはGET /auth/routeの応答を受けて自身で画面を差し替えるため、
// コア側では判定結果のログのみを残す。
type loggingRouter struct {
	logger *slog.Logger
}

func (r *loggingRouter) Replace(path string) error {
	r.logger.Info("route decision issued", slog.String("path", path))
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
