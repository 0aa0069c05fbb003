// Package app はコマンドの解析と依存関係のワイヤリングを行い、各起動モードを実行する。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/newsdispatch/internal/config"
	"github.com/hitoshi/newsdispatch/internal/database"
	"github.com/hitoshi/newsdispatch/internal/handler"
	"github.com/hitoshi/newsdispatch/internal/logger"
	"github.com/hitoshi/newsdispatch/internal/metrics"
	"github.com/hitoshi/newsdispatch/internal/middleware"
	"github.com/hitoshi/newsdispatch/internal/worker/cleanup"
	"github.com/hitoshi/newsdispatch/internal/worker/retry"
)

// dbReadyTimeout は起動時にDBへの接続を待つ上限時間。
var dbReadyTimeout = 30 * time.Second

// shutdownTimeout はグレースフルシャットダウンで処理中のリクエストとディスパッチを待つ上限時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数でConfigを読み込む。
func Init(w io.Writer) (*config.Config, error) {
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。argsにはos.Args[1:]を渡す。
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
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandPing:
		return runPing(cfg)
	default:
		return runServe(cfg)
	}
}

// shutdownContext はSIGINTまたはSIGTERMでキャンセルされるコンテキストを返す。
func shutdownContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// openDatabase はDB接続を開き、接続できるまで待つ。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{})
	if err != nil {
		return nil, err
	}

	readyCtx, cancel := context.WithTimeout(ctx, dbReadyTimeout)
	defer cancel()
	if err := database.WaitReady(readyCtx, db, time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return db, nil
}

// newMetrics はプロセスとGoランタイムのコレクターを含むレジストリを生成する。
func newMetrics() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// runServe はWebhook受信サーバーを起動する。
// シグナル受信時は新規リクエストの受付を止め、処理中のディスパッチの完了を待ってから終了する。
func runServe(cfg *config.Config) error {
	ctx, stop := shutdownContext()
	defer stop()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	log := slog.Default()
	reg, collector := newMetrics()
	logStartupSettings(cfg, log)

	c := buildComponents(cfg, db, log, collector)
	subscribers := newSubscriberService(cfg, c.api, log, collector)

	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(cfg.RateLimitWebhook), log)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:       log,
		Metrics:      collector,
		Gatherer:     reg,
		WebhookToken: cfg.WebhookToken,
		RateLimiter:  rateLimiter,
		Submitter:    c.dispatcher,
		Dispatcher:   c.dispatcher,
		History:      c.ledger,
		Subscribers:  subscribers,
		Health:       db,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := c.dispatcher.Wait(shutdownCtx); err != nil {
		slog.Warn("未完了のディスパッチタスクを残して終了します", slog.String("error", err.Error()))
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 失敗ディスパッチの再試行と台帳の保持期間管理をシグナル受信まで実行する。
func runWorker(cfg *config.Config) error {
	ctx, stop := shutdownContext()
	defer stop()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	log := slog.Default()
	_, collector := newMetrics()
	logStartupSettings(cfg, log)

	c := buildComponents(cfg, db, log, collector)
	sweeper := retry.NewSweeper(c.ledger, c.entries, c.dispatcher, log, cfg.RetryMaxAge, cfg.DispatchMaxConcurrent)
	cleanupJob := cleanup.NewLedgerCleanupJob(db, cfg.LogRetentionDays, log)

	slog.Info("worker starting",
		slog.Duration("retry_interval", cfg.RetrySweepInterval),
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
	)

	// 起動直後に1回ずつ実行
	if err := cleanupJob.Run(ctx); err != nil {
		slog.Error("cleanup job failed", slog.String("error", err.Error()))
	}
	if _, err := sweeper.RunOnce(ctx); err != nil {
		slog.Error("retry sweep failed", slog.String("error", err.Error()))
	}

	go cleanupJob.Start(ctx, cfg.CleanupInterval)
	sweeper.Start(ctx, cfg.RetrySweepInterval)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := c.dispatcher.Wait(shutdownCtx); err != nil {
		slog.Warn("未完了のディスパッチタスクを残して終了します", slog.String("error", err.Error()))
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.MigrateUp(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runPing はMailchimp APIへの疎通と必須設定を確認する。
func runPing(cfg *config.Config) error {
	log := slog.Default()
	logStartupSettings(cfg, log)

	if missing := cfg.MissingCampaignSettings(); len(missing) > 0 {
		return fmt.Errorf("mailchimp settings are missing: %v", missing)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.MailchimpTimeout+5*time.Second)
	defer cancel()

	api := newCampaignAPI(cfg, log, metrics.NopCollector{})
	if err := api.Ping(ctx); err != nil {
		return fmt.Errorf("mailchimp ping failed: %w", err)
	}

	slog.Info("mailchimp ping succeeded")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(port string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(fmt.Sprintf("http://localhost:%s/health", port))
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
