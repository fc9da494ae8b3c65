package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/gradesheet/internal/config"
	"github.com/hitoshi/gradesheet/internal/database"
	"github.com/hitoshi/gradesheet/internal/logger"
	"github.com/hitoshi/gradesheet/internal/session"
)

const (
	// postgresPingTimeout は起動時のPostgreSQL疎通確認のタイムアウト。
	postgresPingTimeout = 5 * time.Second
	// shutdownTimeout はグレースフルシャットダウンの最大待ち時間。
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。ログとコマンドの出力はwに書き込む。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck と keygen は設定を必要としないため、フル初期化をスキップする
	switch cmd {
	case CommandHealthcheck:
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	case CommandKeygen:
		return runKeygen(w)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("sheets_backend", cfg.SheetsBackend),
		slog.String("revocation_backend", cfg.RevocationBackend),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandSheets:
		return runSheets(context.Background(), w, cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、失効記録の定期削除とHTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	comps, err := buildComponents(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer comps.Close()

	if comps.cleanupJob != nil {
		go comps.cleanupJob.Start(ctx, cfg.RevocationSweepInterval)
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      comps.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate は失効ストア用のデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for migrate")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL, slog.Default()); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runSheets はスプレッドシートのタブ一覧と、設定済みの論理シートが
// 対応するタブを見つけられるかを表示する。
func runSheets(ctx context.Context, w io.Writer, cfg *config.Config) error {
	store, err := buildSheetStore(ctx, cfg, slog.Default(), nil)
	if err != nil {
		return err
	}

	names, err := store.ListSheetNames(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sheets: %w", err)
	}

	present := make(map[string]bool, len(names))
	for _, name := range names {
		present[name] = true
		fmt.Fprintf(w, "tab\t%s\n", name)
	}

	var missing []string
	for _, h := range store.Sheets() {
		status := "ok"
		if !present[h.Tab] {
			status = "missing"
			missing = append(missing, h.Tab)
		}
		fmt.Fprintf(w, "sheet\t%s\t%s\t%s\n", h.Name, h.Tab, status)
	}

	if len(missing) > 0 {
		return fmt.Errorf("configured tabs not found: %v", missing)
	}
	return nil
}

// runKeygen はSESSION_SIGNING_SEEDに設定する新しいシードを出力する。
func runKeygen(w io.Writer) error {
	seed, err := session.GenerateSigningSeed()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, seed)
	return err
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
