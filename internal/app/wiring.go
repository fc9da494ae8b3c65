package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/gradesheet/internal/auth"
	"github.com/hitoshi/gradesheet/internal/config"
	"github.com/hitoshi/gradesheet/internal/database"
	"github.com/hitoshi/gradesheet/internal/handler"
	"github.com/hitoshi/gradesheet/internal/metrics"
	"github.com/hitoshi/gradesheet/internal/middleware"
	"github.com/hitoshi/gradesheet/internal/repository"
	"github.com/hitoshi/gradesheet/internal/security"
	"github.com/hitoshi/gradesheet/internal/session"
	"github.com/hitoshi/gradesheet/internal/sheets"
	"github.com/hitoshi/gradesheet/internal/user"
	"github.com/hitoshi/gradesheet/internal/worker/cleanup"
)

// components はserveモードで組み立てた依存関係。
type components struct {
	handler     http.Handler
	store       *sheets.Store
	authority   *session.Authority
	collector   *metrics.Collector
	rateLimiter *middleware.RateLimiter
	cleanupJob  *cleanup.RevocationCleanupJob // nilなら定期削除は不要
	closers     []func() error
}

// Close は保持している接続とバックグラウンド処理を停止する。
func (c *components) Close() {
	if c.rateLimiter != nil {
		c.rateLimiter.Stop()
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			slog.Warn("failed to close resource", slog.String("error", err.Error()))
		}
	}
}

// buildComponents はConfigから全依存関係をワイヤリングする。
func buildComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*components, error) {
	// 1. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 2. レコードストア
	store, err := buildSheetStore(ctx, cfg, logger, collector)
	if err != nil {
		return nil, err
	}

	// 3. 失効ストアとセッション発行者
	revocations, sweeper, closer, err := buildRevocationStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c := &components{store: store, collector: collector}
	if closer != nil {
		c.closers = append(c.closers, closer)
	}

	privateKey, err := session.ParseSigningSeed(cfg.SessionSigningSeed)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("invalid SESSION_SIGNING_SEED: %w", err)
	}
	authority, err := session.NewAuthority(privateKey, revocations, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create session authority: %w", err)
	}
	c.authority = authority

	if sweeper != nil {
		c.cleanupJob = cleanup.NewRevocationCleanupJob(sweeper, logger, collector)
	}

	// 4. リポジトリとドメインサービス
	userRepo := repository.NewSheetUserRepo(store)
	gradeRepo := repository.NewSheetGradeRepo(store)
	sanitizer := security.NewTextSanitizer(0)

	authService := auth.NewService(
		userRepo, authority, auth.NewPasswordHasher(bcrypt.DefaultCost), sanitizer,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
	userService := user.NewService(userRepo, gradeRepo, sanitizer)

	// 5. ルーター
	rateLimiterCfg := middleware.DefaultRateLimiterConfig().
		GeneralRatePerMinute(cfg.RateLimitGeneral).
		LoginRatePerMinute(cfg.RateLimitLogin)
	c.rateLimiter = middleware.NewRateLimiter(rateLimiterCfg)

	c.handler = handler.NewRouter(&handler.RouterDeps{
		Verifier:          authority,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: c.rateLimiter,
		Logger:      logger,
		Metrics:     collector,

		AuthService: handler.NewAuthServiceAdapter(authService),
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
		},
		UserService:    handler.NewUserServiceAdapter(userService),
		SheetLister:    store,
		MetricsHandler: metrics.Handler(registry),
	})

	return c, nil
}

// sheetHandles は設定から論理シートと物理タブの対応を作る。
func sheetHandles(cfg *config.Config) []sheets.SheetHandle {
	return []sheets.SheetHandle{
		{Name: repository.UsersSheet, Tab: cfg.UsersTab, MinWidth: cfg.UsersMinWidth, Schema: sheets.UsersSchema()},
		{Name: repository.GradesSheet, Tab: cfg.GradesTab, MinWidth: cfg.GradesMinWidth},
	}
}

// buildSheetStore はSHEETS_BACKENDに応じたTabularServiceでStoreを生成する。
// observerはnil可。
func buildSheetStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, collector *metrics.Collector) (*sheets.Store, error) {
	var svc sheets.TabularService
	switch cfg.SheetsBackend {
	case config.SheetsBackendMemory:
		logger.Warn("using in-memory sheets backend; data is not persisted")
		svc = newSeededMemoryService(cfg)
	default:
		var onRetry func(op string)
		if collector != nil {
			onRetry = collector.RecordRetry
		}
		policy := sheets.DefaultRetryPolicy()
		policy.MaxRetries = cfg.SheetsMaxRetries
		policy.BaseDelay = cfg.SheetsRetryBaseDelay
		policy.AttemptTimeout = cfg.SheetsTimeout

		google, err := sheets.NewGoogleService(ctx, sheets.GoogleConfig{
			SpreadsheetID:   cfg.SpreadsheetID,
			CredentialsFile: cfg.SheetsCredentialsFile,
			Retry:           policy,
		}, logger, onRetry)
		if err != nil {
			return nil, fmt.Errorf("failed to create sheets service: %w", err)
		}
		svc = google
	}

	var observer sheets.Observer
	if collector != nil {
		observer = collector
	}
	store, err := sheets.NewStore(svc, sheetHandles(cfg), logger, observer)
	if err != nil {
		return nil, fmt.Errorf("failed to create record store: %w", err)
	}
	return store, nil
}

// newSeededMemoryService はUsers・Gradesのヘッダー行だけを持つMemoryServiceを返す。
// 各フィールドの最初の表記を固定位置の列に置く。
func newSeededMemoryService(cfg *config.Config) *sheets.MemoryService {
	schema := sheets.UsersSchema()
	width := cfg.UsersMinWidth
	for _, f := range schema.Fields {
		if f.Fallback+1 > width {
			width = f.Fallback + 1
		}
	}
	header := make([]string, width)
	for _, f := range schema.Fields {
		if f.Fallback >= 0 && len(f.Candidates) > 0 {
			header[f.Fallback] = f.Candidates[0]
		}
	}

	mem := sheets.NewMemoryService()
	mem.SetTab(cfg.UsersTab, [][]string{header})
	mem.SetTab(cfg.GradesTab, [][]string{{"Student_ID"}})
	return mem
}

// buildRevocationStore はREVOCATION_BACKENDに応じた失効ストアを生成する。
// 期限切れの定期削除が必要なバックエンドはsweeperも返す。closerはnil可。
func buildRevocationStore(ctx context.Context, cfg *config.Config) (session.RevocationStore, cleanup.ExpiredRevocationSweeper, func() error, error) {
	switch cfg.RevocationBackend {
	case config.RevocationBackendRedis:
		client, err := session.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, nil, nil, err
		}
		slog.Info("revocation store: redis", slog.String("addr", cfg.RedisAddr))
		// RedisはキーのTTLで自然に消えるため定期削除しない
		return session.NewRedisRevocationStore(client), nil, client.Close, nil

	case config.RevocationBackendPostgres:
		db, err := database.OpenAndPing(ctx, cfg.DatabaseURL, postgresPingTimeout)
		if err != nil {
			return nil, nil, nil, err
		}
		slog.Info("revocation store: postgres")
		repo := repository.NewPostgresRevocationRepo(db)
		return repo, repo, db.Close, nil

	default:
		slog.Info("revocation store: memory")
		store := session.NewMemoryRevocationStore()
		return store, store, nil, nil
	}
}
