package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/document-intake/internal/config"
	"github.com/kirillkom/document-intake/internal/core/ports"
	"github.com/kirillkom/document-intake/internal/core/usecase"
	"github.com/kirillkom/document-intake/internal/infrastructure/queue/nats"
	"github.com/kirillkom/document-intake/internal/infrastructure/rasterizer/pdfcpu"
	"github.com/kirillkom/document-intake/internal/infrastructure/recognition/ocrhttp"
	"github.com/kirillkom/document-intake/internal/infrastructure/repository/memory"
	"github.com/kirillkom/document-intake/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/document-intake/internal/infrastructure/repository/redis"
	"github.com/kirillkom/document-intake/internal/infrastructure/resilience"
	"github.com/kirillkom/document-intake/internal/infrastructure/rules/yamlrules"
	"github.com/kirillkom/document-intake/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Intake        *usecase.IntakeService
	HTTPMetrics   *metrics.HTTPServerMetrics
	IntakeMetrics *metrics.IntakeMetrics

	// Health pings the session store.
	Health func(context.Context) error

	purger  purger
	logger  *slog.Logger
	closeFn []func()
}

type purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

type sessionBackend struct {
	store  ports.SessionStore
	purger purger
	health func(context.Context) error
	close  func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, logger: logger}

	httpMetrics := metrics.NewHTTPServerMetrics("intake-api")
	intakeMetrics := metrics.NewIntakeMetrics(httpMetrics.Registry(), "intake-api")
	app.HTTPMetrics = httpMetrics
	app.IntakeMetrics = intakeMetrics

	rules, err := yamlrules.Load(cfg.ProductRulesPath)
	if err != nil {
		return nil, fmt.Errorf("load product rules: %w", err)
	}
	logger.Info("product_rules_loaded", "product_lines", rules.ProductLines())

	backend, err := openSessionBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.onClose(backend.close)
	app.Health = backend.health
	app.purger = backend.purger
	store := newInstrumentedStore(backend.store, intakeMetrics)

	executor := resilience.NewExecutor(
		recognitionResilience(cfg),
		resilience.WithLogger(logger),
		resilience.WithStateListener(intakeMetrics.BreakerStateChanged),
	)
	recognizer := ocrhttp.New(cfg.RecognitionURL, cfg.RecognitionTimeout, executor)
	splitter := pdfcpu.New(cfg.PDFTempDir)

	var events ports.EventPublisher
	if strings.TrimSpace(cfg.NATSURL) != "" {
		publisher, err := nats.New(cfg.NATSURL, cfg.NATSVerdictSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(
				resilience.PublishConfig(),
				resilience.WithLogger(logger),
				resilience.WithStateListener(intakeMetrics.BreakerStateChanged),
			),
			Logger: logger,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init verdict publisher: %w", err)
		}
		app.onClose(publisher.Close)
		events = publisher
	}

	orchestrator := usecase.NewOrchestrator(
		recognizer,
		usecase.NewPageExpander(splitter),
		usecase.NewClassifier(cfg.SanitizeMaxFieldBytes),
		cfg.RecognitionMaxConcurrency,
	)
	engine := usecase.NewValidationEngine(rules, store, cfg.SessionWriteAttempts)
	app.Intake = usecase.NewIntakeService(orchestrator, engine, rules, store, usecase.IntakeOptions{
		MinPagesEnabled: cfg.MinPDFPagesEnabled,
		Events:          events,
		Logger:          logger,
	})
	return app, nil
}

func openSessionBackend(ctx context.Context, cfg config.Config) (sessionBackend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.SessionStore)) {
	case "redis", "":
		client, err := redis.Open(ctx, cfg.RedisURL)
		if err != nil {
			return sessionBackend{}, fmt.Errorf("open redis: %w", err)
		}
		store := redis.NewSessionStore(client, cfg.SessionTTL)
		return sessionBackend{
			store:  store,
			health: store.Health,
			close:  func() { _ = client.Close() },
		}, nil
	case "postgres":
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return sessionBackend{}, fmt.Errorf("open postgres: %w", err)
		}
		repo := postgres.NewSessionRepository(db, cfg.SessionTTL)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return sessionBackend{}, fmt.Errorf("ensure schema: %w", err)
		}
		return sessionBackend{
			store:  repo,
			purger: repo,
			health: db.PingContext,
			close:  func() { _ = db.Close() },
		}, nil
	case "memory":
		store := memory.NewSessionStore(cfg.SessionTTL)
		return sessionBackend{store: store, purger: store}, nil
	default:
		return sessionBackend{}, fmt.Errorf("unknown SESSION_STORE %q", cfg.SessionStore)
	}
}

func recognitionResilience(cfg config.Config) resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:        cfg.RecognitionRetryMaxAttempts,
		RetryInitialBackoff:     cfg.RecognitionRetryInitialBackoff,
		RetryMaxBackoff:         cfg.RecognitionRetryMaxBackoff,
		RetryMultiplier:         cfg.RecognitionRetryMultiplier,
		BreakerEnabled:          cfg.RecognitionBreakerEnabled,
		BreakerMinRequests:      uint32(max(cfg.RecognitionBreakerMinRequests, 0)),
		BreakerFailureRatio:     cfg.RecognitionBreakerFailureRatio,
		BreakerOpenTimeout:      cfg.RecognitionBreakerOpenTimeout,
		BreakerHalfOpenMaxCalls: uint32(max(cfg.RecognitionBreakerHalfOpenCalls, 0)),
	}
}

// RunPurgeLoop deletes expired sessions every interval until ctx is done.
// Stores with native expiry have nothing to purge.
func (a *App) RunPurgeLoop(ctx context.Context, interval time.Duration) {
	if a.purger == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.purger.PurgeExpired(ctx)
			if err != nil {
				a.logger.WarnContext(ctx, "session_purge_failed", "error", err)
				continue
			}
			if n > 0 {
				a.logger.InfoContext(ctx, "session_purge", "deleted", n)
			}
		}
	}
}

func (a *App) onClose(fn func()) {
	if fn != nil {
		a.closeFn = append(a.closeFn, fn)
	}
}

func (a *App) Close() {
	for i := len(a.closeFn) - 1; i >= 0; i-- {
		a.closeFn[i]()
	}
	a.closeFn = nil
}
