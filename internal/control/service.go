package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/failsafe/internal/core/config"
	"github.com/vietddude/failsafe/internal/core/domain"
	"github.com/vietddude/failsafe/internal/core/worker"
	"github.com/vietddude/failsafe/internal/engine/breaker"
	"github.com/vietddude/failsafe/internal/engine/classify"
	"github.com/vietddude/failsafe/internal/engine/events"
	"github.com/vietddude/failsafe/internal/engine/fallback"
	"github.com/vietddude/failsafe/internal/engine/health"
	"github.com/vietddude/failsafe/internal/engine/orchestrator"
	"github.com/vietddude/failsafe/internal/engine/strategy"
	redisclient "github.com/vietddude/failsafe/internal/infra/redis"
	"github.com/vietddude/failsafe/internal/infra/storage"
	"github.com/vietddude/failsafe/internal/infra/storage/memory"
	"github.com/vietddude/failsafe/internal/infra/storage/postgres"

	"github.com/pressly/goose/v3"
)

// Service is the main application struct that wires the engine together
// and manages its lifecycle.
type Service struct {
	cfg          *config.AppConfig
	orch         *orchestrator.Orchestrator
	strategies   *strategy.Registry
	breakers     *breaker.Registry
	monitor      *health.Monitor
	healthServer *health.Server
	coordinator  *fallback.Coordinator
	mocks        *fallback.MockHandler
	bus          *events.Bus
	repo         storage.FailureRepository
	db           *postgres.DB
	redisClient  *redisclient.Client
	pruner       *worker.Pruner
	log          *slog.Logger
}

// NewService creates a new Service instance with all dependencies initialized.
func NewService(cfg *config.AppConfig) (*Service, error) {

	// 1. Initialize Storage
	var repo storage.FailureRepository
	var db *postgres.DB

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), postgres.Config{
			URL:      cfg.Database.URL,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		// Run migrations
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		// Assuming migrations are in "migrations" folder relative to CWD
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		repo = postgres.NewFailureRepo(db)
		slog.Info("Using PostgreSQL storage")
	} else {
		repo = memory.NewFailureRepo(cfg.Engine.HistoryCapacity)
		slog.Info("Using Memory storage")
	}

	// 2. Initialize Redis (optional)
	var redisClient *redisclient.Client
	var cooldowns strategy.CooldownStore
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(redisclient.Config{
			URL:      cfg.Redis.URL,
			Password: cfg.Redis.Password,
		})
		if err != nil {
			slog.Warn("Failed to connect to Redis, using in-process cooldowns", "error", err)
			cooldowns = strategy.NewMemoryCooldowns()
		} else {
			cooldowns = redisclient.NewCooldowns(redisClient)
			slog.Info("Using Redis cooldowns")
		}
	} else {
		cooldowns = strategy.NewMemoryCooldowns()
	}

	// 3. Initialize Engine Components
	bus := events.NewBus()
	classifier := classify.NewClassifier()
	breakers := breaker.NewRegistry(breaker.Config{
		Threshold:   cfg.Engine.Breaker.Threshold,
		OpenTimeout: cfg.Engine.Breaker.OpenTimeout.Std(),
	})
	strategies := strategy.NewRegistry(cooldowns)

	monitor := health.NewMonitor(
		health.Thresholds{
			DegradedBelow: cfg.Engine.Health.DegradedBelow,
			CriticalBelow: cfg.Engine.Health.CriticalBelow,
		},
		cfg.Engine.MonitorInterval.Std(),
		breakers,
		cfg.Engine.RequiredResources,
		bus,
	)
	healthServer := health.NewServer(monitor, cfg.Server.Port)

	// 4. Initialize Fallback Coordinator
	services := make([]fallback.ServiceConfig, 0, len(cfg.Services))
	for _, svc := range cfg.Services {
		services = append(services, fallback.ServiceConfig{
			Name:      svc.Name,
			Required:  svc.Required,
			Strategy:  fallback.StrategyType(svc.Strategy),
			CheckURL:  svc.CheckURL,
			AltTarget: svc.AltTarget,
			Interval:  svc.Interval.Std(),
			Timeout:   svc.Timeout.Std(),
		})
	}
	mocks := fallback.NewMockHandler()
	checker := fallback.NewSchemeChecker(5 * time.Second)
	coordinator := fallback.NewCoordinator(services, checker, bus)
	coordinator.SetHandler(fallback.StrategyMock, mocks)

	// 5. Initialize Orchestrator
	orch := orchestrator.New(
		orchestrator.Config{
			BackoffBase:    cfg.Engine.Retry.BackoffBase.Std(),
			BackoffCap:     cfg.Engine.Retry.BackoffCap.Std(),
			FixedDelay:     cfg.Engine.Retry.FixedDelay.Std(),
			DefaultTimeout: cfg.Engine.Retry.DefaultTimeout.Std(),
			MaxRetries:     cfg.Engine.Retry.MaxRetries,
		},
		classifier,
		strategies,
		breakers,
		monitor,
		bus,
		repo,
	)
	if redisClient != nil {
		orch.SetExhaustedSink(&redisExhaustedSink{client: redisClient})
	}

	// 6. Initialize Pruner
	var pruner *worker.Pruner
	if cfg.Engine.HistoryRetention > 0 {
		pruner = worker.NewPruner(cfg.Engine.HistoryRetention.Std(), repo)
	}

	return &Service{
		cfg:          cfg,
		orch:         orch,
		strategies:   strategies,
		breakers:     breakers,
		monitor:      monitor,
		healthServer: healthServer,
		coordinator:  coordinator,
		mocks:        mocks,
		bus:          bus,
		repo:         repo,
		db:           db,
		redisClient:  redisClient,
		pruner:       pruner,
		log:          slog.Default(),
	}, nil
}

// Start starts the service and all its background components.
func (s *Service) Start(ctx context.Context) error {
	// Start Health Server
	go func() {
		if err := s.healthServer.Start(); err != nil {
			s.log.Error("Health server failed", "error", err)
		}
	}()

	// Start Health Monitor
	go s.monitor.Run(ctx)

	// Start Fallback Coordinator
	go s.coordinator.Run(ctx)

	// Start Pruner
	if s.pruner != nil {
		go s.pruner.Start(ctx)
	}

	return nil
}

// Stop stops the service.
func (s *Service) Stop(ctx context.Context) error {
	s.log.Info("Stopping Service...")

	s.bus.Close()

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Warn("Failed to close DB", "error", err)
		}
	}

	return s.healthServer.Stop(ctx)
}

// ExecuteWithRecovery runs the operation under the engine: classification,
// circuit breaking, recovery strategies and retry with backoff.
func (s *Service) ExecuteWithRecovery(ctx context.Context, execCtx *domain.ExecutionContext, op orchestrator.Operation) (any, error) {
	return s.orch.Execute(ctx, execCtx, op)
}

// RegisterRecoveryStrategy adds a strategy to the registry.
func (s *Service) RegisterRecoveryStrategy(st *strategy.RecoveryStrategy) {
	s.strategies.Register(st)
}

// RegisterSubstitute wires a mock substitute for a service, used when its
// fallback strategy is "mock".
func (s *Service) RegisterSubstitute(service string, sub fallback.Substitute) {
	s.mocks.RegisterSubstitute(service, sub)
}

// SetTracker wires an external error sink.
func (s *Service) SetTracker(t orchestrator.Tracker) {
	s.orch.SetTracker(t)
}

// Blocking returns the set of (stage, kind) combinations that abort on
// retry exhaustion.
func (s *Service) Blocking() *orchestrator.BlockingSet {
	return s.orch.Blocking()
}

// CheckServiceHealth probes a configured service.
func (s *Service) CheckServiceHealth(ctx context.Context, name string) (fallback.CheckResult, error) {
	return s.coordinator.CheckHealth(ctx, name)
}

// GetHealthMetrics returns the current system health snapshot.
func (s *Service) GetHealthMetrics() health.Metrics {
	return s.monitor.Snapshot()
}

// ActivateFallback manually activates the configured fallback for a service.
func (s *Service) ActivateFallback(ctx context.Context, name string) error {
	return s.coordinator.Activate(ctx, name)
}

// DeactivateFallback removes the active fallback binding for a service.
func (s *Service) DeactivateFallback(ctx context.Context, name string) error {
	return s.coordinator.Deactivate(ctx, name)
}

// ActiveFallbacks returns a snapshot of active fallback bindings.
func (s *Service) ActiveFallbacks() []fallback.Binding {
	return s.coordinator.ActiveBindings()
}

// Recommendations returns degradation notes for non-required services.
func (s *Service) Recommendations() []string {
	return s.coordinator.Recommendations()
}

// Subscribe returns a channel of engine events of the given type.
func (s *Service) Subscribe(t events.Type) <-chan events.Event {
	return s.bus.Subscribe(t)
}

// ErrorHistory returns the most recent tracked error events.
func (s *Service) ErrorHistory(ctx context.Context, limit int) ([]*domain.ErrorEvent, error) {
	return s.repo.ListRecent(ctx, limit)
}

// redisExhaustedSink hands exhausted operations to the redis queue for
// external retry tooling.
type redisExhaustedSink struct {
	client *redisclient.Client
}

func (s *redisExhaustedSink) HandOff(ctx context.Context, event *domain.ErrorEvent) error {
	return s.client.PushExhausted(ctx, redisclient.ExhaustedOperation{
		OperationID: event.Context.OperationID,
		Resource:    event.Context.Resource,
		Stage:       event.Context.Stage,
		Kind:        event.Kind,
		Attempts:    event.Context.RetryCount,
		FailedAt:    event.Timestamp.Unix(),
	})
}
