package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/casedesk-backend/internal/data/aggregates"
	"github.com/yungbote/casedesk-backend/internal/data/db"
	"github.com/yungbote/casedesk-backend/internal/data/repos"
	"github.com/yungbote/casedesk-backend/internal/domain/conversation"
	"github.com/yungbote/casedesk-backend/internal/domain/events"
	"github.com/yungbote/casedesk-backend/internal/eventbus"
	casehttp "github.com/yungbote/casedesk-backend/internal/http"
	httpH "github.com/yungbote/casedesk-backend/internal/http/handlers"
	"github.com/yungbote/casedesk-backend/internal/jobs/outbox"
	"github.com/yungbote/casedesk-backend/internal/jobs/sla"
	"github.com/yungbote/casedesk-backend/internal/observability"
	"github.com/yungbote/casedesk-backend/internal/platform/logger"
	bridge "github.com/yungbote/casedesk-backend/internal/realtime/bus"
	"github.com/yungbote/casedesk-backend/internal/sagas"
	"github.com/yungbote/casedesk-backend/internal/services"
)

type Services struct {
	Conversations services.ConversationService
	Tasks         services.TaskService
	Requirements  services.RequirementService
}

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Bus      *eventbus.Bus
	Store    *aggregates.EventStore
	Services Services

	Dispatcher *outbox.Dispatcher
	Sweeper    *sla.Sweeper
	Server     *casehttp.Server
	Metrics    *observability.MetricsReader

	redis     *goredis.Client
	shutdowns []func(context.Context) error
	cancel    context.CancelFunc
}

// Option customises wiring, mainly for tests and embedding.
type Option func(*options)

type options struct {
	summarizer sagas.Summarizer
	now        func() time.Time
}

// WithSummarizer replaces the built-in transcript digest used for resolutions.
func WithSummarizer(s sagas.Summarizer) Option {
	return func(o *options) { o.summarizer = s }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func New(ctx context.Context, log *logger.Logger, cfg Config, opts ...Option) (*App, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	theDB, err := openDB(log, cfg.DB)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrateAll(theDB); err != nil {
		closeDB(theDB)
		return nil, fmt.Errorf("automigrate: %w", err)
	}

	a := &App{Log: log, DB: theDB, Cfg: cfg}

	metrics, metricsShutdown := observability.InitMetrics(cfg.Otel.ServiceName)
	a.Metrics = metrics
	a.shutdowns = append(a.shutdowns, metricsShutdown)
	if shutdown := observability.InitOTel(ctx, log, cfg.Otel); shutdown != nil {
		a.shutdowns = append(a.shutdowns, shutdown)
	}

	if err := a.wire(ctx, o); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func openDB(log *logger.Logger, cfg DBConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case DriverSQLite:
		log.Info("Opening sqlite database", "path", cfg.SQLitePath)
		theDB, err := db.OpenSQLite(cfg.SQLitePath, log, false)
		if err != nil {
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
		return theDB, nil
	default:
		pg, err := db.NewPostgresService(cfg.Postgres, log)
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		return pg.DB(), nil
	}
}

func closeDB(theDB *gorm.DB) {
	if sqlDB, err := theDB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// wire builds the object graph. Handlers subscribe before the store gets its
// publisher so no save can publish into a half-registered bus.
func (a *App) wire(ctx context.Context, o options) error {
	log := a.Log
	a.Bus = eventbus.New(log)

	outboxRepo := repos.NewOutboxRepo(a.DB, log)
	a.Store = aggregates.NewEventStore(aggregates.EventStoreDeps{
		BaseDeps: aggregates.BaseDeps{DB: a.DB, Log: log, Hooks: aggregates.NewOTelHooks()},
		EventLog: repos.NewEventLogRepo(a.DB, log),
		Outbox:   outboxRepo,
		Now:      o.now,
	})

	evaluator := conversation.SLAEvaluator{WarningWindow: a.Cfg.SLA.WarningWindow}
	svcOpts := services.Options{Retry: a.Cfg.Retry, Now: o.now}
	a.Services = Services{
		Conversations: services.NewConversationService(log,
			aggregates.NewConversationRepository(a.Store, repos.NewConversationRepo(a.DB, log), conversation.WithSLAEvaluator(evaluator)),
			evaluator, svcOpts),
		Tasks: services.NewTaskService(log,
			aggregates.NewTaskRepository(a.Store, repos.NewTaskRepo(a.DB, log)), svcOpts),
		Requirements: services.NewRequirementService(log,
			aggregates.NewRequirementRepository(a.Store, repos.NewRequirementRepo(a.DB, log)), svcOpts),
	}

	summarizer := o.summarizer
	if summarizer == nil {
		summarizer = sagas.NewTranscriptDigest(a.Services.Conversations)
	}
	completed := sagas.NewTaskCompletedHandler(log, a.Services.Tasks, a.Services.Conversations, a.Bus)
	completed.Now = o.now
	handlers := sagas.Handlers{
		TaskCompleted:            completed,
		ConversationReadyToClose: sagas.NewConversationReadyToCloseHandler(log, a.Services.Conversations, summarizer),
		RequirementCreated:       sagas.NewRequirementCreatedHandler(log, a.Services.Tasks),
	}
	if err := handlers.Register(a.Bus); err != nil {
		return fmt.Errorf("register sagas: %w", err)
	}

	if err := a.wireBridge(ctx); err != nil {
		return err
	}

	a.Store.SetPublisher(a.Bus)

	a.Dispatcher = outbox.NewDispatcher(outboxRepo, a.Bus, log, a.Cfg.Outbox)
	a.Dispatcher.Now = o.now
	a.Sweeper = sla.NewSweeper(log, a.Services.Conversations, a.Cfg.SLA.SweepInterval, a.Cfg.SLA.SweepLimit)
	a.Sweeper.Escalations = a.Services.Tasks

	sqlDB, err := a.DB.DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	a.Server = casehttp.NewServer(a.Cfg.HTTP.Addr, casehttp.RouterConfig{
		Log:           log,
		ServiceName:   a.Cfg.Otel.ServiceName,
		CORSOrigins:   a.Cfg.HTTP.CORSOrigins,
		HealthHandler: httpH.NewHealthHandler(sqlDB),
		OutboxHandler: httpH.NewOutboxHandler(log, a.Dispatcher),
		OpsHandler:    httpH.NewOpsHandler(a.Sweeper, a.Metrics),
	})
	return nil
}

func (a *App) wireBridge(ctx context.Context) error {
	if a.Cfg.Bridge.RedisAddr == "" {
		return nil
	}
	client, err := bridge.NewRedisClient(ctx, a.Cfg.Bridge.RedisAddr)
	if err != nil {
		return fmt.Errorf("init redis bridge: %w", err)
	}
	a.redis = client

	types, _ := bridge.ParseTypes(a.Cfg.Bridge.Events)
	if len(types) == 0 {
		types = events.AllTypes()
	}
	fwd := bridge.NewForwarder(a.Log, client, a.Cfg.Bridge.Channel, types)
	for _, t := range fwd.Types() {
		if err := a.Bus.Subscribe(t, fwd); err != nil {
			return fmt.Errorf("subscribe bridge to %s: %w", t, err)
		}
	}
	a.Log.Info("Redis bridge enabled", "addr", a.Cfg.Bridge.RedisAddr, "channel", a.Cfg.Bridge.Channel, "types", len(fwd.Types()))
	return nil
}

// Start launches the outbox dispatcher and the SLA sweeper.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.Dispatcher.Start(ctx)
	a.Sweeper.Start(ctx)
}

func (a *App) Run() error {
	a.Log.Info("Serving ops endpoints", "addr", a.Cfg.HTTP.Addr)
	return a.Server.Run()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if a.Server != nil {
		errs = append(errs, a.Server.Shutdown(ctx))
	}
	for i := len(a.shutdowns) - 1; i >= 0; i-- {
		errs = append(errs, a.shutdowns[i](ctx))
	}
	a.shutdowns = nil
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
		a.redis = nil
	}
	if a.DB != nil {
		closeDB(a.DB)
	}
	if err := errors.Join(errs...); err != nil {
		a.Log.Warn("Shutdown incomplete", "error", err)
	}
	a.Log.Sync()
}
