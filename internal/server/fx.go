// Package server builds the wiki's dependency graph and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/gowiki/internal/backup"
	"github.com/JakeFAU/gowiki/internal/bus"
	"github.com/JakeFAU/gowiki/internal/clock/system"
	"github.com/JakeFAU/gowiki/internal/config"
	"github.com/JakeFAU/gowiki/internal/dbservice"
	"github.com/JakeFAU/gowiki/internal/events"
	eventsinks "github.com/JakeFAU/gowiki/internal/events/sinks"
	"github.com/JakeFAU/gowiki/internal/hash/sha256"
	"github.com/JakeFAU/gowiki/internal/id/uuid"
	"github.com/JakeFAU/gowiki/internal/markdown"
	"github.com/JakeFAU/gowiki/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/gowiki/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/gowiki/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/gowiki/internal/storage/gcs"
	localstorage "github.com/JakeFAU/gowiki/internal/storage/local"
	memorystorage "github.com/JakeFAU/gowiki/internal/storage/memory"
	pgstore "github.com/JakeFAU/gowiki/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/gowiki/internal/storage/sqlite"
	"github.com/JakeFAU/gowiki/internal/web"
	"github.com/JakeFAU/gowiki/internal/wiki"
)

const (
	localEventTopic   = "wiki-pages"
	localEventHistory = 1000
)

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	store     wiki.Store
	bus       *bus.Bus
	service   dbservice.Service
	hub       *events.Hub
	publisher *gcppublisher.Publisher
	eventLog  *memorypublisher.Publisher
	gcs       *storage.Client
	exporter  *backup.Exporter
	web       *web.Server
}

// Build creates the application's dependencies. On error everything opened
// so far is closed again.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (app *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app = &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.closeInfrastructure(context.Background())
			app = nil
		}
	}()

	logger.Info("building application",
		zap.Int("port", cfg.Server.Port),
		zap.String("database_driver", cfg.Database.Driver),
		zap.String("storage_backend", cfg.Storage.Backend),
	)

	if app.store, err = setupDatabase(ctx, cfg, logger); err != nil {
		return app, err
	}
	clock := system.New()

	if err = app.setupEvents(ctx); err != nil {
		return app, err
	}

	direct := dbservice.New(app.store, clock, logger.Named("dbservice"), dbservice.WithEmitter(app.hub))
	if err = direct.InitDatabase(ctx); err != nil {
		return app, err
	}

	app.bus = bus.New(bus.Config{
		InboxSize:   cfg.Bus.InboxSize,
		SendTimeout: cfg.Bus.SendTimeout,
		Logger:      logger.Named("bus"),
	})
	if err = dbservice.Register(app.bus, cfg.Bus.Address, direct, logger.Named("dbservice")); err != nil {
		return app, err
	}
	app.service = dbservice.NewProxy(app.bus, cfg.Bus.Address, cfg.Bus.SendTimeout)

	blobs, err := app.setupStorage(ctx)
	if err != nil {
		return app, err
	}
	app.exporter, err = backup.NewExporter(backup.Deps{
		Source:  app.service,
		Blobs:   blobs,
		Hasher:  sha256.New(),
		Clock:   clock,
		IDs:     uuid.New(),
		Emitter: app.hub,
		Logger:  logger.Named("backup"),
	}, cfg.Storage.Prefix)
	if err != nil {
		return app, fmt.Errorf("backup exporter init failed: %w", err)
	}

	var eventLog web.EventLog
	if app.eventLog != nil {
		eventLog = app.eventLog
	}
	var apiKey string
	if cfg.Auth.Enabled {
		apiKey = cfg.Auth.APIKey
	}
	app.web, err = web.NewServer(web.Deps{
		Service:  app.service,
		Markdown: markdown.New(),
		Store:    app.store,
		Backup:   app.exporter,
		Events:   eventLog,
		Logger:   logger.Named("web"),
	}, web.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		APIKey:         apiKey,
		WriteLimiter: ratelimit.New(ratelimit.Config{
			RPS:   cfg.Server.WriteRPS,
			Burst: cfg.Server.WriteBurst,
		}),
	})
	if err != nil {
		return app, fmt.Errorf("web server init failed: %w", err)
	}
	return app, nil
}

func setupDatabase(ctx context.Context, cfg config.Config, logger *zap.Logger) (wiki.Store, error) {
	if cfg.Database.DSN != "" && cfg.Database.Driver != config.DriverPostgres {
		logger.Warn("database.dsn is ignored unless database.driver is postgres",
			zap.String("database_driver", cfg.Database.Driver),
		)
	}
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		store, err := pgstore.NewPageStore(ctx, pgstore.Config{
			DSN:      cfg.Database.DSN,
			Table:    cfg.Database.Table,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		logger.Info("using postgres page store", zap.String("table", cfg.Database.Table))
		return store, nil
	case config.DriverMemory:
		logger.Warn("using in-memory page store; pages are lost on exit")
		return memorystorage.NewPageStore(), nil
	default:
		store, err := sqlitestore.New(sqlitestore.Config{Path: cfg.Database.Path}, logger.Named("sqlite"))
		if err != nil {
			return nil, fmt.Errorf("sqlite store init failed: %w", err)
		}
		logger.Info("using sqlite page store", zap.String("path", cfg.Database.Path))
		return store, nil
	}
}

func (a *App) setupEvents(ctx context.Context) error {
	var sinkList []events.Sink
	if a.cfg.Events.LogEvents {
		sinkList = append(sinkList, eventsinks.NewLogSink(a.logger.Named("events")))
	}

	promSink, err := eventsinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	var already prometheus.AlreadyRegisteredError
	switch {
	case err == nil:
		sinkList = append(sinkList, promSink)
	case errors.As(err, &already):
		a.logger.Debug("event collectors already registered, skipping prometheus sink")
	default:
		return fmt.Errorf("event metrics init failed: %w", err)
	}

	var (
		publisher wiki.Publisher
		topic     string
	)
	if a.cfg.PubSub.TopicName != "" {
		a.publisher, err = gcppublisher.New(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
		if err != nil {
			return fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		publisher, topic = a.publisher, a.cfg.PubSub.TopicName
		a.logger.Info("publishing page events",
			zap.String("project", a.cfg.PubSub.ProjectID),
			zap.String("topic", topic),
		)
	} else {
		a.eventLog = memorypublisher.NewBounded(localEventHistory)
		publisher, topic = a.eventLog, localEventTopic
		a.logger.Info("no pubsub topic configured, keeping recent page events in memory",
			zap.Int("history", localEventHistory),
		)
	}
	pubSink, err := eventsinks.NewPublisherSink(publisher, topic)
	if err != nil {
		return fmt.Errorf("publisher sink init failed: %w", err)
	}
	sinkList = append(sinkList, pubSink)

	a.hub = events.NewHub(events.Config{
		BufferSize:     a.cfg.Events.BufferSize,
		MaxBatchEvents: a.cfg.Events.MaxBatchEvents,
		MaxBatchWait:   a.cfg.Events.MaxBatchWait,
		Logger:         a.logger.Named("event_hub"),
	}, sinkList...)
	a.logger.Debug("event hub initialized", zap.Int("sinks", len(sinkList)))
	return nil
}

func (a *App) setupStorage(ctx context.Context) (wiki.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcs = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Storage.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("using GCS backup storage", zap.String("bucket", a.cfg.Storage.Bucket))
		return blobs, nil
	case config.BackendLocal:
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local backup storage", zap.String("path", a.cfg.Storage.Local.BaseDir))
		return blobs, nil
	default:
		a.logger.Info("using in-memory backup storage")
		return memorystorage.NewBlobStore(), nil
	}
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.web.Handler()
}

// Backup writes one snapshot through the bus.
func (a *App) Backup(ctx context.Context) (backup.Result, error) {
	return a.exporter.Run(ctx)
}

// Run listens on the configured port and blocks until ctx is canceled or a
// termination signal arrives, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		a.Close(context.Background())
		return fmt.Errorf("listen %s: %w", a.cfg.Addr(), err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener. It always closes the App.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Handler:           a.web.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("HTTP server running", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})
	err := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()
	a.Close(closeCtx)
	return err
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}

// Close stops the bus, flushes events, and releases clients. Safe to call
// more than once.
func (a *App) Close(ctx context.Context) {
	a.closeInfrastructure(ctx)
	a.logger.Info("shutdown complete")
	_ = a.logger.Sync()
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.bus != nil {
		a.bus.Close()
	}
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("event hub close failed", zap.Error(err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
		a.publisher = nil
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.gcs = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("page store close failed", zap.Error(err))
		}
		a.store = nil
	}
}
