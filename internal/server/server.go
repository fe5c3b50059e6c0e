// Package server provides the core application wiring and lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"datewatch/internal/api"
	gcsarchive "datewatch/internal/archive/gcs"
	memoryarchive "datewatch/internal/archive/memory"
	"datewatch/internal/clock/system"
	"datewatch/internal/config"
	chatextractor "datewatch/internal/extractor/chat"
	"datewatch/internal/hash/sha256"
	"datewatch/internal/id/uuid"
	"datewatch/internal/poller"
	memorypublisher "datewatch/internal/publisher/memory"
	gcppublisher "datewatch/internal/publisher/pubsub"
	"datewatch/internal/scheduler"
	"datewatch/internal/service"
	collysource "datewatch/internal/source/colly"
	memorystore "datewatch/internal/store/memory"
	"datewatch/internal/tracker"
)

// App holds the long-lived services of the tracker process.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	store     *memorystore.EntityStore
	scheduler *scheduler.Scheduler
	service   *service.Service
	apiServer *api.Server

	pubsubClient    *pubsub.Client
	pubsubPublisher *pubsub.Publisher
	storageClient   *storage.Client
}

// NewApp builds the full dependency graph from configuration.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{cfg: cfg, logger: logger}

	app.store = memorystore.NewEntityStore()

	source := collysource.New(collysource.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.FetchTimeout(),
		TextField: cfg.HTTP.TextField,
	})
	logger.Info("using colly snippet source", zap.String("user_agent", cfg.HTTP.UserAgent))

	extractor := chatextractor.New(chatextractor.Config{
		BaseURL:     cfg.Oracle.BaseURL,
		Model:       cfg.Oracle.Model,
		Timeout:     cfg.OracleTimeout(),
		MaxTokens:   cfg.Oracle.MaxTokens,
		Temperature: cfg.Oracle.Temperature,
	}, logger.Named("oracle"))
	logger.Info("oracle endpoint configured",
		zap.String("base_url", cfg.Oracle.BaseURL),
		zap.String("model", cfg.Oracle.Model),
	)

	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}
	snapshots, err := app.setupSnapshots(ctx)
	if err != nil {
		return nil, err
	}

	p := poller.New(
		app.store,
		source,
		extractor,
		publisher,
		snapshots,
		sha256.New(),
		system.New(),
		poller.Config{
			FetchTimeout:   cfg.FetchTimeout(),
			EventTopic:     cfg.Tracker.EventTopic,
			SnapshotPrefix: cfg.Tracker.SnapshotPrefix,
		},
		logger.Named("poller"),
	)

	app.scheduler = scheduler.New(p, app.store, logger.Named("scheduler"))
	app.service = service.New(
		app.store,
		p,
		app.scheduler,
		uuid.NewGenerator(),
		service.Defaults{
			PollIntervalSeconds: cfg.Tracker.DefaultPollIntervalSeconds,
			Timezone:            cfg.Tracker.DefaultTimezone,
			LocaleMode:          tracker.LocaleMode(cfg.Tracker.DefaultLocaleMode),
		},
		logger.Named("service"),
	)
	app.apiServer = api.NewServer(app.service, *cfg, logger.Named("api"))

	return app, nil
}

func (a *App) setupPublisher(ctx context.Context) (tracker.Publisher, error) {
	if a.cfg.PubSub.ProjectID == "" || a.cfg.PubSub.TopicName == "" {
		a.logger.Info("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	var err error
	a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubPublisher = a.pubsubClient.Publisher(a.cfg.PubSub.TopicName)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return gcppublisher.New(a.pubsubPublisher), nil
}

func (a *App) setupSnapshots(ctx context.Context) (tracker.SnapshotStore, error) {
	if a.cfg.Snapshots.GCSBucket == "" {
		a.logger.Info("using in-memory snapshot archive")
		return memoryarchive.New(), nil
	}
	var err error
	a.storageClient, err = storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs client init failed: %w", err)
	}
	archive, err := gcsarchive.New(a.storageClient, gcsarchive.Config{
		Bucket: a.cfg.Snapshots.GCSBucket,
	})
	if err != nil {
		return nil, fmt.Errorf("gcs archive init failed: %w", err)
	}
	a.logger.Info("using GCS snapshot archive", zap.String("bucket", a.cfg.Snapshots.GCSBucket))
	return archive, nil
}

// Run starts the HTTP server and blocks until the context is canceled
// or a signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	return a.Close(shutdownCtx)
}

// Close stops all timers and releases clients.
func (a *App) Close(ctx context.Context) error {
	if err := a.scheduler.StopAll(ctx); err != nil {
		a.logger.Warn("scheduler stop failed", zap.Error(err))
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if err := a.logger.Sync(); err == nil {
		a.logger.Info("shutdown complete")
	}
	return nil
}
