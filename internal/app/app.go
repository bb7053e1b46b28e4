// Package app initializes and holds long-lived application services, acting
// as a small dependency injection container.
package app

import (
	"context"
	"fmt"

	gcpubsub "cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/Abishekkhanal/sikkimjobs/internal/alert/logsink"
	alertpubsub "github.com/Abishekkhanal/sikkimjobs/internal/alert/pubsub"
	blobgcs "github.com/Abishekkhanal/sikkimjobs/internal/blob/gcs"
	bloblocal "github.com/Abishekkhanal/sikkimjobs/internal/blob/local"
	blobmemory "github.com/Abishekkhanal/sikkimjobs/internal/blob/memory"
	"github.com/Abishekkhanal/sikkimjobs/internal/clock/system"
	"github.com/Abishekkhanal/sikkimjobs/internal/config"
	"github.com/Abishekkhanal/sikkimjobs/internal/ingest"
	"github.com/Abishekkhanal/sikkimjobs/internal/logging"
	"github.com/Abishekkhanal/sikkimjobs/internal/metrics"
	storememory "github.com/Abishekkhanal/sikkimjobs/internal/store/memory"
	storepostgres "github.com/Abishekkhanal/sikkimjobs/internal/store/postgres"
)

// App holds the shared, long-lived services: logger, document store, blob
// store, alert sink, clock. Initialized once at startup and threaded through
// the commands that need it.
type App struct {
	Config config.Config
	Logger *zap.Logger
	Store  ingest.DocumentStore
	Blobs  ingest.BlobStore
	Alerts ingest.AlertSink
	Clock  ingest.Clock

	closers []func()
}

// New builds the App from configuration, failing fast when any critical
// service cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Mode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	metrics.Init()

	a := &App{
		Config: cfg,
		Logger: logger,
		Clock:  system.New(),
	}

	if err := a.initStore(ctx); err != nil {
		return nil, err
	}
	if err := a.initBlobs(ctx); err != nil {
		return nil, err
	}
	if err := a.initAlerts(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	switch a.Config.DB.Provider {
	case "memory":
		a.Logger.Info("using in-memory document store, data will not survive the process")
		a.Store = storememory.New()
	case "postgres":
		a.Logger.Info("connecting to postgres document store")
		store, err := storepostgres.New(ctx, storepostgres.Config{
			DSN:      a.Config.DB.DSN,
			MaxConns: a.Config.DB.MaxConns,
			MinConns: a.Config.DB.MinConns,
		})
		if err != nil {
			return fmt.Errorf("init document store: %w", err)
		}
		a.Store = store
		a.closers = append(a.closers, store.Close)
	default:
		return fmt.Errorf("unknown db provider: %s", a.Config.DB.Provider)
	}
	return nil
}

func (a *App) initBlobs(ctx context.Context) error {
	switch a.Config.Blob.Provider {
	case "", "none":
		a.Logger.Info("document archival disabled")
	case "memory":
		a.Blobs = blobmemory.NewBlobStore()
	case "local":
		store, err := bloblocal.New(a.Config.Blob.Dir)
		if err != nil {
			return fmt.Errorf("init local blob store: %w", err)
		}
		a.Blobs = store
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init gcs client: %w", err)
		}
		store, err := blobgcs.New(client, a.Config.Blob.Bucket)
		if err != nil {
			return fmt.Errorf("init gcs blob store: %w", err)
		}
		a.Blobs = store
		a.closers = append(a.closers, func() { _ = client.Close() })
	default:
		return fmt.Errorf("unknown blob provider: %s", a.Config.Blob.Provider)
	}
	return nil
}

func (a *App) initAlerts(ctx context.Context) error {
	// Outbound alerting stays on the log sink outside production no matter
	// what the config says.
	if a.Config.Mode != config.ModeProduction || a.Config.Alerts.Provider == "log" {
		a.Alerts = logsink.New(a.Logger)
		return nil
	}
	switch a.Config.Alerts.Provider {
	case "pubsub":
		client, err := gcpubsub.NewClient(ctx, a.Config.Alerts.ProjectID)
		if err != nil {
			return fmt.Errorf("init pubsub client: %w", err)
		}
		sink, err := alertpubsub.New(client, a.Config.Alerts.TopicID, a.Logger)
		if err != nil {
			return fmt.Errorf("init pubsub alert sink: %w", err)
		}
		a.Alerts = sink
		a.closers = append(a.closers, sink.Stop)
		a.closers = append(a.closers, func() { _ = client.Close() })
	default:
		return fmt.Errorf("unknown alerts provider: %s", a.Config.Alerts.Provider)
	}
	return nil
}

// Close shuts down services in reverse initialization order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.Logger.Sync()
}
