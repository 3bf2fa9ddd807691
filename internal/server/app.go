// Package server builds the watcher's dependency graph and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/api"
	"github.com/JakeFAU/pagewatch/internal/challenge"
	"github.com/JakeFAU/pagewatch/internal/clock/system"
	"github.com/JakeFAU/pagewatch/internal/config"
	"github.com/JakeFAU/pagewatch/internal/diff"
	"github.com/JakeFAU/pagewatch/internal/fetcher"
	collyfetcher "github.com/JakeFAU/pagewatch/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/pagewatch/internal/fetcher/headless"
	rodfetcher "github.com/JakeFAU/pagewatch/internal/fetcher/rod"
	"github.com/JakeFAU/pagewatch/internal/hash/sha256"
	"github.com/JakeFAU/pagewatch/internal/id/uuid"
	"github.com/JakeFAU/pagewatch/internal/logging"
	"github.com/JakeFAU/pagewatch/internal/monitor"
	"github.com/JakeFAU/pagewatch/internal/normalize"
	"github.com/JakeFAU/pagewatch/internal/notify"
	"github.com/JakeFAU/pagewatch/internal/page"
	gcppublisher "github.com/JakeFAU/pagewatch/internal/publisher/pubsub"
	"github.com/JakeFAU/pagewatch/internal/state"
	"github.com/JakeFAU/pagewatch/internal/storage/gcs"
	localstorage "github.com/JakeFAU/pagewatch/internal/storage/local"
	memorystorage "github.com/JakeFAU/pagewatch/internal/storage/memory"
	"github.com/JakeFAU/pagewatch/internal/telemetry"
)

const serviceName = "pagewatch"

type closer interface {
	Close() error
}

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	checker   *monitor.Checker
	apiServer *api.Server

	browser        closer
	publisher      *gcppublisher.Publisher
	pubsubClient   *pubsub.Client
	storageClient  *storage.Client
	tracerProvider *sdktrace.TracerProvider
}

// Build creates the application's dependencies from cfg.
func Build(ctx context.Context, cfg config.Config, version string) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application",
		zap.String("version", version),
		zap.String("url", cfg.Target.URL),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Bool("headless", cfg.Headless.Enabled),
	)

	app.tracerProvider, err = telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: serviceName,
		Version:     version,
		TargetURL:   cfg.Target.URL,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}

	if err := app.build(ctx); err != nil {
		_ = app.Close(ctx)
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	hasher := sha256.New()

	blobs, err := a.setupStorage(ctx)
	if err != nil {
		return err
	}
	store, err := state.New(blobs, hasher, a.logger.Named("state"))
	if err != nil {
		return fmt.Errorf("state store init failed: %w", err)
	}
	if a.cfg.Storage.SeedDir != "" {
		seeded, err := store.Seed(ctx, a.cfg.Storage.SeedDir)
		if err != nil {
			return fmt.Errorf("state seed failed: %w", err)
		}
		a.logger.Info("state seed checked", zap.String("dir", a.cfg.Storage.SeedDir), zap.Bool("seeded", seeded))
	}

	normalizer, err := normalize.New(a.cfg.Normalize)
	if err != nil {
		return fmt.Errorf("normalizer init failed: %w", err)
	}

	fetch, err := a.setupFetcher()
	if err != nil {
		return err
	}

	notifier, err := a.setupNotifier()
	if err != nil {
		return err
	}

	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return err
	}

	clock := system.New(a.cfg.Location())
	a.checker, err = monitor.New(monitor.Config{
		URL:          a.cfg.Target.URL,
		Headers:      toHeader(a.cfg.Target.Headers),
		Topic:        a.cfg.PubSub.TopicName,
		CheckTimeout: a.cfg.CheckTimeout(),
	}, monitor.Deps{
		Fetcher:    fetch,
		Normalizer: normalizer,
		Hasher:     hasher,
		Differ:     diff.New(a.cfg.Diff),
		Store:      store,
		Notifier:   notifier,
		Publisher:  publisher,
		Clock:      clock,
		IDs:        uuid.New(),
		Logger:     a.logger,
	})
	if err != nil {
		return fmt.Errorf("checker init failed: %w", err)
	}

	a.apiServer = api.NewServer(a.checker, clock, api.Config{
		Secret:         a.cfg.Auth.Secret,
		RequestTimeout: a.cfg.RequestTimeout(),
	}, a.logger)
	return nil
}

func (a *App) setupStorage(ctx context.Context) (page.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storageClient = client
		blobs, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Storage.GCSBucket, Prefix: a.cfg.Storage.Prefix})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.GCSBucket))
		return blobs, nil
	case config.BackendMemory:
		a.logger.Warn("using in-memory storage backend, state is lost on restart")
		return memorystorage.NewBlobStore(), nil
	default:
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.Dir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local storage backend", zap.String("path", blobs.BaseDir()))
		return blobs, nil
	}
}

func (a *App) setupFetcher() (page.Fetcher, error) {
	probe := collyfetcher.New(collyfetcher.Config{
		UserAgent:    a.cfg.HTTP.UserAgent,
		Timeout:      a.cfg.FetchTimeout(),
		MaxBodyBytes: a.cfg.HTTP.MaxBodyBytes,
	})

	var browser fetcher.Browser
	if a.cfg.Headless.Enabled {
		nav := time.Duration(a.cfg.Headless.NavTimeoutSeconds) * time.Second
		settle := time.Duration(a.cfg.Headless.SettleSeconds) * time.Second
		switch a.cfg.Headless.Engine {
		case config.EngineRod:
			f, err := rodfetcher.New(rodfetcher.Config{
				UserAgent:         a.cfg.HTTP.UserAgent,
				NavigationTimeout: nav,
				SettleDelay:       settle,
				RemoteURL:         a.cfg.Headless.RemoteURL,
				ExecPath:          a.cfg.Headless.ExecPath,
			})
			if err != nil {
				return nil, fmt.Errorf("rod fetcher init failed: %w", err)
			}
			browser, a.browser = f, f
		default:
			f, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
				UserAgent:         a.cfg.HTTP.UserAgent,
				NavigationTimeout: nav,
				SettleDelay:       settle,
				ExecPath:          a.cfg.Headless.ExecPath,
			})
			if err != nil {
				return nil, fmt.Errorf("headless fetcher init failed: %w", err)
			}
			browser, a.browser = f, f
		}
		a.logger.Info("headless promotion enabled", zap.String("engine", browser.Name()))
	}

	promoting, err := fetcher.NewPromoting(
		probe,
		browser,
		challenge.NewHeuristic(a.cfg.Headless.ChallengeThreshold),
		a.logger,
	)
	if err != nil {
		return nil, fmt.Errorf("fetcher init failed: %w", err)
	}
	return promoting, nil
}

func (a *App) setupNotifier() (page.Notifier, error) {
	sinks := []notify.Sink{{Name: "log", Notifier: notify.NewLog(a.logger)}}
	if a.cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegram(notify.TelegramConfig{
			Token:    a.cfg.Telegram.Token,
			ChatID:   a.cfg.Telegram.ChatID,
			Endpoint: a.cfg.Telegram.Endpoint,
			Timeout:  time.Duration(a.cfg.Telegram.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("telegram notifier init failed: %w", err)
		}
		sinks = append(sinks, notify.Sink{Name: "telegram", Notifier: tg})
	} else {
		a.logger.Warn("no Telegram token configured, alerts are logged only")
	}
	multi := notify.NewMulti(a.logger, sinks...)
	a.logger.Info("notifiers configured", zap.Strings("sinks", multi.Names()))
	return multi, nil
}

func (a *App) setupPublisher(ctx context.Context) (page.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Debug("no Pub/Sub topic configured, change events disabled")
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClient = client
	a.publisher = gcppublisher.New(client)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return a.publisher, nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Check runs one check.
func (a *App) Check(ctx context.Context) (monitor.Result, error) {
	return a.checker.Check(ctx)
}

// SendTestMessage pushes the fixed test message through every notifier.
func (a *App) SendTestMessage(ctx context.Context) error {
	return a.checker.SendTestMessage(ctx)
}

// Run serves HTTP and blocks until ctx is canceled or a signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases browsers, clients and the tracer provider.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.browser != nil {
		if err := a.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
	}
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pubsub client: %w", err))
		}
	}
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close gcs client: %w", err))
		}
	}
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
		}
	}
	// Sync fails on stdout/stderr for some platforms; nothing to do about it.
	_ = a.logger.Sync()

	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("shutdown incomplete", zap.Error(err))
		return err
	}
	a.logger.Info("shutdown complete")
	return nil
}

func toHeader(m map[string]string) http.Header {
	if len(m) == 0 {
		return nil
	}
	h := make(http.Header, len(m))
	for k, v := range m {
		h.Set(k, v)
	}
	return h
}
