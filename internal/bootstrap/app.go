package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"travelog-backend/internal/catalog"
	"travelog-backend/internal/cities"
	"travelog-backend/internal/connectivity"
	"travelog-backend/internal/enrichment"
	"travelog-backend/internal/imagecache"
	"travelog-backend/internal/materialize"
	"travelog-backend/internal/queue"
	"travelog-backend/internal/services/health"
	"travelog-backend/internal/shared/config"
	"travelog-backend/internal/shared/server"
	"travelog-backend/internal/shared/storage/db"
	"travelog-backend/internal/shared/storage/object"
	localstore "travelog-backend/internal/shared/storage/object/local"
	s3store "travelog-backend/internal/shared/storage/object/s3"
	"travelog-backend/internal/shared/telemetry"
)

// App holds shared dependencies.
type App struct {
	Config            config.Config
	Router            *gin.Engine
	DB                *sql.DB
	Store             object.ObjectStore
	Queue             queue.Client
	CitiesRepo        cities.Repo
	CityChanges       cities.Observer
	ImageCache        imagecache.Cache
	Catalog           *catalog.HTTPClient
	Monitor           *connectivity.Monitor
	Prober            *connectivity.Prober
	Resolver          *enrichment.Resolver
	Materializer      *materialize.Materializer
	Coordinator       *enrichment.Coordinator
	CitiesService     *cities.Service
	CityHandler       *cities.Handler
	EnrichmentHandler *enrichment.Handler
	ImageHandler      *materialize.Handler
	Health            *health.Service

	ctx       context.Context
	cancel    context.CancelFunc
	closers   []func() error
	closeOnce sync.Once
}

// Build prepares every dependency and the router. Background loops start with Start.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}

	appCtx, cancel := context.WithCancel(ctx)
	app := &App{Config: cfg, ctx: appCtx, cancel: cancel}

	if err := app.build(appCtx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	sqlDB, err := buildDB(ctx, a.Config)
	if err != nil {
		return err
	}
	a.DB = sqlDB
	if sqlDB != nil {
		a.closers = append(a.closers, sqlDB.Close)
	}

	if a.DB != nil {
		a.CitiesRepo = &cities.PGRepo{DB: a.DB}
		a.CityChanges = &cities.PGListener{DatabaseURL: a.Config.DatabaseURL}
	} else {
		mem := cities.NewMemoryRepo()
		a.CitiesRepo = mem
		a.CityChanges = mem
	}

	store, err := buildStore(ctx, a.Config)
	if err != nil {
		return err
	}
	a.Store = store

	a.Queue, err = buildQueue(ctx, a.Config)
	if err != nil {
		return err
	}

	a.ImageCache, err = a.buildImageCache(ctx)
	if err != nil {
		return err
	}

	a.Catalog = catalog.NewHTTPClient(a.Config.CatalogBaseURL,
		catalog.WithAPIKey(a.Config.CatalogAPIKey),
		catalog.WithRateLimit(a.Config.CatalogRPS, max(1, int(a.Config.CatalogRPS))),
		catalog.WithCacheSize(a.Config.CatalogCacheSize),
	)

	a.Monitor = connectivity.NewMonitor()
	a.Prober = &connectivity.Prober{
		URL:      a.Config.CatalogBaseURL + a.Config.CatalogHealthPath,
		Interval: a.Config.ProbeInterval,
		Client:   &http.Client{},
		Monitor:  a.Monitor,
	}

	a.Resolver = enrichment.NewResolver(a.Catalog, enrichment.ResolverConfig{
		Collection:     a.Config.CatalogCollection,
		SearchFunction: a.Config.CatalogSearchFunction,
	})
	a.Materializer = materialize.New(a.Store, a.ImageCache,
		materialize.WithFetchTimeout(a.Config.FetchTimeout),
		materialize.WithHashSuffix(a.Config.HashSuffix),
	)
	a.Coordinator = enrichment.NewCoordinator(ctx, a.CitiesRepo, a.Resolver, a.Materializer, a.Monitor, enrichment.Config{
		Concurrency: a.Config.EnrichConcurrency,
	})

	a.CitiesService = &cities.Service{Repo: a.CitiesRepo, Enricher: a.Coordinator}
	a.CityHandler = cities.NewHandler(a.CitiesService)
	a.EnrichmentHandler = enrichment.NewHandler(a.Coordinator)
	a.ImageHandler = materialize.NewHandler(a.Store)

	var pinger health.Pinger
	if a.DB != nil {
		pinger = a.DB
	}
	a.Health = health.NewService(pinger, a.Monitor, a.Coordinator)

	a.Router = server.NewRouter(server.RouterDeps{
		Config:            a.Config,
		Health:            a.Health,
		CityHandler:       a.CityHandler,
		EnrichmentHandler: a.EnrichmentHandler,
		ImageHandler:      a.ImageHandler,
	})
	return nil
}

// Start launches the connectivity prober, the store watcher, the reconnect and
// periodic triggers, and an initial batch run.
func (a *App) Start() error {
	transitions, unsubscribe := a.Monitor.Subscribe()
	go func() {
		defer unsubscribe()
		enrichment.FollowConnectivity(a.ctx, transitions, a.Coordinator)
	}()
	a.RunProber()

	if err := enrichment.WatchStore(a.ctx, a.CityChanges, a.Coordinator); err != nil {
		return fmt.Errorf("watch city changes: %w", err)
	}
	go enrichment.RunPeriodic(a.ctx, a.Config.EnrichInterval, a.Coordinator)

	telemetry.Info("enrichment.trigger.startup", map[string]any{
		"concurrency": a.Config.EnrichConcurrency,
		"interval":    a.Config.EnrichInterval.String(),
	})
	a.Coordinator.TriggerBatchRun()
	return nil
}

// RunProber starts feeding catalog reachability into the monitor.
func (a *App) RunProber() {
	go a.Prober.Run(a.ctx)
}

// Close stops background work and releases resources.
func (a *App) Close() error {
	var firstErr error
	a.closeOnce.Do(func() {
		a.cancel()
		if a.Coordinator != nil {
			a.Coordinator.Close()
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	})
	return firstErr
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.PoolOptions(cfg.EnrichConcurrency))
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if cfg.SQSQueueURL == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.SQSQueueURL)
}

func (a *App) buildImageCache(ctx context.Context) (imagecache.Cache, error) {
	switch a.Config.ImageCacheType {
	case "none":
		return imagecache.Noop{}, nil
	case "redis":
		rc, err := imagecache.NewRedisCache(ctx, a.Config.RedisURL, a.Config.ImageCacheTTL)
		if err != nil {
			if isDevLike(a.Config.Env) {
				log.Printf("bootstrap: redis image cache unavailable; continuing without cache: %v", err)
				return imagecache.Noop{}, nil
			}
			return nil, err
		}
		a.closers = append(a.closers, rc.Close)
		return rc, nil
	default:
		lazy := imagecache.NewLazy(a.openBadger)
		a.closers = append(a.closers, lazy.Close)
		return lazy, nil
	}
}

// openBadger opens this process's badger directory. Badger locks its directory,
// so a second process on the same path runs without a cache in dev.
func (a *App) openBadger() (imagecache.Cache, func() error, error) {
	dir := a.Config.ImageCacheDir
	if a.Config.Process != "" {
		dir = filepath.Join(dir, a.Config.Process)
	}
	bc, err := imagecache.OpenBadger(imagecache.DefaultBadgerConfig(dir, a.Config.ImageCacheTTL))
	if err != nil {
		if isDevLike(a.Config.Env) {
			log.Printf("bootstrap: badger image cache unavailable; continuing without cache: %v", err)
			return imagecache.Noop{}, nil, nil
		}
		telemetry.Error("imagecache.open_failed", map[string]any{"dir": dir, "error": err})
		return nil, nil, err
	}
	return bc, bc.Close, nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
