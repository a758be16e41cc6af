package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"jobtailor/internal/artifacts"
	"jobtailor/internal/shared/config"
	"jobtailor/internal/shared/server"
	"jobtailor/internal/shared/storage/db"
	"jobtailor/internal/shared/storage/object"
	localstore "jobtailor/internal/shared/storage/object/local"
	s3store "jobtailor/internal/shared/storage/object/s3"
	"jobtailor/internal/shared/storage/session"
	"jobtailor/internal/tailorapi"
	"jobtailor/internal/tailoring"
)

// App holds shared dependencies.
type App struct {
	Config      config.Config
	Router      *gin.Engine
	DB          *sql.DB
	Redis       *redis.Client
	Sessions    session.Store
	Store       object.ObjectStore
	API         *tailorapi.Client
	Downloader  *artifacts.Downloader
	Coordinator *tailoring.Coordinator
	Handler     *tailoring.Handler
}

// Options tweak how Build wires the coordinator.
type Options struct {
	// Guard replaces the default flag guard, e.g. with a terminal signal guard.
	Guard tailoring.Guard
}

// Build prepares every dependency and the router.
func Build(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	app := &App{Config: cfg}

	sessions, err := app.buildSessions(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Sessions = sessions

	store, err := buildStore(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Store = store

	api, err := tailorapi.New(cfg.TailorAPIURL, cfg.TailorAPIToken, cfg.TailorAPITimeout)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("tailor api client: %w", err)
	}
	app.API = api

	app.Downloader = artifacts.New(store, cfg.SessionNamespace, 0)
	app.Coordinator = tailoring.NewCoordinator(api, tailoring.NewRecovery(sessions, cfg.SessionNamespace), tailoring.Options{
		PollInterval: cfg.PollInterval,
		Guard:        opts.Guard,
	})
	app.Handler = tailoring.NewHandler(app.Coordinator, app.Downloader)
	app.Router = server.NewRouter(cfg, app.Handler)

	log.Printf("bootstrap: session store=%s object store=%s api=%s", cfg.SessionStore, cfg.ObjectStoreType, cfg.TailorAPIURL)
	return app, nil
}

// Close stops polling and releases connections.
func (a *App) Close() {
	if a.Coordinator != nil {
		a.Coordinator.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.Printf("bootstrap: redis close: %v", err)
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			log.Printf("bootstrap: db close: %v", err)
		}
	}
}

func (a *App) buildSessions(ctx context.Context) (session.Store, error) {
	cfg := a.Config
	switch cfg.SessionStore {
	case config.SessionStoreMemory:
		return session.NewMemoryStore(), nil

	case config.SessionStoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return a.fallback(fmt.Errorf("redis ping: %w", err))
		}
		a.Redis = client
		return session.NewRedisStore(client, cfg.Redis.TTL), nil

	case config.SessionStorePostgres:
		sqlDB, err := openAndMigrate(ctx, db.DriverPostgres, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
		if err != nil {
			return a.fallback(err)
		}
		a.DB = sqlDB
		return session.NewPGStore(sqlDB), nil

	default:
		dsn, err := db.SQLiteDSN(cfg.SQLitePath)
		if err != nil {
			return a.fallback(err)
		}
		sqlDB, err := openAndMigrate(ctx, db.DriverSQLite, dsn, db.OptionsFromEnv(db.DefaultSQLiteOptions()))
		if err != nil {
			return a.fallback(err)
		}
		a.DB = sqlDB
		return session.NewSQLiteStore(sqlDB), nil
	}
}

// fallback degrades to the in-memory store in dev-like environments.
func (a *App) fallback(err error) (session.Store, error) {
	if isDevLike(a.Config.Env) {
		log.Printf("bootstrap: %s session store unavailable; using memory: %v", a.Config.SessionStore, err)
		return session.NewMemoryStore(), nil
	}
	return nil, err
}

func openAndMigrate(ctx context.Context, driver, dsn string, opts db.Options) (*sql.DB, error) {
	sqlDB, err := db.Connect(ctx, driver, dsn, opts)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB, driver); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
