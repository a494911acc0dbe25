package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/clients/redis"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/data/db"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/data/repos"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/observability"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/sessiontoken"
)

// App owns the shared infrastructure of both binaries. Router is set by
// NewStudy or NewAgent; the CLI uses the base app from New.
type App struct {
	Log      *logger.Logger
	Cfg      Config
	DB       *gorm.DB
	Repos    repos.Set
	Tokens   *sessiontoken.Issuer
	Redis    *redis.Client
	Services Services
	Router   *gin.Engine

	pg           *db.PostgresService
	closers      []func() error
	otelShutdown func(context.Context) error
}

// New opens the app database and wires repos and the study services.
func New(cfg Config) (*App, error) {
	if err := cfg.ValidateStudy(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pg, err := db.NewPostgresService(log, db.PostgresConfig{DSN: cfg.PostgresDSN})
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	theDB := pg.DB()

	tokens, err := sessiontoken.New(sessiontoken.Config{
		Secret:         cfg.SessionTokenSecret,
		ParticipantTTL: cfg.SessionTokenTTL,
		AdminTTL:       cfg.AdminTokenTTL,
	})
	if err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, err
	}

	reposet := repos.NewSet(theDB, log)
	a := &App{
		Log:      log,
		Cfg:      cfg,
		DB:       theDB,
		Repos:    reposet,
		Tokens:   tokens,
		Services: wireServices(theDB, log, reposet, tokens),
		pg:       pg,
	}
	a.closers = append(a.closers, pg.Close)
	return a, nil
}

// Migrate creates tables and the partial unique indexes of the ledger.
func (a *App) Migrate() error {
	a.Log.Info("Running migrations...")
	return db.AutoMigrateAll(a.DB)
}

func (a *App) initObservability(service string) {
	observability.Init(a.Log)
	a.otelShutdown = observability.InitOTel(context.Background(), a.Log, observability.OtelConfig{
		ServiceName: service,
		Environment: a.Cfg.Environment,
	})
}

func (a *App) initRedis() error {
	client, err := openRedis(a.Log, a.Cfg)
	if err != nil {
		return err
	}
	if client != nil {
		a.Redis = client
		a.closers = append(a.closers, client.Close)
	}
	return nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
		cancel()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	if err := errors.Join(errs...); err != nil {
		a.Log.Warn("close failed", "error", err)
	}
	a.Log.Sync()
}
