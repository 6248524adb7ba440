package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/qrcare/internal/access"
	"github.com/jwalitptl/qrcare/internal/config"
	"github.com/jwalitptl/qrcare/internal/email"
	"github.com/jwalitptl/qrcare/internal/repository"
	"github.com/jwalitptl/qrcare/internal/repository/memory"
	"github.com/jwalitptl/qrcare/internal/repository/postgres"
	"github.com/jwalitptl/qrcare/internal/router"
	"github.com/jwalitptl/qrcare/internal/service/analytics"
	"github.com/jwalitptl/qrcare/internal/service/auth"
	"github.com/jwalitptl/qrcare/internal/service/patient"
	"github.com/jwalitptl/qrcare/internal/service/qr"
	"github.com/jwalitptl/qrcare/internal/service/visit"
	"github.com/jwalitptl/qrcare/internal/session"
	"github.com/jwalitptl/qrcare/internal/storage"
	pkgauth "github.com/jwalitptl/qrcare/pkg/auth"
	"github.com/jwalitptl/qrcare/pkg/logger"
	"github.com/jwalitptl/qrcare/pkg/metrics"
	"github.com/jwalitptl/qrcare/pkg/security"
)

// app holds everything built from the configuration.
type app struct {
	cfg      *config.Config
	db       *sqlx.DB
	redis    *redis.Client
	store    *repository.Store
	metrics  *metrics.Metrics
	services router.Services
	deps     router.Dependencies
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	paths, _ := cmd.Flags().GetStringSlice("config-path")
	cfg, err := config.Load(paths...)
	if err != nil {
		return nil, err
	}
	logger.Setup(logger.Config{Level: cfg.Log.Level, Console: cfg.Log.Console})
	return cfg, nil
}

func openStore(cfg *config.Config) (*sqlx.DB, *repository.Store, error) {
	if cfg.Database.Driver == "memory" {
		log.Warn().Msg("using in-memory store, data is lost on restart")
		return nil, memory.NewStore(), nil
	}
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return db, postgres.NewStore(db), nil
}

// newApp wires storage, services and HTTP dependencies.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	var err error
	a.db, a.store, err = openStore(cfg)
	if err != nil {
		return nil, err
	}

	a.metrics = metrics.New(cfg.Metrics.Namespace, prometheus.DefaultRegisterer)

	health := map[string]repository.Pinger{"database": a.store.Health}

	var sessionStore session.Store
	switch cfg.Session.Store {
	case "redis":
		a.redis, err = session.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			a.close()
			return nil, err
		}
		sessionStore = session.NewRedisStore(a.redis)
		client := a.redis
		health["redis"] = pingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() })
	default:
		sessionStore = session.NewMemoryStore(time.Minute)
	}

	files, err := storage.NewOS(cfg.Storage.Root, cfg.Storage.MaxUploadBytes)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to prepare upload storage: %w", err)
	}

	hasher := security.NewBcryptHasher(cfg.Security.BcryptCost, cfg.Security.MinPasswordLength)
	mailer := email.NewService(email.Config{
		Enabled:  cfg.Mail.Enabled,
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
		BaseURL:  cfg.Server.BaseURL,
	})

	secret := cfg.Security.CapabilitySecret
	if secret == "" {
		log.Warn().Msg("security.capability_secret is empty, doctor capabilities use a development secret")
		secret = "qrcare-development-capability-secret"
	}
	issuer := pkgauth.NewCapabilityIssuer(secret)

	patientSvc := patient.NewService(a.store.Patients, a.store.Visits, files, hasher, mailer, a.metrics)
	a.services = router.Services{
		QR:       qr.NewService(a.store.QR, a.metrics),
		Patients: patientSvc,
		Visits:   visit.NewService(a.store.Patients, a.store.Visits, files, a.metrics),
		Auth: auth.NewService(a.store.Operators, a.store.Doctors, a.store.Patients, patientSvc, hasher, issuer, a.metrics, auth.Config{
			MasterOperatorKey: cfg.Security.MasterOperatorKey,
			SessionTTL:        cfg.Session.TTL,
		}),
		Analytics: analytics.NewService(a.store.Analytics),
	}

	a.deps = router.Dependencies{
		Services: a.services,
		Sessions: session.NewManager(sessionStore, session.Config{
			CookieName: cfg.Session.CookieName,
			TTL:        cfg.Session.TTL,
			Secure:     cfg.Session.Secure,
		}),
		Gate:     access.NewGate(issuer),
		Files:    files,
		Metrics:  a.metrics,
		Gatherer: prometheus.DefaultGatherer,
		Health:   health,
	}
	return a, nil
}

func (a *app) routerConfig() router.RouterConfig {
	return router.RouterConfig{
		Mode:           a.cfg.Server.Mode,
		TLS:            a.cfg.Session.Secure,
		CORSOrigins:    a.cfg.Server.CORSOrigins,
		LoginPerMinute: int(a.cfg.Security.LoginRatePerMinute),
		LoginBurst:     a.cfg.Security.LoginBurst,
		MaxUploadBytes: a.cfg.Storage.MaxUploadBytes,
		RequestTimeout: a.cfg.Server.WriteTimeout,
	}
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close redis client")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}
}
