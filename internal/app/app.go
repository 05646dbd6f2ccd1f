package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	nats "github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/library-auth/internal/config"
	"github.com/iliyamo/library-auth/internal/database"
	"github.com/iliyamo/library-auth/internal/handler"
	"github.com/iliyamo/library-auth/internal/metrics"
	"github.com/iliyamo/library-auth/internal/middleware"
	"github.com/iliyamo/library-auth/internal/natsverify"
	"github.com/iliyamo/library-auth/internal/queue"
	"github.com/iliyamo/library-auth/internal/repository"
	"github.com/iliyamo/library-auth/internal/router"
	"github.com/iliyamo/library-auth/internal/service"
	"github.com/iliyamo/library-auth/internal/utils"
)

// App owns every long lived resource of the service.
type App struct {
	cfg    config.Config
	log    zerolog.Logger
	db     *sql.DB
	rdb    *redis.Client
	nc     *nats.Conn
	events *queue.Publisher
	ledger *service.Ledger
	echo   *echo.Echo
	wg     sync.WaitGroup
}

// New connects the configured backends and assembles the HTTP server.  The
// broker and NATS are optional: an empty URL disables them.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log}
	users, tokens, err := a.openStores(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	var events service.EventPublisher
	if cfg.RabbitURL != "" {
		a.events = queue.NewPublisher(cfg.RabbitURL, cfg.EventsQueue, log)
		events = a.events
	}
	opts := []service.Option{service.WithLogger(log), service.WithEvents(events)}

	issuer := utils.NewTokenIssuer(cfg.AccessSecret, cfg.Issuer, cfg.AccessTTL)
	creds, err := service.NewCredentials(users, cfg.BcryptCost, cfg.PasswordMinLen)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.ledger = service.NewLedger(tokens, users, cfg.RefreshSecret, cfg.RefreshTTL, opts...)
	sessions := service.NewSessionManager(creds, issuer, a.ledger, users, opts...)

	if cfg.AdminEmail != "" {
		created, err := sessions.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("bootstrap admin: %w", err)
		}
		if created {
			log.Info().Str("email", cfg.AdminEmail).Msg("bootstrap admin created")
		}
	}

	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("library-auth"))
		if err != nil {
			log.Warn().Err(err).Msg("nats connect failed; verify responder disabled")
		} else {
			a.nc = nc
			if _, err := natsverify.NewVerifyHandler(issuer, log).Subscribe(nc, cfg.NATSVerifySubject, cfg.NATSQueueGroup); err != nil {
				log.Warn().Err(err).Str("subject", cfg.NATSVerifySubject).Msg("nats subscribe failed")
			}
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log))
	e.Use(metrics.Middleware())

	profiles := handler.NewProfileHandler(sessions, log)
	router.RegisterRoutes(e, a.readyChecks())
	router.RegisterAuth(e, handler.NewAuthHandler(sessions, log), profiles, issuer)
	router.RegisterAdmin(e, profiles, issuer)
	a.echo = e
	return a, nil
}

func (a *App) openStores(ctx context.Context) (service.UserStore, service.LedgerStore, error) {
	var (
		users  service.UserStore
		tokens service.LedgerStore
	)
	switch a.cfg.StorageBackend {
	case config.BackendMySQL:
		db, err := database.Open(a.cfg.DBUser, a.cfg.DBPass, a.cfg.DBHost, a.cfg.DBPort, a.cfg.DBName)
		if err != nil {
			return nil, nil, fmt.Errorf("open mysql: %w", err)
		}
		a.db = db
		if a.cfg.AutoMigrate {
			if err := database.Migrate(ctx, db); err != nil {
				return nil, nil, err
			}
		}
		users = repository.NewUserRepo(db)
	default:
		a.log.Warn().Msg("using in-memory user store; data is lost on restart")
		users = repository.NewMemoryUserStore()
	}

	switch a.cfg.Ledger() {
	case config.BackendMySQL:
		tokens = repository.NewTokenRepo(a.db)
	case config.BackendRedis:
		rdb, err := config.NewRedisClient(a.cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		a.rdb = rdb
		tokens = repository.NewRedisTokenStore(rdb, a.cfg.Redis.KeyPrefix)
	default:
		tokens = repository.NewMemoryTokenStore()
	}
	a.log.Info().Str("users", a.cfg.StorageBackend).Str("ledger", a.cfg.Ledger()).Msg("stores ready")
	return users, tokens, nil
}

func (a *App) readyChecks() map[string]handler.ReadyCheck {
	checks := map[string]handler.ReadyCheck{}
	if a.db != nil {
		checks["mysql"] = a.db.PingContext
	}
	if a.rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return a.rdb.Ping(ctx).Err() }
	}
	return checks
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler { return a.echo }

// Run starts the background workers and serves HTTP until ctx is cancelled
// or the listener fails.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.ledger.RunSweeper(ctx, a.cfg.SweepInterval, a.cfg.SweepRetention)
	}()
	if a.cfg.RabbitURL != "" {
		consumer := queue.NewAuditConsumer(a.cfg.RabbitURL, a.cfg.EventsQueue, a.cfg.AuditLogPath, a.log)
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error().Err(err).Msg("audit consumer stopped")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + a.cfg.Port
		a.log.Info().Str("addr", addr).Str("env", a.cfg.Env).Msg("listening")
		errCh <- a.echo.Start(addr)
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.echo.Shutdown(shutdownCtx)
	stop()
	a.wg.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close releases connections.  It is safe after a failed New.
func (a *App) Close() {
	if a.nc != nil {
		_ = a.nc.Drain()
	}
	if a.events != nil {
		_ = a.events.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
