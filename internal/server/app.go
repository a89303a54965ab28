// Package server initializes and runs the identity service.
// It opens the database, applies migrations, selects the SMS provider,
// and runs the gRPC server, the REST gateway and the code janitor until
// a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/coursekeeper/internal/logging"
	"github.com/dmitrijs2005/coursekeeper/internal/server/api"
	"github.com/dmitrijs2005/coursekeeper/internal/server/auth"
	"github.com/dmitrijs2005/coursekeeper/internal/server/config"
	"github.com/dmitrijs2005/coursekeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/coursekeeper/internal/server/janitor"
	"github.com/dmitrijs2005/coursekeeper/internal/server/ratelimit"
	"github.com/dmitrijs2005/coursekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/coursekeeper/internal/server/services"
	"github.com/dmitrijs2005/coursekeeper/internal/server/sms"
	_ "github.com/jackc/pgx/v5/stdlib"

	gs "github.com/dmitrijs2005/coursekeeper/internal/server/grpc"
)

// seams for tests
var (
	logOutput io.Writer = os.Stdout

	openDB = func(dsn string) (*sql.DB, error) {
		return sql.Open("pgx", dsn)
	}

	runMigrations = func(ctx context.Context, m *repomanager.PostgresRepositoryManager, db *sql.DB) error {
		return m.RunMigrations(ctx, db)
	}
)

// App owns the wired components and the connections they share.
type App struct {
	config  *config.Config
	logger  logging.Logger
	issuer  *auth.Issuer
	api     *api.API
	codes   *services.VerificationService
	limiter *ratelimit.Limiter
	closers []io.Closer
}

// NewApp connects to the database, applies migrations and wires the
// services. Redis is dialled only when c.RedisURL is set.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.New(logOutput, c.LogFormat, c.LogLevel)

	db, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := runMigrations(ctx, rm, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	app := &App{config: c, logger: logger, closers: []io.Closer{db}}

	if c.RedisURL != "" {
		client, err := ratelimit.NewRedisClient(ctx, c.RedisURL)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("redis init error: %w", err)
		}
		app.closers = append(app.closers, client)
		app.limiter = ratelimit.NewLimiter(client, c.RequestsPerMinute, ratelimit.DefaultWindow, c.TrustProxyHeaders, logger)
	}

	provider := sms.NewProvider(c, logger)
	app.issuer = auth.NewIssuer([]byte(c.SecretKey), c.AccessTokenValidityDuration)
	app.codes = services.NewVerificationService(db, rm, provider, logger)
	us := services.NewUserService(db, rm, app.codes, app.issuer, logger)
	app.api = api.New(app.codes, us, logger)

	logger.Info(ctx, "App initialized", "sms_provider", provider.Name(), "rate_limit", app.limiter != nil)

	return app, nil
}

// Close releases the database and Redis connections.
func (app *App) Close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil {
			app.logger.Warn(context.Background(), "close failed", "error", err)
		}
	}
	app.closers = nil
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.api, app.issuer)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if app.config.EndpointAddrHTTP == "" {
		app.logger.Info(ctx, "HTTP gateway disabled")
		return
	}
	s := httpapi.NewHTTPServer(app.config.EndpointAddrHTTP, app.logger, app.api, app.issuer, app.limiter, app.config.CORSAllowedOrigins)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startJanitor(ctx context.Context, cancelFunc context.CancelFunc) {
	j := janitor.New(app.codes, app.config.JanitorSchedule, app.logger)
	if err := j.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run starts every component and blocks until ctx is cancelled, a signal
// arrives or a component fails.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(ctx, cancelFunc)

	var wg sync.WaitGroup

	for _, start := range []func(context.Context, context.CancelFunc){
		app.startGRPCServer,
		app.startHTTPServer,
		app.startJanitor,
	} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start(ctx, cancelFunc)
		}()
	}

	wg.Wait()

	app.Close()
	app.logger.Info(ctx, "App stopped")
}
