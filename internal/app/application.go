// Package app wires the board components together and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tacboard/internal/api"
	"tacboard/internal/auth"
	"tacboard/internal/config"
	"tacboard/internal/database"
	"tacboard/internal/hub"
	"tacboard/internal/logger"
	"tacboard/internal/router"
	"tacboard/internal/server"
	"tacboard/internal/state"
	"tacboard/internal/transport"
	pkgdatabase "tacboard/pkg/database"
	"tacboard/pkg/interfaces"
)

// Application coordinates every component of a running board.
type Application struct {
	config    *config.Config
	log       *logger.Logger
	dbManager *database.Manager
	registry  *transport.Registry
	store     *state.Store
	hub       *hub.Hub
	board     *server.Server

	httpServer   *http.Server
	httpListener net.Listener

	errCh chan error
}

// NewApplication builds the components in dependency order:
// journal, registry and store, hub, TCP listener, then HTTP.
func NewApplication(cfg *config.Config, log *logger.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}

	app := &Application{
		config:   cfg,
		log:      log,
		registry: transport.NewRegistry(),
		store:    state.NewStore(),
		errCh:    make(chan error, 2),
	}

	var journal interfaces.Journal = interfaces.NopJournal{}
	if cfg.Database.Enabled {
		dbConfig := pkgdatabase.DefaultConfig()
		dbConfig.DatabasePath = cfg.Database.Path
		dbConfig.WriteTimeout = cfg.Database.Timeout

		dbManager, err := database.NewManager(dbConfig, log.WithPrefix("db"))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize journal: %w", err)
		}
		app.dbManager = dbManager
		journal = dbManager
	}

	var limiter *router.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = router.NewRateLimiter(cfg.RateLimit.MessagesPerSecond, cfg.RateLimit.Burst)
	}

	app.hub = hub.NewHub(app.registry, app.store, auth.NewAuthenticator(cfg.Server.Password), hub.Options{
		QueueSize: cfg.Server.QueueSize,
		Journal:   journal,
		Limiter:   limiter,
		Logger:    log.WithPrefix("hub"),
	})
	app.board = server.New(cfg.Server, app.hub, app.registry, log.WithPrefix("tcp"))

	if cfg.HTTP.Enabled {
		var events interfaces.EventStore
		if app.dbManager != nil {
			events = app.dbManager
		}
		gin.SetMode(gin.ReleaseMode)
		gin.DefaultWriter = log.Writer(logger.LevelDebug)
		app.httpServer = &http.Server{
			Addr:         net.JoinHostPort(cfg.HTTP.Host, fmt.Sprint(cfg.HTTP.Port)),
			Handler:      api.NewServer(app.hub, events, app.board, log.WithPrefix("http")),
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
		}
	}

	return app, nil
}

// Start binds the listeners and begins serving. A bind failure is returned
// and nothing is left running.
func (app *Application) Start(ctx context.Context) error {
	if err := app.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start message hub: %w", err)
	}

	if err := app.board.Listen(); err != nil {
		_ = app.hub.Stop()
		return err
	}

	if app.httpServer != nil {
		listener, err := net.Listen("tcp", app.httpServer.Addr)
		if err != nil {
			_ = app.board.Shutdown(ctx)
			_ = app.hub.Stop()
			return fmt.Errorf("bind HTTP %s: %w", app.httpServer.Addr, err)
		}
		app.httpListener = listener
		app.log.Info("Admin API listening on %s", listener.Addr())

		go func() {
			if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				app.errCh <- fmt.Errorf("HTTP server error: %w", err)
			}
		}()
	}

	go func() {
		if err := app.board.Serve(ctx); err != nil {
			app.errCh <- fmt.Errorf("board listener error: %w", err)
		}
	}()

	app.log.Info("Tacboard started on %s", app.board.Addr())
	return nil
}

// Errors reports fatal errors from the serving goroutines.
func (app *Application) Errors() <-chan error {
	return app.errCh
}

// Stop shuts down in reverse order: HTTP, listener and connections, hub,
// journal.
func (app *Application) Stop(ctx context.Context) error {
	app.log.Info("Shutting down tacboard")

	if app.httpServer != nil {
		if err := app.httpServer.Shutdown(ctx); err != nil {
			app.log.Warn("HTTP server shutdown error: %v", err)
		}
	}

	if err := app.board.Shutdown(ctx); err != nil {
		app.log.Warn("Board listener shutdown error: %v", err)
	}

	if err := app.hub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		app.log.Warn("Message hub shutdown error: %v", err)
	}

	if app.dbManager != nil {
		if err := app.dbManager.Close(); err != nil {
			app.log.Warn("Journal shutdown error: %v", err)
		}
	}

	app.log.Info("Tacboard shutdown complete")
	return nil
}

// BoardAddr returns the TCP listener address once started.
func (app *Application) BoardAddr() net.Addr {
	return app.board.Addr()
}

// HTTPAddr returns the admin API address, or nil when HTTP is disabled.
func (app *Application) HTTPAddr() net.Addr {
	if app.httpListener == nil {
		return nil
	}
	return app.httpListener.Addr()
}

// Board exposes the running board for status reporting.
func (app *Application) Board() interfaces.Board {
	return app.hub
}

// shutdownTimeout bounds Stop when callers do not supply a deadline.
const shutdownTimeout = 10 * time.Second

// Shutdown is Stop with a default deadline.
func (app *Application) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return app.Stop(ctx)
}
