package tinyweb

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/indigo-web/tinyweb/config"
	"github.com/indigo-web/tinyweb/dispatcher"
	"github.com/indigo-web/tinyweb/internal/address"
	"github.com/indigo-web/tinyweb/internal/logging"
	"github.com/indigo-web/tinyweb/internal/server/tcp"
	"github.com/indigo-web/tinyweb/internal/users"
	"github.com/rs/zerolog"
)

var ErrBadRoot = errors.New("tinyweb: document root is not a directory")

// App serves static files from the document root. Zero configuration is required, all
// the defaults may be overridden via Tune.
type App struct {
	addr   string
	cfg    *config.Config
	logger *zerolog.Logger
	users  users.Verifier
	hooks  hooks

	mu      sync.Mutex
	server  *tcp.Server
	stopped bool
}

// New returns a new App instance. It panics if the address is malformed.
func New(addr string) *App {
	if _, err := address.Parse(addr); err != nil {
		panic(fmt.Errorf("tinyweb: bad addr: %v", err))
	}

	return &App{
		addr: addr,
		cfg:  config.Default(),
	}
}

// Tune replaces default config.
func (a *App) Tune(cfg *config.Config) *App {
	a.cfg = cfg
	return a
}

// Logger sets the logger to use instead of the one constructed from the config.
func (a *App) Logger(logger zerolog.Logger) *App {
	a.logger = &logger
	return a
}

// Users replaces the in-memory users store, used by the login and register pages.
func (a *App) Users(verifier users.Verifier) *App {
	a.users = verifier
	return a
}

// NotifyOnStart calls the callback as soon as the server is listening.
func (a *App) NotifyOnStart(cb func()) *App {
	a.hooks.OnStart = cb
	return a
}

// NotifyOnStop calls the callback when the server is down and all the clients are
// disconnected.
func (a *App) NotifyOnStop(cb func()) *App {
	a.hooks.OnStop = cb
	return a
}

// Serve starts the server and blocks until Stop is called.
func (a *App) Serve() error {
	info, err := os.Stat(a.cfg.Static.Root)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrBadRoot, a.cfg.Static.Root)
	}

	logger, closer, err := a.getLogger()
	if err != nil {
		return err
	}

	defer func() {
		_ = closer.Close()
	}()

	verifier := a.users
	if verifier == nil {
		verifier = users.NewStore(a.cfg.Users.HashCost)
	}

	pool := dispatcher.New(a.cfg.Workers.Number, a.cfg.Workers.QueueSize, logger)
	server := tcp.NewServer(a.cfg, pool, verifier, logger)
	if err = server.Bind(a.addr); err != nil {
		pool.Close()
		return err
	}

	if !a.setServer(server) {
		server.Stop()
	}

	callIfNotNil(a.hooks.OnStart)
	err = server.Serve()
	pool.Close()
	callIfNotNil(a.hooks.OnStop)

	return err
}

// Addr returns the address the server is listening on, or the empty string if it
// isn't started yet.
func (a *App) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return ""
	}

	return a.server.Addr()
}

// Stop stops the application. The call isn't blocking, the server finishes its current
// event loop iteration, disconnects all the clients and only then Serve returns.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopped = true
	if a.server != nil {
		a.server.Stop()
	}
}

func (a *App) setServer(server *tcp.Server) (ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.server = server
	return !a.stopped
}

func (a *App) getLogger() (zerolog.Logger, io.Closer, error) {
	if a.logger != nil {
		return *a.logger, io.NopCloser(nil), nil
	}

	return logging.New(a.cfg.Log)
}

type hooks struct {
	OnStart, OnStop func()
}

func callIfNotNil(f func()) {
	if f != nil {
		f()
	}
}
