// Package daemon serves search and analysis over HTTP.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/simpleflo/filescout/internal/analyzer"
	"github.com/simpleflo/filescout/internal/cancel"
	"github.com/simpleflo/filescout/internal/config"
	"github.com/simpleflo/filescout/internal/extract"
	"github.com/simpleflo/filescout/internal/observability"
	"github.com/simpleflo/filescout/internal/pathguard"
	"github.com/simpleflo/filescout/internal/policy"
	"github.com/simpleflo/filescout/internal/search"
	"github.com/simpleflo/filescout/internal/store"
	"github.com/simpleflo/filescout/internal/walker"
)

// Build information, set by the binary.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// ErrAlreadyRunning is returned by Start when another daemon holds the lock.
var ErrAlreadyRunning = errors.New("another filescout daemon is already running")

// Daemon is the filescout HTTP service.
type Daemon struct {
	cfg      *config.Config
	store    *store.Store
	router   chi.Router
	server   *http.Server
	lock     *flock.Flock
	logger   zerolog.Logger
	eventBus *EventBus

	validator *pathguard.Validator
	policy    *policy.Engine
	engine    *search.Engine
	analyzer  *analyzer.Analyzer
	sessions  *cancel.Registry

	// State
	mu        sync.RWMutex
	running   bool
	ready     bool
	startTime time.Time

	// Background analyses run under ctx and are cancelled on shutdown.
	ctx        context.Context
	cancelAll  context.CancelFunc
	shutdownCh chan struct{}
	wg         sync.WaitGroup
}

// New creates a daemon with its store and engines. It does not listen.
func New(cfg *config.Config) (*Daemon, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("create directories: %w", err)
	}

	validator, err := pathguard.New(cfg.Scan.BaseDir)
	if err != nil {
		return nil, err
	}

	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}

	w := walker.New(walker.Options{
		ExcludeDirs:     cfg.Scan.ExcludeDirs,
		ExcludePatterns: cfg.Scan.ExcludePatterns,
	})
	// Archives are classified as such here; whether a run opens them is
	// decided per request, defaulting to cfg.Scan.IncludeArchives.
	dispatch := extract.NewDispatcher(extract.Options{
		IncludeArchives: true,
		MaxContentSize:  cfg.Scan.MaxContentSize,
	})
	sessions := cancel.NewRegistry()

	ctx, cancelAll := context.WithCancel(context.Background())
	d := &Daemon{
		cfg:       cfg,
		store:     st,
		lock:      flock.New(cfg.LockPath()),
		logger:    observability.Logger("daemon"),
		eventBus:  NewEventBus(100),
		validator: validator,
		policy:    policy.New(cfg.Scan.ProtectedPaths),
		engine: search.NewEngine(validator, w, dispatch, st, search.Options{
			FileMatchCap:       cfg.Scan.FileMatchCap,
			MemberMatchCap:     cfg.Scan.MemberMatchCap,
			ContextLines:       cfg.Scan.ContextLines,
			PreviewRadius:      cfg.Scan.PreviewRadius,
			CheckpointInterval: cfg.Scan.CheckpointInterval,
		}),
		analyzer: analyzer.New(validator, w, sessions, analyzer.Config{
			MaxWorkers:        cfg.Analysis.MaxWorkers,
			SampleSize:        cfg.Analysis.SampleSize,
			FullHashThreshold: cfg.Analysis.FullHashThreshold,
			CheckInterval:     cfg.Analysis.CheckInterval,
		}),
		sessions:   sessions,
		ctx:        ctx,
		cancelAll:  cancelAll,
		shutdownCh: make(chan struct{}),
	}

	d.setupRouter()

	return d, nil
}

func (d *Daemon) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(d.loggingMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", d.handleHealth)
		r.Get("/ready", d.handleReady)
		r.Get("/status", d.handleStatus)

		r.Post("/search", d.handleSearch)
		r.Get("/search/stream", d.handleSearchStream)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", d.handleListSessions)
			r.Get("/{sessionID}", d.handleGetSession)
			r.Get("/{sessionID}/results", d.handleListResults)
			r.Delete("/{sessionID}", d.handleDeleteSession)
		})
		r.Get("/results/{resultID}/matches", d.handleListMatches)

		r.Route("/analysis", func(r chi.Router) {
			r.Get("/", d.handleListAnalyses)
			r.Post("/", d.handleStartAnalysis)
			r.Get("/{sessionID}", d.handleGetAnalysis)
			r.Post("/{sessionID}/cancel", d.handleCancelAnalysis)
		})

		r.Get("/fs/list", d.handleListDirectory)
		r.Delete("/fs", d.handleDeletePath)

		r.Get("/events", d.handleSSEEvents)
		r.Get("/events/stats", d.handleSSEStats)
	})

	d.router = r
}

// Handler returns the HTTP handler, for embedding and tests.
func (d *Daemon) Handler() http.Handler {
	return d.router
}

func (d *Daemon) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger := observability.WithRequestID(d.logger, middleware.GetReqID(r.Context()))
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request completed")
	})
}

// Start takes the single-instance lock and begins serving on the
// configured address.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon already running")
	}
	d.mu.Unlock()

	locked, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", d.cfg.LockPath(), err)
	}
	if !locked {
		return ErrAlreadyRunning
	}

	listener, err := net.Listen("tcp", d.cfg.API.Address)
	if err != nil {
		d.lock.Unlock()
		return fmt.Errorf("listen on %s: %w", d.cfg.API.Address, err)
	}

	d.mu.Lock()
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	d.server = &http.Server{
		Handler:      d.router,
		ReadTimeout:  d.cfg.API.ReadTimeout,
		WriteTimeout: d.cfg.API.WriteTimeout,
		IdleTimeout:  d.cfg.API.IdleTimeout,
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			d.logger.Error().Err(err).Msg("server error")
		}
	}()

	d.mu.Lock()
	d.ready = true
	d.mu.Unlock()

	observability.LogEvent(d.logger, observability.EventDaemonStarted, map[string]interface{}{
		"address":  listener.Addr().String(),
		"data_dir": d.cfg.DataDir,
		"base_dir": d.validator.Base(),
	})
	return nil
}

// Stop cancels running analyses, drains the server and releases the lock.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		// Never started: only background analyses and the store to release.
		d.cancelAll()
		d.wg.Wait()
		return d.store.Close()
	}
	d.running = false
	d.ready = false
	d.mu.Unlock()

	d.logger.Info().Msg("stopping daemon")

	close(d.shutdownCh)
	d.cancelAll()

	if d.server != nil {
		if err := d.server.Shutdown(ctx); err != nil {
			d.logger.Error().Err(err).Msg("server shutdown error")
		}
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		d.logger.Warn().Msg("shutdown timeout, some analyses may still be running")
	}

	d.eventBus.Close()
	if d.store != nil {
		d.store.Close()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn().Err(err).Msg("failed to release lock")
	}

	observability.LogEvent(d.logger, observability.EventDaemonStopped, nil)
	return nil
}

// Run runs the daemon until interrupted.
func (d *Daemon) Run() error {
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		d.logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-d.shutdownCh:
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return d.Stop(shutdownCtx)
}

// Ready returns whether the daemon is ready to serve requests.
func (d *Daemon) Ready() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ready
}

// Store returns the daemon's store instance.
func (d *Daemon) Store() *store.Store {
	return d.store
}

// Config returns the daemon's configuration.
func (d *Daemon) Config() *config.Config {
	return d.cfg
}
