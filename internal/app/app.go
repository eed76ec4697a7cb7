// Package app wires the service together: store, worker pool, pipeline,
// watcher, and the ops HTTP surface.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"cad_ingest/internal/config"
	"cad_ingest/internal/httpapi"
	"cad_ingest/internal/pipeline"
	"cad_ingest/internal/queue"
	"cad_ingest/internal/store"
	"cad_ingest/internal/watch"
)

// App owns the long-lived components.
type App struct {
	cfg     config.Config
	log     *zap.Logger
	store   *store.Store
	queue   *queue.Queue
	pipe    *pipeline.Pipeline
	watcher *watch.Watcher
	mux     *http.ServeMux
}

func New(cfg config.Config, log *zap.Logger) (*App, error) {
	st, err := store.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	q := queue.New(cfg.QueueSize, cfg.WorkerCount, time.Duration(cfg.CandidateTimeoutSec)*time.Second, log)
	pipe := pipeline.New(cfg, st, q, log)
	watcher := watch.New(cfg, pipe, log)

	mux := http.NewServeMux()
	httpapi.NewRouter(cfg, st, pipe, q, log).Register(mux)

	return &App{cfg: cfg, log: log, store: st, queue: q, pipe: pipe, watcher: watcher, mux: mux}, nil
}

// Run starts every component and blocks until ctx is canceled or the HTTP
// server fails. The initial trigger sweeps up files that arrived while the
// service was down.
func (a *App) Run(ctx context.Context) error {
	a.queue.Start(ctx)
	go a.pipe.Run(ctx)
	if err := a.watcher.Start(ctx); err != nil {
		return err
	}
	a.pipe.Trigger()

	srv := &http.Server{Addr: a.cfg.HTTPPort, Handler: a.mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		a.queue.Stop(shutdownCtx)
	}()

	a.log.Info("http listening",
		zap.String("addr", a.cfg.HTTPPort),
		zap.String("watch_dir", a.cfg.WatchDir),
		zap.String("db_driver", a.cfg.DBDriver))
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close releases resources not tied to the run context.
func (a *App) Close() error { return a.store.Close() }

func (a *App) Pipeline() *pipeline.Pipeline { return a.pipe }
func (a *App) Store() *store.Store          { return a.store }
func (a *App) Mux() *http.ServeMux          { return a.mux }
