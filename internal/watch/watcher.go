// Package watch turns filesystem events in the export directory into scan
// triggers.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"cad_ingest/internal/config"
	"cad_ingest/internal/pipeline"
)

// Watcher monitors the export directory for new XML files. Events only
// request a scan; candidate selection and idempotency stay in the pipeline,
// so a missed or duplicated event is harmless.
type Watcher struct {
	cfg  config.Config
	pipe *pipeline.Pipeline
	log  *zap.Logger
}

func New(cfg config.Config, pipe *pipeline.Pipeline, log *zap.Logger) *Watcher {
	return &Watcher{cfg: cfg, pipe: pipe, log: log}
}

func (w *Watcher) Start(ctx context.Context) error {
	info, err := os.Stat(w.cfg.WatchDir)
	if err != nil {
		return fmt.Errorf("watch dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch dir %s is not a directory", w.cfg.WatchDir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-watcher.Events:
				if evt.Op&(fsnotify.Create|fsnotify.Rename) != 0 && isExport(evt.Name) {
					w.log.Debug("export file event", zap.String("file", filepath.Base(evt.Name)))
					w.pipe.Trigger()
				}
			case err := <-watcher.Errors:
				w.log.Warn("watcher error", zap.Error(err))
			}
		}
	}()
	return watcher.Add(w.cfg.WatchDir)
}

func isExport(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xml")
}
