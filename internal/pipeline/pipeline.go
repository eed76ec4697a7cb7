// Package pipeline drives ingestion: scan the export directory, keep only
// the newest file per call, and run each candidate through parse, map, and
// persist on the worker pool.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cad_ingest/internal/config"
	"cad_ingest/internal/filename"
	"cad_ingest/internal/mapper"
	"cad_ingest/internal/metrics"
	"cad_ingest/internal/queue"
	"cad_ingest/internal/selector"
	"cad_ingest/internal/store"
	"cad_ingest/internal/xmlparse"
)

// Outcome is the terminal state of one candidate file.
type Outcome string

const (
	OutcomeCommitted     Outcome = "committed"
	OutcomeAlreadyDone   Outcome = "already_processed"
	OutcomeParseFailed   Outcome = "parse_failed"
	OutcomeMapFailed     Outcome = "map_failed"
	OutcomePersistFailed Outcome = "persist_failed"
)

// Summary describes one completed scan cycle.
type Summary struct {
	BatchID     string        `json:"batch_id"`
	Candidates  int           `json:"candidates"`
	Stale       int           `json:"stale_skipped"`
	Undecodable int           `json:"undecodable"`
	Committed   int           `json:"committed"`
	AlreadyDone int           `json:"already_processed"`
	Failed      int           `json:"failed"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Pipeline owns the scan loop. Scans never overlap: Scan holds a mutex for
// the whole cycle, and Trigger coalesces requests that arrive mid-scan.
type Pipeline struct {
	cfg      config.Config
	store    *store.Store
	queue    *queue.Queue
	log      *zap.Logger
	triggers chan struct{}
	scanMu   sync.Mutex

	statMu   sync.Mutex
	lastScan *Summary
}

func New(cfg config.Config, st *store.Store, q *queue.Queue, log *zap.Logger) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		store:    st,
		queue:    q,
		log:      log,
		triggers: make(chan struct{}, 1),
	}
}

// Trigger requests a scan without blocking. A trigger arriving while one is
// already pending is absorbed; the pending scan will observe its files.
func (p *Pipeline) Trigger() {
	select {
	case p.triggers <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is done, scanning on every trigger and on a poll
// ticker as a safety net for missed filesystem events.
func (p *Pipeline) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(p.cfg.PollIntervalSec) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.triggers:
		case <-ticker.C:
		}
		sum, err := p.Scan(ctx)
		if err != nil {
			p.log.Error("scan failed", zap.Error(err))
			continue
		}
		p.log.Info("scan complete",
			zap.String("batch", sum.BatchID),
			zap.Int("candidates", sum.Candidates),
			zap.Int("stale_skipped", sum.Stale),
			zap.Int("undecodable", sum.Undecodable),
			zap.Int("committed", sum.Committed),
			zap.Int("already_processed", sum.AlreadyDone),
			zap.Int("failed", sum.Failed),
			zap.Duration("elapsed", sum.Elapsed))
	}
}

// Scan performs one full cycle and waits for every candidate to finish.
func (p *Pipeline) Scan(ctx context.Context) (Summary, error) {
	p.scanMu.Lock()
	defer p.scanMu.Unlock()

	start := time.Now()
	sum := Summary{BatchID: uuid.NewString()}

	names, err := p.listExports()
	if err != nil {
		return sum, err
	}

	res := selector.Select(names)
	sum.Stale = len(res.Skip)
	sum.Undecodable = len(res.Undecodable)
	sum.Candidates = len(res.Latest)
	metrics.SkippedStale.Add(float64(len(res.Skip)))
	for _, name := range res.Undecodable {
		p.log.Warn("unrecognized file in export directory", zap.String("file", name))
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, name := range res.Latest {
		name := name
		wg.Add(1)
		job := queue.Job{
			ID:     name,
			Source: "scan:" + sum.BatchID,
			Work: func(jobCtx context.Context) error {
				outcome, err := p.process(jobCtx, name)
				mu.Lock()
				switch outcome {
				case OutcomeCommitted:
					sum.Committed++
				case OutcomeAlreadyDone:
					sum.AlreadyDone++
				default:
					sum.Failed++
				}
				mu.Unlock()
				metrics.CandidatesTotal.WithLabelValues(string(outcome)).Inc()
				return err
			},
			OnFinish: func(error) { wg.Done() },
		}
		if err := p.queue.EnqueueWait(ctx, job); err != nil {
			wg.Done()
			return sum, fmt.Errorf("enqueue %s: %w", name, err)
		}
	}
	wg.Wait()

	sum.Elapsed = time.Since(start)
	metrics.ScanCyclesTotal.Inc()
	metrics.ScanDuration.Observe(sum.Elapsed.Seconds())

	p.statMu.Lock()
	p.lastScan = &sum
	p.statMu.Unlock()
	return sum, nil
}

// LastScan returns the most recent completed cycle, or nil before the first.
func (p *Pipeline) LastScan() *Summary {
	p.statMu.Lock()
	defer p.statMu.Unlock()
	return p.lastScan
}

func (p *Pipeline) listExports() ([]string, error) {
	entries, err := os.ReadDir(p.cfg.WatchDir)
	if err != nil {
		return nil, fmt.Errorf("read watch dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".xml") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// process takes one candidate from raw bytes to a committed call, recording
// a failed ledger row for any error past the idempotency check. The ledger
// row is what keeps a bad file from burning a worker on every scan.
func (p *Pipeline) process(ctx context.Context, name string) (Outcome, error) {
	decoded, err := filename.Decode(name)
	if err != nil {
		// Selector only hands over decodable names; reaching here means the
		// caller bypassed it.
		return OutcomeParseFailed, err
	}

	done, err := p.store.HasProcessed(ctx, name)
	if err != nil {
		p.recordFailure(ctx, decoded, fmt.Sprintf("ledger check: %v", err))
		return OutcomePersistFailed, err
	}
	if done {
		return OutcomeAlreadyDone, nil
	}

	data, err := os.ReadFile(filepath.Join(p.cfg.WatchDir, name))
	if err != nil {
		p.recordFailure(ctx, decoded, fmt.Sprintf("read: %v", err))
		return OutcomeParseFailed, err
	}

	root, err := xmlparse.Parse(data)
	if err != nil {
		p.recordFailure(ctx, decoded, fmt.Sprintf("parse: %v", err))
		return OutcomeParseFailed, err
	}

	doc, err := mapper.Map(root, decoded)
	if err != nil {
		p.recordFailure(ctx, decoded, fmt.Sprintf("map: %v", err))
		return OutcomeMapFailed, err
	}

	src := store.Source{Filename: name, CallNumber: decoded.CallNumber, TimestampInt: decoded.TimestampInt}
	if err := p.store.PersistCallDocument(ctx, doc, src); err != nil {
		p.recordFailure(ctx, decoded, fmt.Sprintf("persist: %v", err))
		return OutcomePersistFailed, err
	}

	p.log.Info("call committed",
		zap.String("file", name),
		zap.String("call_number", decoded.CallNumber))
	return OutcomeCommitted, nil
}

func (p *Pipeline) recordFailure(ctx context.Context, d filename.Decoded, reason string) {
	// When the failure being recorded is the per-candidate timeout, the job
	// context has already expired, so the ledger write runs detached from it
	// on its own short deadline.
	ledgerCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.store.RecordFailure(ledgerCtx, d.Name, d.CallNumber, d.TimestampInt, reason); err != nil {
		p.log.Error("ledger failure write failed",
			zap.String("file", d.Name),
			zap.Error(err))
	}
}
