package store

import (
	"context"
	"database/sql"
	"time"
)

// Ledger statuses. A row with either status blocks reprocessing; failed
// rows are only cleared by an explicit operator action.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// LedgerEntry is one processed_files row.
type LedgerEntry struct {
	Filename     string    `json:"filename"`
	CallNumber   string    `json:"call_number"`
	TimestampInt int64     `json:"timestamp_int"`
	Status       string    `json:"status"`
	Reason       *string   `json:"reason,omitempty"`
	CommittedAt  time.Time `json:"committed_at"`
}

// HasProcessed reports whether filename already has a ledger row. Both
// success and failed rows short-circuit the pipeline; this runs once per
// candidate per scan, so it is a single indexed lookup.
func (s *Store) HasProcessed(ctx context.Context, filename string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM processed_files WHERE filename = ?`), filename).Scan(&one)
	switch err {
	case nil:
		return true, nil
	case sql.ErrNoRows:
		return false, nil
	default:
		return false, err
	}
}

// RecordFailure writes (or overwrites) a failed ledger row. It runs in its
// own transaction after the persistence transaction has rolled back.
func (s *Store) RecordFailure(ctx context.Context, filename, callNumber string, timestampInt int64, reason string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO processed_files (filename, call_number, timestamp_int, status, reason, committed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(filename) DO UPDATE SET status=excluded.status, reason=excluded.reason, committed_at=excluded.committed_at`),
		filename, callNumber, timestampInt, StatusFailed, reason, now())
	return err
}

// ClearFailure deletes a failed ledger row so the next scan retries the
// file. Success rows are never cleared here; committed work stays final.
func (s *Store) ClearFailure(ctx context.Context, filename string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM processed_files WHERE filename = ? AND status = ?`), filename, StatusFailed)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListProcessed returns the most recent ledger entries for status reporting.
func (s *Store) ListProcessed(ctx context.Context, limit int) ([]LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT filename, call_number, timestamp_int, status, reason, committed_at
		FROM processed_files ORDER BY committed_at DESC, filename DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var reason sql.NullString
		if err := rows.Scan(&e.Filename, &e.CallNumber, &e.TimestampInt, &e.Status, &reason, &e.CommittedAt); err != nil {
			return nil, err
		}
		if reason.Valid {
			e.Reason = &reason.String
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
