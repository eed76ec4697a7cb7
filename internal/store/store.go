// Package store owns the relational schema the ingestion pipeline writes:
// the call aggregate tables and the processed-file ledger. SQLite is the
// default engine; Postgres is selectable by driver name and shares the same
// queries via placeholder rebinding.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Store wraps database access for calls and the processed-file ledger.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects using driver "sqlite" or "postgres" and runs migrations.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case "sqlite":
		// Pooled sqlite connections each need the pragma, so it rides on
		// the DSN instead of a one-off Exec; without it the ON DELETE
		// CASCADE clauses are declared but not enforced.
		if strings.Contains(dsn, "?") {
			dsn += "&_pragma=foreign_keys(1)"
		} else {
			dsn += "?_pragma=foreign_keys(1)"
		}
	case "postgres":
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Health returns an error if the database is not reachable.
func (s *Store) Health(ctx context.Context) error {
	var v int
	if err := s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&v); err != nil {
		return fmt.Errorf("db health: %w", err)
	}
	return nil
}

// rebind converts ?-style placeholders to $N for Postgres.
func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *Store) idColumn() string {
	if s.driver == "postgres" {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (s *Store) migrate() error {
	id := s.idColumn()
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS calls (
			id %s,
			call_number TEXT NOT NULL UNIQUE,
			external_id TEXT NOT NULL,
			source TEXT,
			caller_name TEXT,
			caller_phone TEXT,
			nature TEXT,
			created_time TEXT,
			closed_time TEXT,
			closed INTEGER NOT NULL DEFAULT 0,
			canceled INTEGER NOT NULL DEFAULT 0,
			alarm_level TEXT,
			emd_code TEXT,
			source_file TEXT NOT NULL,
			ingested_at TIMESTAMP NOT NULL
		);`, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS locations (
			id %s,
			call_id BIGINT NOT NULL REFERENCES calls(id) ON DELETE CASCADE,
			address TEXT,
			city TEXT,
			state TEXT,
			zip TEXT,
			latitude REAL,
			longitude REAL
		);`, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS agency_contexts (
			id %s,
			call_id BIGINT NOT NULL REFERENCES calls(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			agency_type TEXT,
			call_type TEXT,
			priority TEXT,
			status TEXT,
			closed INTEGER NOT NULL DEFAULT 0,
			canceled INTEGER NOT NULL DEFAULT 0
		);`, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS units (
			id %s,
			call_id BIGINT NOT NULL REFERENCES calls(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			unit_number TEXT NOT NULL,
			unit_type TEXT,
			dispatch_time TEXT,
			enroute_time TEXT,
			arrive_time TEXT,
			clear_time TEXT
		);`, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS unit_personnel (
			id %s,
			unit_id BIGINT NOT NULL REFERENCES units(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			name TEXT NOT NULL,
			role TEXT
		);`, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS unit_logs (
			id %s,
			unit_id BIGINT NOT NULL REFERENCES units(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			log_time TEXT,
			status TEXT NOT NULL,
			location TEXT
		);`, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS unit_dispositions (
			id %s,
			unit_id BIGINT NOT NULL REFERENCES units(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			code TEXT NOT NULL,
			description TEXT
		);`, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS narratives (
			id %s,
			call_id BIGINT NOT NULL REFERENCES calls(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			entry_time TEXT,
			entered_by TEXT,
			text TEXT NOT NULL
		);`, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS persons (
			id %s,
			call_id BIGINT NOT NULL REFERENCES calls(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			name TEXT NOT NULL,
			role TEXT,
			age TEXT,
			gender TEXT,
			address TEXT
		);`, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS vehicles (
			id %s,
			call_id BIGINT NOT NULL REFERENCES calls(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			plate TEXT,
			state TEXT,
			make TEXT,
			model TEXT,
			year TEXT,
			color TEXT
		);`, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS incidents (
			id %s,
			call_id BIGINT NOT NULL REFERENCES calls(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			agency_type TEXT,
			incident_number TEXT NOT NULL
		);`, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS call_dispositions (
			id %s,
			call_id BIGINT NOT NULL REFERENCES calls(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			agency_type TEXT,
			code TEXT NOT NULL,
			description TEXT
		);`, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS processed_files (
			id %s,
			filename TEXT NOT NULL UNIQUE,
			call_number TEXT NOT NULL,
			timestamp_int BIGINT NOT NULL,
			status TEXT NOT NULL,
			reason TEXT,
			committed_at TIMESTAMP NOT NULL
		);`, id),
		`CREATE INDEX IF NOT EXISTS idx_processed_files_call ON processed_files(call_number);`,
		`CREATE INDEX IF NOT EXISTS idx_units_call ON units(call_id);`,
		`CREATE INDEX IF NOT EXISTS idx_narratives_call ON narratives(call_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
