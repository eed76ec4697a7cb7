package store

import (
	"context"
	"database/sql"
	"fmt"

	"cad_ingest/internal/model"
)

// Source identifies the export file a persistence unit came from.
type Source struct {
	Filename     string
	CallNumber   string
	TimestampInt int64
}

// PersistError wraps any failure inside the persistence transaction.
type PersistError struct {
	Filename string
	Err      error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Filename, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// PersistCallDocument writes one call aggregate as a single atomic unit:
// upsert the call row keyed by call number, delete every existing child,
// insert the new children in document order, and record ledger success for
// the source file. Any failure rolls the whole unit back; the call is never
// left partially updated.
func (s *Store) PersistCallDocument(ctx context.Context, doc *model.CallDocument, src Source) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &PersistError{Filename: src.Filename, Err: err}
	}
	defer tx.Rollback()

	callID, err := s.upsertCall(ctx, tx, &doc.Call, src)
	if err != nil {
		return &PersistError{Filename: src.Filename, Err: err}
	}
	if err := s.deleteChildren(ctx, tx, callID); err != nil {
		return &PersistError{Filename: src.Filename, Err: err}
	}
	if err := s.insertChildren(ctx, tx, callID, doc); err != nil {
		return &PersistError{Filename: src.Filename, Err: err}
	}

	// Ledger success rides in the same transaction: a commit means both the
	// rows and the idempotency record, or neither.
	_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO processed_files (filename, call_number, timestamp_int, status, reason, committed_at)
		VALUES (?, ?, ?, ?, NULL, ?)
		ON CONFLICT(filename) DO UPDATE SET status=excluded.status, reason=NULL, committed_at=excluded.committed_at`),
		src.Filename, src.CallNumber, src.TimestampInt, StatusSuccess, now())
	if err != nil {
		return &PersistError{Filename: src.Filename, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &PersistError{Filename: src.Filename, Err: err}
	}
	return nil
}

func (s *Store) upsertCall(ctx context.Context, tx *sql.Tx, c *model.Call, src Source) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, s.rebind(`INSERT INTO calls
		(call_number, external_id, source, caller_name, caller_phone, nature, created_time, closed_time, closed, canceled, alarm_level, emd_code, source_file, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(call_number) DO UPDATE SET
			external_id=excluded.external_id,
			source=excluded.source,
			caller_name=excluded.caller_name,
			caller_phone=excluded.caller_phone,
			nature=excluded.nature,
			created_time=excluded.created_time,
			closed_time=excluded.closed_time,
			closed=excluded.closed,
			canceled=excluded.canceled,
			alarm_level=excluded.alarm_level,
			emd_code=excluded.emd_code,
			source_file=excluded.source_file,
			ingested_at=excluded.ingested_at
		RETURNING id`),
		c.CallNumber, c.ExternalID, c.Source.Ptr(), c.CallerName.Ptr(), c.CallerPhone.Ptr(), c.Nature.Ptr(),
		c.CreatedTime.Ptr(), c.ClosedTime.Ptr(), boolInt(c.Closed), boolInt(c.Canceled),
		c.AlarmLevel.Ptr(), c.EMDCode.Ptr(), src.Filename, now()).Scan(&id)
	return id, err
}

func (s *Store) deleteChildren(ctx context.Context, tx *sql.Tx, callID int64) error {
	// Unit sub-children go first; the explicit deletes keep replacement
	// correct even when the engine has foreign-key enforcement disabled.
	stmts := []string{
		`DELETE FROM unit_personnel WHERE unit_id IN (SELECT id FROM units WHERE call_id = ?)`,
		`DELETE FROM unit_logs WHERE unit_id IN (SELECT id FROM units WHERE call_id = ?)`,
		`DELETE FROM unit_dispositions WHERE unit_id IN (SELECT id FROM units WHERE call_id = ?)`,
		`DELETE FROM units WHERE call_id = ?`,
		`DELETE FROM locations WHERE call_id = ?`,
		`DELETE FROM agency_contexts WHERE call_id = ?`,
		`DELETE FROM narratives WHERE call_id = ?`,
		`DELETE FROM persons WHERE call_id = ?`,
		`DELETE FROM vehicles WHERE call_id = ?`,
		`DELETE FROM incidents WHERE call_id = ?`,
		`DELETE FROM call_dispositions WHERE call_id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, s.rebind(stmt), callID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertChildren(ctx context.Context, tx *sql.Tx, callID int64, doc *model.CallDocument) error {
	if loc := doc.Location; loc != nil {
		_, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO locations (call_id, address, city, state, zip, latitude, longitude)
			VALUES (?, ?, ?, ?, ?, ?, ?)`),
			callID, loc.Address.Ptr(), loc.City.Ptr(), loc.State.Ptr(), loc.Zip.Ptr(), loc.Latitude, loc.Longitude)
		if err != nil {
			return err
		}
	}

	for i, ac := range doc.Agencies {
		_, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO agency_contexts (call_id, seq, agency_type, call_type, priority, status, closed, canceled)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			callID, i, ac.AgencyType.Ptr(), ac.CallType.Ptr(), ac.Priority.Ptr(), ac.Status.Ptr(), boolInt(ac.Closed), boolInt(ac.Canceled))
		if err != nil {
			return err
		}
	}

	for i, u := range doc.Units {
		if err := s.insertUnit(ctx, tx, callID, i, &u); err != nil {
			return err
		}
	}

	for i, n := range doc.Narratives {
		_, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO narratives (call_id, seq, entry_time, entered_by, text)
			VALUES (?, ?, ?, ?, ?)`),
			callID, i, n.EntryTime.Ptr(), n.EnteredBy.Ptr(), n.Text)
		if err != nil {
			return err
		}
	}

	for i, p := range doc.Persons {
		_, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO persons (call_id, seq, name, role, age, gender, address)
			VALUES (?, ?, ?, ?, ?, ?, ?)`),
			callID, i, p.Name, p.Role.Ptr(), p.Age.Ptr(), p.Gender.Ptr(), p.Address.Ptr())
		if err != nil {
			return err
		}
	}

	for i, v := range doc.Vehicles {
		_, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO vehicles (call_id, seq, plate, state, make, model, year, color)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			callID, i, v.Plate.Ptr(), v.State.Ptr(), v.Make.Ptr(), v.Model.Ptr(), v.Year.Ptr(), v.Color.Ptr())
		if err != nil {
			return err
		}
	}

	for i, inc := range doc.Incidents {
		_, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO incidents (call_id, seq, agency_type, incident_number)
			VALUES (?, ?, ?, ?)`),
			callID, i, inc.AgencyType.Ptr(), inc.IncidentNumber)
		if err != nil {
			return err
		}
	}

	for i, d := range doc.Dispositions {
		_, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO call_dispositions (call_id, seq, agency_type, code, description)
			VALUES (?, ?, ?, ?, ?)`),
			callID, i, d.AgencyType.Ptr(), d.Code, d.Description.Ptr())
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) insertUnit(ctx context.Context, tx *sql.Tx, callID int64, seq int, u *model.Unit) error {
	var unitID int64
	err := tx.QueryRowContext(ctx, s.rebind(`INSERT INTO units (call_id, seq, unit_number, unit_type, dispatch_time, enroute_time, arrive_time, clear_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		callID, seq, u.UnitNumber, u.UnitType.Ptr(), u.DispatchTime.Ptr(), u.EnrouteTime.Ptr(), u.ArriveTime.Ptr(), u.ClearTime.Ptr()).Scan(&unitID)
	if err != nil {
		return err
	}

	for i, p := range u.Personnel {
		_, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO unit_personnel (unit_id, seq, name, role) VALUES (?, ?, ?, ?)`),
			unitID, i, p.Name, p.Role.Ptr())
		if err != nil {
			return err
		}
	}
	for i, l := range u.Logs {
		_, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO unit_logs (unit_id, seq, log_time, status, location) VALUES (?, ?, ?, ?, ?)`),
			unitID, i, l.LogTime.Ptr(), l.Status, l.Location.Ptr())
		if err != nil {
			return err
		}
	}
	for i, d := range u.Dispositions {
		_, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO unit_dispositions (unit_id, seq, code, description) VALUES (?, ?, ?, ?)`),
			unitID, i, d.Code, d.Description.Ptr())
		if err != nil {
			return err
		}
	}
	return nil
}
