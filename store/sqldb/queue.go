package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/docport/transit/ident"
	"github.com/docport/transit/store"
)

// entryRow is the sqlx scan target for queue entry rows.
type entryRow struct {
	ID    int64  `db:"id"`
	MsgNo int64  `db:"msg_no"`
	State string `db:"state"`
}

func (r *entryRow) toEntry() *store.QueueEntry {
	return &store.QueueEntry{
		QueueID:       store.QueueID(r.ID),
		MessageNumber: ident.MessageNumber(r.MsgNo),
		State:         store.QueueState(r.State),
	}
}

// errorRow is the sqlx scan target for queue error rows.
type errorRow struct {
	ID         int64     `db:"id"`
	QueueID    int64     `db:"queue_id"`
	Message    string    `db:"message"`
	Details    string    `db:"details"`
	Stacktrace string    `db:"stacktrace"`
	CreateDt   time.Time `db:"create_dt"`
}

func (r *errorRow) toError() store.QueueError {
	return store.QueueError{
		ErrorID:    store.QueueErrorID(r.ID),
		QueueID:    store.QueueID(r.QueueID),
		Message:    r.Message,
		Details:    r.Details,
		Stacktrace: r.Stacktrace,
		CreatedAt:  r.CreateDt.UTC(),
	}
}

// Enqueue admits an outbound record for sending. The one-entry-per-message
// invariant is enforced by the unique index on msg_no, not by a pre-check.
func (s *Store) Enqueue(ctx context.Context, n ident.MessageNumber) (store.QueueID, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	if n.IsZero() {
		return 0, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	// INSERT ... SELECT gates the entry on an existing outbound record
	// without a separate read.
	query := fmt.Sprintf(`
		INSERT INTO %s (msg_no, state)
		SELECT msg_no, '%s' FROM %s
		WHERE msg_no = ? AND direction = 'OUT'
	`, s.opts.queueTable, store.QueueStateQueued, s.opts.messageTable)

	id, err := insertReturningID(ctx, s.db, s.platform, s.rebind(query), "id", n.Int64())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		if s.platform.IsDuplicate(err) {
			return 0, store.ErrDuplicateEntry
		}
		return 0, fmt.Errorf("enqueue: %w", err)
	}
	if id == 0 {
		return 0, store.ErrNotFound
	}
	return store.QueueID(id), nil
}

// EntryByQueueID retrieves a queue entry.
func (s *Store) EntryByQueueID(ctx context.Context, id store.QueueID) (*store.QueueEntry, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if id.IsZero() {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT id, msg_no, state FROM %s WHERE id = ?`, s.opts.queueTable)

	var row entryRow
	if err := s.db.GetContext(ctx, &row, s.rebind(query), int64(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get queue entry: %w", err)
	}
	return row.toEntry(), nil
}

// EntryByMessage retrieves the queue entry for a message.
func (s *Store) EntryByMessage(ctx context.Context, n ident.MessageNumber) (*store.QueueEntry, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if n.IsZero() {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT id, msg_no, state FROM %s WHERE msg_no = ?`, s.opts.queueTable)

	var row entryRow
	if err := s.db.GetContext(ctx, &row, s.rebind(query), n.Int64()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get queue entry: %w", err)
	}
	return row.toEntry(), nil
}

// QueuedEntries lists entries currently in QUEUED state, ordered by queue id.
func (s *Store) QueuedEntries(ctx context.Context) ([]store.QueueEntry, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT id, msg_no, state FROM %s
		WHERE state = '%s'
		ORDER BY id
		LIMIT %d
	`, s.opts.queueTable, store.QueueStateQueued, store.PageSize)

	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query queue: %w", err)
	}
	defer rows.Close()

	var entries []store.QueueEntry
	for rows.Next() {
		var row entryRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		entries = append(entries, *row.toEntry())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query queue: %w", err)
	}
	return entries, nil
}

// MarkAcknowledged transitions QUEUED to AOD.
func (s *Store) MarkAcknowledged(ctx context.Context, id store.QueueID) error {
	return s.transition(ctx, id, store.QueueStateAcknowledged)
}

// MarkFailed transitions QUEUED to FAILED.
func (s *Store) MarkFailed(ctx context.Context, id store.QueueID) error {
	return s.transition(ctx, id, store.QueueStateFailed)
}

// transition performs the compare-and-set from QUEUED to the target state as
// a conditional UPDATE. Of two concurrent transitions exactly one affects a
// row; the loser distinguishes a missing entry from a lost race with a
// follow-up read.
func (s *Store) transition(ctx context.Context, id store.QueueID, to store.QueueState) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if id.IsZero() {
		return store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		UPDATE %s SET state = ?
		WHERE id = ? AND state = '%s'
	`, s.opts.queueTable, store.QueueStateQueued)

	result, err := s.db.ExecContext(ctx, s.rebind(query), string(to), int64(id))
	if err != nil {
		return fmt.Errorf("queue transition: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := s.EntryByQueueID(ctx, id); err != nil {
			return err
		}
		return store.ErrInvalidStateTransition
	}
	return nil
}

// DeleteEntry removes a queue entry, permitting an explicit re-enqueue.
func (s *Store) DeleteEntry(ctx context.Context, id store.QueueID) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if id.IsZero() {
		return store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.opts.queueTable)
	result, err := s.db.ExecContext(ctx, s.rebind(query), int64(id))
	if err != nil {
		return fmt.Errorf("delete queue entry: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

// RecordQueueError appends an error audit row for a queue entry.
func (s *Store) RecordQueueError(ctx context.Context, id store.QueueID, message, details, stacktrace string) (store.QueueErrorID, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	if id.IsZero() {
		return 0, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	// Gate on an existing entry the same way Enqueue gates on the record.
	query := fmt.Sprintf(`
		INSERT INTO %s (queue_id, message, details, stacktrace, create_dt)
		SELECT id, ?, ?, ?, ? FROM %s WHERE id = ?
	`, s.opts.queueErrorTable, s.opts.queueTable)

	eid, err := insertReturningID(ctx, s.db, s.platform, s.rebind(query), "id",
		message, details, stacktrace, time.Now().UTC(), int64(id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, fmt.Errorf("record queue error: %w", err)
	}
	if eid == 0 {
		return 0, store.ErrNotFound
	}
	return store.QueueErrorID(eid), nil
}

// QueueErrors lists all recorded queue errors, ordered by error id.
func (s *Store) QueueErrors(ctx context.Context) ([]store.QueueError, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT id, queue_id, message, details, stacktrace, create_dt
		FROM %s
		ORDER BY id
	`, s.opts.queueErrorTable)

	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query queue errors: %w", err)
	}
	defer rows.Close()

	var out []store.QueueError
	for rows.Next() {
		var row errorRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("scan queue error: %w", err)
		}
		out = append(out, row.toError())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query queue errors: %w", err)
	}
	return out, nil
}

// ClearQueueErrors deletes all recorded queue errors.
func (s *Store) ClearQueueErrors(ctx context.Context) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`DELETE FROM %s`, s.opts.queueErrorTable)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("clear queue errors: %w", err)
	}
	return nil
}
