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

// MarkDelivered sets the delivered timestamp. Last write wins: repeated marks
// overwrite the timestamp, the column is never reset to NULL.
func (s *Store) MarkDelivered(ctx context.Context, n ident.MessageNumber, at time.Time) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if n.IsZero() {
		return store.ErrInvalidID
	}
	if at.IsZero() {
		return &store.FieldError{Field: "delivered", Reason: "is required"}
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`UPDATE %s SET delivered = ? WHERE msg_no = ?`, s.opts.messageTable)
	result, err := s.db.ExecContext(ctx, s.rebind(query), at.UTC(), n.Int64())
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
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

// UpdateOutboundDelivery records delivery metadata on an outbound record:
// delivered timestamp, remote host annotation, transmission id and evidence
// location in one atomic UPDATE.
func (s *Store) UpdateOutboundDelivery(ctx context.Context, n ident.MessageNumber, update store.DeliveryUpdate) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if n.IsZero() {
		return store.ErrInvalidID
	}
	if update.DeliveredAt.IsZero() {
		return &store.FieldError{Field: "delivered", Reason: "is required"}
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		UPDATE %s
		SET delivered = ?, remote_host = ?, transmission_id = ?,
		    evidence_url = COALESCE(?, evidence_url)
		WHERE msg_no = ? AND direction = 'OUT'
	`, s.opts.messageTable)

	result, err := s.db.ExecContext(ctx, s.rebind(query),
		update.DeliveredAt.UTC(), nullStr(update.RemoteHost),
		nullStr(update.TransmissionID.String()),
		nullStr(update.EvidenceLocation), n.Int64())
	if err != nil {
		return fmt.Errorf("update outbound delivery: %w", err)
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

// CloneToInbound copies an outbound record into a new inbound record with the
// given fresh reception id, inside one INSERT ... SELECT so the copy cannot
// observe a partially updated source row. Transport identifiers, remote host
// and content locations carry over.
func (s *Store) CloneToInbound(ctx context.Context, n ident.MessageNumber, receptionID ident.ReceptionID) (ident.MessageNumber, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	if n.IsZero() || receptionID.IsZero() {
		return 0, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (account_id, direction, received, sender, receiver,
		                channel, document_id, process_id, reception_id,
		                transmission_id, instance_id, remote_host,
		                payload_url, evidence_url)
		SELECT account_id, 'IN', received, sender, receiver,
		       channel, document_id, process_id, ?,
		       transmission_id, instance_id, remote_host,
		       payload_url, evidence_url
		FROM %s
		WHERE msg_no = ? AND direction = 'OUT'
	`, s.opts.messageTable, s.opts.messageTable)

	id, err := insertReturningID(ctx, s.db, s.platform, s.rebind(query), "msg_no",
		receptionID.String(), n.Int64())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// INSERT ... SELECT matched no source row.
			return 0, store.ErrNotFound
		}
		if s.platform.IsDuplicate(err) {
			return 0, store.ErrDuplicateEntry
		}
		return 0, fmt.Errorf("clone to inbound: %w", err)
	}
	if id == 0 {
		// Platforms without RETURNING report no generated key here.
		return 0, store.ErrNotFound
	}
	return ident.MessageNumber(id), nil
}
