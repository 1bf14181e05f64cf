package sqldb

import (
	"context"
	"fmt"

	"github.com/docport/transit/ident"
	"github.com/docport/transit/store"
)

// Create persists a new transmission record. The message number is assigned
// by the database; duplicate reception ids are rejected by the unique index
// on (account_id, direction, reception_id), not by a pre-check.
func (s *Store) Create(ctx context.Context, data store.RecordData) (ident.MessageNumber, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	if err := data.Validate(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (account_id, direction, received, sender, receiver,
		                channel, document_id, process_id, reception_id,
		                transmission_id, instance_id, remote_host,
		                payload_url, evidence_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.opts.messageTable)

	id, err := insertReturningID(ctx, s.db, s.platform, s.rebind(query), "msg_no",
		nullAccount(data.AccountID),
		string(data.Direction),
		data.Received.UTC(),
		data.Sender.String(),
		data.Receiver.String(),
		data.ChannelID.String(),
		data.DocumentTypeID.String(),
		nullStr(data.ProcessID.String()),
		nullStr(data.ReceptionID.String()),
		nullStr(data.TransmissionID.String()),
		nullStr(data.InstanceID.String()),
		nullStr(data.RemoteHost),
		nullStr(data.PayloadLocation),
		nullStr(data.EvidenceLocation),
	)
	if err != nil {
		if s.platform.IsDuplicate(err) {
			return 0, store.ErrDuplicateEntry
		}
		return 0, fmt.Errorf("insert record: %w", err)
	}
	return ident.MessageNumber(id), nil
}
