package sqldb

import (
	"database/sql"
	"time"

	"github.com/docport/transit/ident"
	"github.com/docport/transit/store"
)

// recordColumns is the SELECT column list matching recordRow.
const recordColumns = `msg_no, account_id, direction, received, delivered,
	sender, receiver, channel, document_id, process_id, reception_id,
	transmission_id, instance_id, remote_host, payload_url, evidence_url`

// recordRow is the sqlx scan target for transmission record rows. Nullable
// columns use sql.Null types and are mapped to zero values on the way out.
type recordRow struct {
	MsgNo          int64          `db:"msg_no"`
	AccountID      sql.NullInt64  `db:"account_id"`
	Direction      string         `db:"direction"`
	Received       time.Time      `db:"received"`
	Delivered      sql.NullTime   `db:"delivered"`
	Sender         string         `db:"sender"`
	Receiver       string         `db:"receiver"`
	Channel        string         `db:"channel"`
	DocumentID     string         `db:"document_id"`
	ProcessID      sql.NullString `db:"process_id"`
	ReceptionID    sql.NullString `db:"reception_id"`
	TransmissionID sql.NullString `db:"transmission_id"`
	InstanceID     sql.NullString `db:"instance_id"`
	RemoteHost     sql.NullString `db:"remote_host"`
	PayloadURL     sql.NullString `db:"payload_url"`
	EvidenceURL    sql.NullString `db:"evidence_url"`
}

func (r *recordRow) toRecord() *store.TransmissionRecord {
	rec := &store.TransmissionRecord{
		MessageNumber:    ident.MessageNumber(r.MsgNo),
		Direction:        store.Direction(r.Direction),
		Sender:           ident.ParticipantID(r.Sender),
		Receiver:         ident.ParticipantID(r.Receiver),
		ChannelID:        ident.ChannelID(r.Channel),
		DocumentTypeID:   ident.DocumentTypeID(r.DocumentID),
		ProcessID:        ident.ProcessID(r.ProcessID.String),
		ReceptionID:      ident.ReceptionID(r.ReceptionID.String),
		TransmissionID:   ident.TransmissionID(r.TransmissionID.String),
		InstanceID:       ident.InstanceID(r.InstanceID.String),
		Received:         r.Received.UTC(),
		RemoteHost:       r.RemoteHost.String,
		PayloadLocation:  r.PayloadURL.String,
		EvidenceLocation: r.EvidenceURL.String,
	}
	if r.AccountID.Valid {
		rec.AccountID = ident.AccountID(r.AccountID.Int64)
	}
	if r.Delivered.Valid {
		t := r.Delivered.Time.UTC()
		rec.Delivered = &t
	}
	return rec
}

// nullStr maps an empty string to NULL.
func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullAccount maps a zero account id to NULL, keeping unattributed records
// out of account-scoped queries. The reception dedup index coalesces the
// NULL back to zero so these records still share one dedup scope.
func nullAccount(a ident.AccountID) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(a.Int()), Valid: !a.IsZero()}
}
