package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/docport/transit/ident"
	"github.com/docport/transit/store"
)

// statsRow is the sqlx scan target for the statistics aggregation. The
// aggregates come back NULL for accounts without messages.
type statsRow struct {
	AccountID           int64         `db:"account_id"`
	Name                string        `db:"name"`
	ContactEmail        string        `db:"contact_email"`
	Total               sql.NullInt64 `db:"total"`
	InTotal             sql.NullInt64 `db:"in_total"`
	InUndelivered       sql.NullInt64 `db:"in_undelivered"`
	InLastDownloaded    sql.NullTime  `db:"in_last_downloaded"`
	InLastReceived      sql.NullTime  `db:"in_last_received"`
	InOldestUndelivered sql.NullTime  `db:"in_oldest_undelivered"`
	OutTotal            sql.NullInt64 `db:"out_total"`
	OutUndelivered      sql.NullInt64 `db:"out_undelivered"`
	OutLastSent         sql.NullTime  `db:"out_last_sent"`
	OutLastReceived     sql.NullTime  `db:"out_last_received"`
}

func (r *statsRow) toStatistics() store.AccountStatistics {
	return store.AccountStatistics{
		AccountID:    ident.AccountID(r.AccountID),
		AccountName:  r.Name,
		ContactEmail: r.ContactEmail,
		Total:        r.Total.Int64,
		Inbound: store.InboundStatistics{
			Total:             r.InTotal.Int64,
			Undelivered:       r.InUndelivered.Int64,
			LastDownloaded:    nullableTime(r.InLastDownloaded),
			LastReceived:      nullableTime(r.InLastReceived),
			OldestUndelivered: nullableTime(r.InOldestUndelivered),
		},
		Outbound: store.OutboundStatistics{
			Total:        r.OutTotal.Int64,
			Undelivered:  r.OutUndelivered.Int64,
			LastSent:     nullableTime(r.OutLastSent),
			LastReceived: nullableTime(r.OutLastReceived),
		},
	}
}

func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	u := t.Time.UTC()
	return &u
}

// AccountStatistics derives one statistics row per account, outer-joining the
// account table against the message table so accounts without messages still
// appear. A zero account id aggregates every account.
func (s *Store) AccountStatistics(ctx context.Context, account ident.AccountID) ([]store.AccountStatistics, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	where := ""
	var args []any
	if !account.IsZero() {
		where = "WHERE a.id = ?"
		args = append(args, account.Int())
	}

	query := fmt.Sprintf(`
		SELECT a.id AS account_id, a.name, a.contact_email,
		       COUNT(m.msg_no) AS total,
		       SUM(CASE WHEN m.direction = 'IN' THEN 1 ELSE 0 END) AS in_total,
		       SUM(CASE WHEN m.direction = 'IN' AND m.delivered IS NULL
		                 AND m.reception_id IS NOT NULL THEN 1 ELSE 0 END) AS in_undelivered,
		       MAX(CASE WHEN m.direction = 'IN' THEN m.delivered END) AS in_last_downloaded,
		       MAX(CASE WHEN m.direction = 'IN' THEN m.received END) AS in_last_received,
		       MIN(CASE WHEN m.direction = 'IN' AND m.delivered IS NULL
		                 AND m.reception_id IS NOT NULL THEN m.received END) AS in_oldest_undelivered,
		       SUM(CASE WHEN m.direction = 'OUT' THEN 1 ELSE 0 END) AS out_total,
		       SUM(CASE WHEN m.direction = 'OUT' AND m.delivered IS NULL THEN 1 ELSE 0 END) AS out_undelivered,
		       MAX(CASE WHEN m.direction = 'OUT' THEN m.delivered END) AS out_last_sent,
		       MAX(CASE WHEN m.direction = 'OUT' THEN m.received END) AS out_last_received
		FROM %s a
		LEFT OUTER JOIN %s m ON m.account_id = a.id
		%s
		GROUP BY a.id, a.name, a.contact_email
		ORDER BY a.id
	`, s.opts.accountTable, s.opts.messageTable, where)

	rows, err := s.db.QueryxContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query statistics: %w", err)
	}
	defer rows.Close()

	var out []store.AccountStatistics
	for rows.Next() {
		var row statsRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("scan statistics: %w", err)
		}
		out = append(out, row.toStatistics())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query statistics: %w", err)
	}

	// A concrete account yields a row even when unregistered, mirroring
	// the memory backend.
	if len(out) == 0 && !account.IsZero() {
		out = append(out, store.AccountStatistics{AccountID: account})
	}
	return out, nil
}
