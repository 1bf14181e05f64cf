package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/docport/transit/ident"
	"github.com/docport/transit/store"
)

// ByNumber retrieves a record by message number.
func (s *Store) ByNumber(ctx context.Context, n ident.MessageNumber) (*store.TransmissionRecord, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if n.IsZero() {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE msg_no = ?`, recordColumns, s.opts.messageTable)

	var row recordRow
	if err := s.db.GetContext(ctx, &row, s.rebind(query), n.Int64()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return row.toRecord(), nil
}

// ByNumberForAccount retrieves a record scoped to an account. A record owned
// by a different account is reported as not found, never as forbidden.
func (s *Store) ByNumberForAccount(ctx context.Context, account ident.AccountID, n ident.MessageNumber) (*store.TransmissionRecord, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if n.IsZero() {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE msg_no = ? AND account_id = ?`,
		recordColumns, s.opts.messageTable)

	var row recordRow
	if err := s.db.GetContext(ctx, &row, s.rebind(query), n.Int64(), account.Int()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return row.toRecord(), nil
}

// ByReceptionID retrieves the record with the given direction and reception id.
func (s *Store) ByReceptionID(ctx context.Context, direction store.Direction, id ident.ReceptionID) (*store.TransmissionRecord, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if id.IsZero() {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE direction = ? AND reception_id = ?
		ORDER BY msg_no LIMIT 1
	`, recordColumns, s.opts.messageTable)

	var row recordRow
	if err := s.db.GetContext(ctx, &row, s.rebind(query), string(direction), id.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get record by reception id: %w", err)
	}
	return row.toRecord(), nil
}

// AllByReceptionID retrieves the records carrying the reception id in both
// directions, ordered by message number.
func (s *Store) AllByReceptionID(ctx context.Context, id ident.ReceptionID) ([]store.TransmissionRecord, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if id.IsZero() {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE reception_id = ?
		ORDER BY msg_no
	`, recordColumns, s.opts.messageTable)

	return s.queryRecords(ctx, s.rebind(query), id.String())
}

// searchWhere builds the WHERE clause fragments and arguments for the
// search parameters. All filters are ANDed.
func (s *Store) searchWhere(account ident.AccountID, params store.SearchParams) (string, []any) {
	clauses := []string{"account_id = ?"}
	args := []any{account.Int()}

	if params.Direction != "" {
		clauses = append(clauses, "direction = ?")
		args = append(args, string(params.Direction))
	}
	if !params.Sender.IsZero() {
		clauses = append(clauses, "sender = ?")
		args = append(args, params.Sender.String())
	}
	if !params.Receiver.IsZero() {
		clauses = append(clauses, "receiver = ?")
		args = append(args, params.Receiver.String())
	}
	if params.HasDateFilter() {
		clauses = append(clauses, fmt.Sprintf("%s %s %s",
			s.platform.DateExpr("received"),
			string(params.DateCondition),
			s.platform.DateExpr("?")))
		args = append(args, params.Date.UTC())
	}

	return strings.Join(clauses, " AND "), args
}

// Search returns the account's records matching the parameters, ordered by
// ascending message number, one page.
func (s *Store) Search(ctx context.Context, account ident.AccountID, params store.SearchParams) ([]store.TransmissionRecord, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	where, args := s.searchWhere(account, params)
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE %s
		ORDER BY msg_no
		LIMIT %d OFFSET %d
	`, recordColumns, s.opts.messageTable, where, store.PageSize, params.Offset())

	return s.queryRecords(ctx, s.rebind(query), args...)
}

// Count returns the number of records matching the parameters, ignoring
// pagination.
func (s *Store) Count(ctx context.Context, account ident.AccountID, params store.SearchParams) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	if err := params.Validate(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	where, args := s.searchWhere(account, params)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, s.opts.messageTable, where)

	var count int64
	if err := s.db.QueryRowxContext(ctx, s.rebind(query), args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

// Undelivered lists the account's undelivered records for one direction.
// Outbound records whose queue entry reached AOD are excluded: the queue is
// authoritative for outbound completion even before the delivered timestamp
// is stamped by final accounting.
func (s *Store) Undelivered(ctx context.Context, account ident.AccountID, direction store.Direction) ([]store.TransmissionRecord, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if !direction.Valid() {
		return nil, store.ErrInvalidSearch
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var query string
	switch direction {
	case store.DirectionIn:
		query = fmt.Sprintf(`
			SELECT %s FROM %s
			WHERE account_id = ? AND direction = 'IN'
			  AND delivered IS NULL AND reception_id IS NOT NULL
			ORDER BY msg_no
			LIMIT %d
		`, recordColumns, s.opts.messageTable, store.PageSize)
	case store.DirectionOut:
		query = fmt.Sprintf(`
			SELECT %s FROM %s m
			WHERE account_id = ? AND direction = 'OUT'
			  AND delivered IS NULL
			  AND NOT EXISTS (
				SELECT 1 FROM %s q
				WHERE q.msg_no = m.msg_no AND q.state = '%s'
			  )
			ORDER BY msg_no
			LIMIT %d
		`, recordColumns, s.opts.messageTable, s.opts.queueTable,
			store.QueueStateAcknowledged, store.PageSize)
	}

	return s.queryRecords(ctx, s.rebind(query), account.Int())
}

// UndeliveredInboundCount returns the number of inbound records not yet
// delivered to the account.
func (s *Store) UndeliveredInboundCount(ctx context.Context, account ident.AccountID) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM %s
		WHERE account_id = ? AND direction = 'IN'
		  AND delivered IS NULL AND reception_id IS NOT NULL
	`, s.opts.messageTable)

	var count int64
	if err := s.db.QueryRowxContext(ctx, s.rebind(query), account.Int()).Scan(&count); err != nil {
		return 0, fmt.Errorf("count undelivered: %w", err)
	}
	return count, nil
}

// WithoutAccount lists records not yet attributed to any account.
func (s *Store) WithoutAccount(ctx context.Context) ([]store.TransmissionRecord, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE account_id IS NULL
		ORDER BY msg_no
	`, recordColumns, s.opts.messageTable)

	return s.queryRecords(ctx, query)
}

// queryRecords runs a record SELECT and scans all rows.
func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]store.TransmissionRecord, error) {
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []store.TransmissionRecord
	for rows.Next() {
		var row recordRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, *row.toRecord())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	return records, nil
}
