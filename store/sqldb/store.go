// Package sqldb provides a SQL implementation of store.Store on top of sqlx,
// with dialect differences isolated behind the Platform interface. PostgreSQL
// is the production default; MySQL is supported through MySQLPlatform.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jmoiron/sqlx"

	"github.com/docport/transit/ident"
	"github.com/docport/transit/store"
)

// Compile-time checks
var (
	_ store.Store            = (*Store)(nil)
	_ store.ReceiverRegistry = (*Store)(nil)
)

// Store implements store.Store using a SQL database.
type Store struct {
	db        *sqlx.DB
	platform  Platform
	opts      *options
	connected int32
	logger    *slog.Logger
}

// New creates a new SQL store with the provided database connection.
// Call Connect() to verify the connection and initialize the schema.
func New(db *sqlx.DB, platform Platform, opts ...Option) *Store {
	o := newOptions(opts...)
	return &Store{
		db:       db,
		platform: platform,
		opts:     o,
		logger:   o.logger,
	}
}

// NewFromDB creates a new SQL store from a standard sql.DB connection.
// This wraps the sql.DB with sqlx for enhanced functionality.
func NewFromDB(db *sql.DB, platform Platform, opts ...Option) *Store {
	return New(sqlx.NewDb(db, platform.DriverName()), platform, opts...)
}

// Connect verifies the connection and initializes the schema.
func (s *Store) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}

	if s.db == nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("sqldb: db is required")
	}
	if s.platform == nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("sqldb: platform is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("sqldb ping: %w", err)
	}

	if err := s.ensureSchema(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("ensure schema: %w", err)
	}

	s.logger.Info("connected to SQL store",
		"platform", s.platform.DriverName(),
		"table", s.opts.messageTable)
	return nil
}

// Close marks the store as disconnected.
// The caller is responsible for closing the database connection.
func (s *Store) Close(ctx context.Context) error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return nil
	}
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

// ensureSchema creates the required tables and indexes.
func (s *Store) ensureSchema(ctx context.Context) error {
	for _, stmt := range s.platform.Schema(s.opts) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	return nil
}

// checkConnected returns error if not connected.
func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
}

// rebind converts ? placeholders to the platform's bind type.
func (s *Store) rebind(query string) string {
	return s.db.Rebind(query)
}

// insertReturningID executes an INSERT and returns the generated key, using
// RETURNING where the platform supports it and LastInsertId otherwise.
func insertReturningID(ctx context.Context, e sqlx.ExtContext, p Platform, query, keyColumn string, args ...any) (int64, error) {
	if p.SupportsReturning() {
		var id int64
		err := e.QueryRowxContext(ctx, query+" RETURNING "+keyColumn, args...).Scan(&id)
		return id, err
	}
	result, err := e.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// =============================================================================
// Account Registrations
// =============================================================================

// RegisterAccount upserts account metadata used by statistics rows.
func (s *Store) RegisterAccount(ctx context.Context, id ident.AccountID, name, contactEmail string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if id.IsZero() {
		return store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	// Delete-then-insert upsert keeps the statement portable across
	// platforms; registrations are rare administrative writes.
	del := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.opts.accountTable)
	if _, err := s.db.ExecContext(ctx, s.rebind(del), id.Int()); err != nil {
		return fmt.Errorf("register account: %w", err)
	}
	ins := fmt.Sprintf(`INSERT INTO %s (id, name, contact_email) VALUES (?, ?, ?)`, s.opts.accountTable)
	if _, err := s.db.ExecContext(ctx, s.rebind(ins), id.Int(), name, contactEmail); err != nil {
		return fmt.Errorf("register account: %w", err)
	}
	return nil
}

// RegisterReceiver registers a participant as a receiver on an account.
func (s *Store) RegisterReceiver(ctx context.Context, account ident.AccountID, participant ident.ParticipantID) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if account.IsZero() || participant.IsZero() {
		return store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`INSERT INTO %s (account_id, participant_id) VALUES (?, ?)`, s.opts.receiverTable)
	if _, err := s.db.ExecContext(ctx, s.rebind(query), account.Int(), participant.String()); err != nil {
		if s.platform.IsDuplicate(err) {
			return nil // already registered
		}
		return fmt.Errorf("register receiver: %w", err)
	}
	return nil
}

// IsRegisteredReceiver reports whether the participant is registered to
// receive documents on the account. Implements store.ReceiverRegistry.
func (s *Store) IsRegisteredReceiver(ctx context.Context, account ident.AccountID, participant ident.ParticipantID) (bool, error) {
	if err := s.checkConnected(); err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM %s
		WHERE account_id = ? AND participant_id = ?
	`, s.opts.receiverTable)

	var count int64
	if err := s.db.QueryRowxContext(ctx, s.rebind(query), account.Int(), participant.String()).Scan(&count); err != nil {
		return false, fmt.Errorf("registered receiver: %w", err)
	}
	return count > 0, nil
}
