package transit

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/docport/transit/ident"
	"github.com/docport/transit/store"
)

// Account is a client scoped to one account. All record access through an
// Account is bounded to records attributed to that account.
type Account interface {
	// ID returns the account identifier.
	ID() ident.AccountID

	// Record retrieves one of the account's records by message number.
	// Returns ErrNotFound for records belonging to other accounts.
	Record(ctx context.Context, n ident.MessageNumber) (*store.TransmissionRecord, error)
	// Search returns one page of the account's records matching the
	// parameters, ordered by ascending message number.
	Search(ctx context.Context, params SearchParams) ([]store.TransmissionRecord, error)
	// Count returns the number of records matching the parameters,
	// ignoring pagination.
	Count(ctx context.Context, params SearchParams) (int64, error)
	// Undelivered lists the account's undelivered records for one
	// direction.
	Undelivered(ctx context.Context, direction Direction) ([]store.TransmissionRecord, error)
	// UndeliveredInboundCount returns the number of inbound records not
	// yet downloaded by the account.
	UndeliveredInboundCount(ctx context.Context) (int64, error)

	// MarkDelivered records that the account has consumed a record,
	// typically after downloading an inbound document.
	MarkDelivered(ctx context.Context, n ident.MessageNumber) error

	// Payload opens the stored payload of one of the account's records.
	Payload(ctx context.Context, n ident.MessageNumber) (io.ReadCloser, error)
	// Evidence opens the stored delivery evidence of one of the account's
	// records.
	Evidence(ctx context.Context, n ident.MessageNumber) (io.ReadCloser, error)

	// Statistics returns the account's traffic statistics.
	Statistics(ctx context.Context) (*store.AccountStatistics, error)
}

// accountClient is the default implementation of Account.
// It shares the service's connections and serializes nothing itself.
type accountClient struct {
	id      ident.AccountID
	service *service
}

// checkAccess gates account operations on connection state and a concrete
// account id.
func (a *accountClient) checkAccess() error {
	if err := a.service.checkConnected(); err != nil {
		return err
	}
	if a.id.IsZero() {
		return fmt.Errorf("account id is required: %w", ErrInvalidID)
	}
	return nil
}

func (a *accountClient) ID() ident.AccountID {
	return a.id
}

func (a *accountClient) Record(ctx context.Context, n ident.MessageNumber) (*store.TransmissionRecord, error) {
	if err := a.checkAccess(); err != nil {
		return nil, err
	}
	return a.service.store.ByNumberForAccount(ctx, a.id, n)
}

func (a *accountClient) Search(ctx context.Context, params SearchParams) (records []store.TransmissionRecord, err error) {
	if err := a.checkAccess(); err != nil {
		return nil, err
	}

	ctx, endSpan := a.service.otel.startSpan(ctx, "transit.Search",
		attribute.Int("account_id", a.id.Int()),
	)
	start := time.Now()
	defer func() {
		endSpan(err)
		a.service.otel.recordSearch(ctx, time.Since(start), len(records), err)
	}()

	if err := params.Validate(); err != nil {
		return nil, err
	}
	return a.service.store.Search(ctx, a.id, params)
}

func (a *accountClient) Count(ctx context.Context, params SearchParams) (int64, error) {
	if err := a.checkAccess(); err != nil {
		return 0, err
	}
	if err := params.Validate(); err != nil {
		return 0, err
	}
	return a.service.store.Count(ctx, a.id, params)
}

func (a *accountClient) Undelivered(ctx context.Context, direction Direction) ([]store.TransmissionRecord, error) {
	if err := a.checkAccess(); err != nil {
		return nil, err
	}
	if !direction.Valid() {
		return nil, fmt.Errorf("direction %q: %w", direction, ErrValidation)
	}
	return a.service.store.Undelivered(ctx, a.id, direction)
}

func (a *accountClient) UndeliveredInboundCount(ctx context.Context) (int64, error) {
	if err := a.checkAccess(); err != nil {
		return 0, err
	}
	return a.service.store.UndeliveredInboundCount(ctx, a.id)
}

// MarkDelivered records consumption of a record by the account and
// publishes a DocumentDelivered event. Repeated calls overwrite the
// delivered timestamp.
func (a *accountClient) MarkDelivered(ctx context.Context, n ident.MessageNumber) error {
	if err := a.checkAccess(); err != nil {
		return err
	}

	// Scope check before the write: the record must belong to this account.
	record, err := a.service.store.ByNumberForAccount(ctx, a.id, n)
	if err != nil {
		return err
	}

	deliveredAt := time.Now().UTC()
	if err := a.service.store.MarkDelivered(ctx, n, deliveredAt); err != nil {
		return err
	}

	a.service.logger.Info("document marked delivered",
		"message_number", n,
		"account_id", a.id,
		"direction", record.Direction,
	)
	return a.service.publishDelivered(ctx, record, record.Direction, "", deliveredAt)
}

func (a *accountClient) Payload(ctx context.Context, n ident.MessageNumber) (io.ReadCloser, error) {
	if err := a.checkAccess(); err != nil {
		return nil, err
	}
	record, err := a.service.store.ByNumberForAccount(ctx, a.id, n)
	if err != nil {
		return nil, err
	}
	if record.PayloadLocation == "" {
		return nil, fmt.Errorf("no stored payload for %s: %w", n, store.ErrNotFound)
	}
	if a.service.payloadStore == nil {
		return nil, ErrPayloadStoreNotConfigured
	}
	return a.service.payloadStore.Load(ctx, record.PayloadLocation)
}

func (a *accountClient) Evidence(ctx context.Context, n ident.MessageNumber) (io.ReadCloser, error) {
	if err := a.checkAccess(); err != nil {
		return nil, err
	}
	record, err := a.service.store.ByNumberForAccount(ctx, a.id, n)
	if err != nil {
		return nil, err
	}
	if record.EvidenceLocation == "" {
		return nil, fmt.Errorf("no stored evidence for %s: %w", n, store.ErrNotFound)
	}
	if a.service.evidenceStore == nil {
		return nil, ErrEvidenceStoreNotConfigured
	}
	return a.service.evidenceStore.Load(ctx, record.EvidenceLocation)
}

func (a *accountClient) Statistics(ctx context.Context) (*store.AccountStatistics, error) {
	if err := a.checkAccess(); err != nil {
		return nil, err
	}
	rows, err := a.service.store.AccountStatistics(ctx, a.id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no statistics for account %s: %w", a.id, store.ErrNotFound)
	}
	return &rows[0], nil
}
