package transit

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/docport/transit/ident"
	"github.com/docport/transit/store"
)

// ReconcileSelfSend checks whether an outbound record is addressed to a
// receiver registered on this installation and, if so, clones it into the
// inbound flow with a fresh reception id and message number. The outbound
// record and its queue entry are untouched.
//
// Returns the new inbound message number, or zero when the receiver is not
// local. Safe to call repeatedly for the same message: the clone carries a
// fresh reception id each time, so operators should drive this from queue
// acknowledgment exactly once.
func (s *service) ReconcileSelfSend(ctx context.Context, n ident.MessageNumber) (cloned ident.MessageNumber, err error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	if s.registry == nil {
		return 0, ErrRegistryNotConfigured
	}

	ctx, endSpan := s.otel.startSpan(ctx, "transit.ReconcileSelfSend",
		attribute.Int64("message_number", n.Int64()),
	)
	start := time.Now()
	defer func() {
		endSpan(err)
		s.otel.recordReconcile(ctx, time.Since(start), !cloned.IsZero(), err)
	}()

	record, err := s.store.ByNumber(ctx, n)
	if err != nil {
		return 0, fmt.Errorf("load record %s: %w", n, err)
	}
	if record.Direction != store.DirectionOut {
		return 0, fmt.Errorf("record %s is %s: %w", n, record.Direction, ErrValidation)
	}

	local, err := s.registry.IsRegisteredReceiver(ctx, record.AccountID, record.Receiver)
	if err != nil {
		return 0, fmt.Errorf("check receiver registration: %w", err)
	}
	if !local {
		return 0, nil
	}

	receptionID := ident.NewReceptionID()
	cloned, err = s.store.CloneToInbound(ctx, n, receptionID)
	if err != nil {
		return 0, fmt.Errorf("clone to inbound: %w", err)
	}

	s.logger.Info("self-send reconciled to inbound",
		"message_number", n,
		"inbound_message_number", cloned,
		"reception_id", receptionID,
	)

	inbound, err := s.store.ByNumber(ctx, cloned)
	if err != nil {
		return cloned, fmt.Errorf("load cloned record: %w", err)
	}
	if err := s.publishReceived(ctx, inbound); err != nil {
		return cloned, err
	}
	return cloned, nil
}
