package transit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/docport/transit/ident"
	"github.com/docport/transit/store"
)

const defaultEvidenceContentType = "application/xml"

// DispatchResult summarizes one DispatchQueued run.
type DispatchResult struct {
	// Dispatched is the number of entries successfully sent and acknowledged.
	Dispatched int
	// Failed is the number of entries that could not be dispatched. Each
	// failure is recorded as a queue error audit row; the entries stay
	// QUEUED for a later retry.
	Failed int
}

// Dispatch sends one queued entry through the transport.
//
// The sequence is: load the entry and its record, send through the
// transport, persist the evidence receipt, stamp the delivery metadata on
// the record, then acknowledge the queue entry. A transport failure leaves
// the entry QUEUED and appends a queue error audit row.
func (s *service) Dispatch(ctx context.Context, id store.QueueID) (err error) {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if s.transport == nil {
		return ErrTransportRequired
	}

	ctx, endSpan := s.otel.startSpan(ctx, "transit.Dispatch",
		attribute.Int64("queue_id", int64(id)),
	)
	start := time.Now()
	remoteHost := ""
	defer func() {
		endSpan(err)
		s.otel.recordDispatch(ctx, time.Since(start), remoteHost, err)
	}()

	if err := s.dispatchSem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire dispatch slot: %w", err)
	}
	defer s.dispatchSem.Release(1)

	entry, err := s.store.EntryByQueueID(ctx, id)
	if err != nil {
		return fmt.Errorf("load queue entry: %w", err)
	}
	if entry.State != store.QueueStateQueued {
		return fmt.Errorf("queue entry %d is %s: %w", id, entry.State, ErrInvalidStateTransition)
	}

	record, err := s.store.ByNumber(ctx, entry.MessageNumber)
	if err != nil {
		return fmt.Errorf("load record %s: %w", entry.MessageNumber, err)
	}

	payload, err := s.loadPayload(ctx, record)
	if err != nil {
		return err
	}
	if payload != nil {
		defer payload.Close()
	}

	receipt, sendErr := s.transport.Send(ctx, record, payload)
	if sendErr != nil {
		s.recordDispatchFailure(ctx, id, sendErr)
		return &TransportError{RemoteHost: record.RemoteHost, Err: sendErr}
	}
	if receipt != nil {
		remoteHost = receipt.RemoteHost
	}

	if err := s.recordDelivery(ctx, record, receipt); err != nil {
		return err
	}

	if err := s.store.MarkAcknowledged(ctx, id); err != nil {
		return fmt.Errorf("acknowledge queue entry %d: %w", id, err)
	}

	s.logger.Info("outbound document dispatched",
		"message_number", entry.MessageNumber,
		"queue_id", id,
		"remote_host", remoteHost,
	)
	return nil
}

// DispatchQueued dispatches every entry currently in QUEUED state, fetching
// the queue one page at a time until it is drained. Each entry is attempted
// at most once per run; entries whose send fails stay QUEUED for a later
// run. Sends are concurrent, bounded by the dispatch semaphore.
func (s *service) DispatchQueued(ctx context.Context) (*DispatchResult, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if s.transport == nil {
		return nil, ErrTransportRequired
	}

	result := &DispatchResult{}
	attempted := make(map[store.QueueID]struct{})
	for {
		entries, err := s.store.QueuedEntries(ctx)
		if err != nil {
			return nil, fmt.Errorf("list queued entries: %w", err)
		}

		// Failed entries stay QUEUED and reappear in the next page, so
		// each entry gets one attempt per run.
		var batch []store.QueueID
		for _, entry := range entries {
			if _, seen := attempted[entry.QueueID]; seen {
				continue
			}
			attempted[entry.QueueID] = struct{}{}
			batch = append(batch, entry.QueueID)
		}
		if len(batch) == 0 {
			break
		}

		var (
			wg         sync.WaitGroup
			dispatched int32
			failed     int32
		)
		for _, id := range batch {
			wg.Add(1)
			go func(id store.QueueID) {
				defer wg.Done()
				if err := s.Dispatch(ctx, id); err != nil {
					atomic.AddInt32(&failed, 1)
					s.logger.Warn("dispatch failed", "queue_id", id, "error", err)
					return
				}
				atomic.AddInt32(&dispatched, 1)
			}(id)
		}
		wg.Wait()
		result.Dispatched += int(atomic.LoadInt32(&dispatched))
		result.Failed += int(atomic.LoadInt32(&failed))
	}

	s.logger.Info("dispatch run complete",
		"dispatched", result.Dispatched,
		"failed", result.Failed,
	)
	return result, nil
}

// RecordOutboundDelivery persists a delivery receipt obtained outside
// Dispatch, e.g. by an external sender process. The caller remains
// responsible for acknowledging the queue entry.
func (s *service) RecordOutboundDelivery(ctx context.Context, n ident.MessageNumber, receipt *DeliveryReceipt) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if receipt == nil {
		return fmt.Errorf("%w: delivery receipt is required", ErrValidation)
	}

	record, err := s.store.ByNumber(ctx, n)
	if err != nil {
		return fmt.Errorf("load record %s: %w", n, err)
	}
	return s.recordDelivery(ctx, record, receipt)
}

// recordDelivery persists the evidence receipt, then stamps the delivery
// metadata on the record. The evidence is written first so the record never
// references a location that does not exist.
func (s *service) recordDelivery(ctx context.Context, record *store.TransmissionRecord, receipt *DeliveryReceipt) (err error) {
	start := time.Now()
	defer func() {
		s.otel.recordDeliver(ctx, time.Since(start), string(store.DirectionOut), err)
	}()

	deliveredAt := receipt.DeliveredAt
	if deliveredAt.IsZero() {
		deliveredAt = time.Now().UTC()
	}

	evidenceLocation := ""
	if len(receipt.Evidence) > 0 {
		if s.evidenceStore == nil {
			return ErrEvidenceStoreNotConfigured
		}
		contentType := receipt.EvidenceContentType
		if contentType == "" {
			contentType = defaultEvidenceContentType
		}
		name := fmt.Sprintf("%s-receipt", record.ReceptionID)
		evidenceLocation, err = s.evidenceStore.Upload(ctx, name, contentType, bytes.NewReader(receipt.Evidence))
		if err != nil {
			return fmt.Errorf("store evidence: %w", err)
		}
	}

	update := store.DeliveryUpdate{
		RemoteHost:       receipt.RemoteHost,
		TransmissionID:   receipt.TransmissionID,
		EvidenceLocation: evidenceLocation,
		DeliveredAt:      deliveredAt,
	}
	if err := s.store.UpdateOutboundDelivery(ctx, record.MessageNumber, update); err != nil {
		return fmt.Errorf("update delivery metadata: %w", err)
	}

	return s.publishDelivered(ctx, record, store.DirectionOut, receipt.RemoteHost, deliveredAt)
}

// recordDispatchFailure appends a queue error audit row for a failed send.
// The entry stays QUEUED so a later run can retry it.
func (s *service) recordDispatchFailure(ctx context.Context, id store.QueueID, sendErr error) {
	_, err := s.store.RecordQueueError(ctx, id,
		sendErr.Error(),
		fmt.Sprintf("%+v", sendErr),
		string(debug.Stack()),
	)
	if err != nil {
		s.logger.Error("failed to record queue error", "queue_id", id, "error", err)
	}
}

// loadPayload opens the record's stored payload for sending. Returns nil
// when the record carries no payload location.
func (s *service) loadPayload(ctx context.Context, record *store.TransmissionRecord) (io.ReadCloser, error) {
	if record.PayloadLocation == "" {
		return nil, nil
	}
	if s.payloadStore == nil {
		return nil, ErrPayloadStoreNotConfigured
	}
	payload, err := s.payloadStore.Load(ctx, record.PayloadLocation)
	if err != nil {
		return nil, fmt.Errorf("load payload: %w", err)
	}
	return payload, nil
}

// publishDelivered publishes a DocumentDelivered event.
func (s *service) publishDelivered(ctx context.Context, record *store.TransmissionRecord, direction store.Direction, remoteHost string, at time.Time) error {
	err := s.events.DocumentDelivered.Publish(ctx, DocumentDeliveredEvent{
		MessageNumber: record.MessageNumber,
		AccountID:     record.AccountID,
		Direction:     direction,
		RemoteHost:    remoteHost,
		DeliveredAt:   at,
	})
	if err != nil {
		if s.opts.eventErrorsFatal {
			return &EventPublishError{EventName: "DocumentDelivered", Err: err}
		}
		s.opts.safeEventPublishFailure("DocumentDelivered", err)
	}
	return nil
}
