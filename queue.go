package transit

import (
	"context"
	"fmt"
	"time"

	"github.com/docport/transit/ident"
	"github.com/docport/transit/store"
)

// QueueEntry retrieves a queue entry by queue id.
func (s *service) QueueEntry(ctx context.Context, id store.QueueID) (*store.QueueEntry, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	return s.store.EntryByQueueID(ctx, id)
}

// QueueEntryForMessage retrieves the queue entry for a message.
func (s *service) QueueEntryForMessage(ctx context.Context, n ident.MessageNumber) (*store.QueueEntry, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	return s.store.EntryByMessage(ctx, n)
}

// QueuedEntries lists entries currently waiting to be sent.
func (s *service) QueuedEntries(ctx context.Context) ([]store.QueueEntry, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	return s.store.QueuedEntries(ctx)
}

// MarkFailed moves a QUEUED entry to FAILED and publishes a QueueFailed
// event. Administrative: dispatch failures never call this, they leave the
// entry QUEUED for retry.
func (s *service) MarkFailed(ctx context.Context, id store.QueueID) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	entry, err := s.store.EntryByQueueID(ctx, id)
	if err != nil {
		return fmt.Errorf("load queue entry: %w", err)
	}
	if err := s.store.MarkFailed(ctx, id); err != nil {
		return err
	}

	s.logger.Warn("queue entry marked failed",
		"queue_id", id,
		"message_number", entry.MessageNumber,
	)

	publishErr := s.events.QueueFailed.Publish(ctx, QueueFailedEvent{
		QueueID:       id,
		MessageNumber: entry.MessageNumber,
		FailedAt:      time.Now().UTC(),
	})
	if publishErr != nil {
		if s.opts.eventErrorsFatal {
			return &EventPublishError{EventName: "QueueFailed", Err: publishErr}
		}
		s.opts.safeEventPublishFailure("QueueFailed", publishErr)
	}
	return nil
}

// Requeue deletes a message's queue entry and creates a fresh QUEUED one.
// Used to retry a FAILED entry or reset an AOD entry after an operator
// decision.
func (s *service) Requeue(ctx context.Context, n ident.MessageNumber) (store.QueueID, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}

	entry, err := s.store.EntryByMessage(ctx, n)
	if err != nil {
		return 0, fmt.Errorf("load queue entry for %s: %w", n, err)
	}
	if err := s.store.DeleteEntry(ctx, entry.QueueID); err != nil {
		return 0, fmt.Errorf("delete queue entry %d: %w", entry.QueueID, err)
	}

	id, err := s.store.Enqueue(ctx, n)
	if err != nil {
		return 0, fmt.Errorf("re-enqueue %s: %w", n, err)
	}

	s.logger.Info("message re-enqueued",
		"message_number", n,
		"old_queue_id", entry.QueueID,
		"queue_id", id,
	)
	return id, nil
}

// QueueErrors lists recorded queue error audit rows.
func (s *service) QueueErrors(ctx context.Context) ([]store.QueueError, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	return s.store.QueueErrors(ctx)
}

// ClearQueueErrors deletes all recorded queue errors.
func (s *service) ClearQueueErrors(ctx context.Context) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	return s.store.ClearQueueErrors(ctx)
}
