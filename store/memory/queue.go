package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docport/transit/ident"
	"github.com/docport/transit/store"
)

// getEntryLock returns the mutex for a queue entry, creating one if needed.
func (s *Store) getEntryLock(id store.QueueID) *sync.Mutex {
	lock, _ := s.entryLocks.LoadOrStore(id, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// Enqueue admits an outbound record for sending. At most one entry may exist
// per message; the claim on the message number is atomic via LoadOrStore,
// mirroring the SQL backend's unique index.
func (s *Store) Enqueue(ctx context.Context, n ident.MessageNumber) (store.QueueID, error) {
	if atomic.LoadInt32(&s.connected) == 0 {
		return 0, store.ErrNotConnected
	}
	if n.IsZero() {
		return 0, store.ErrInvalidID
	}

	v, ok := s.records.Load(n)
	if !ok {
		return 0, store.ErrNotFound
	}
	if v.(*store.TransmissionRecord).Direction != store.DirectionOut {
		return 0, &store.FieldError{Field: "direction", Reason: "must be OUT to enqueue"}
	}

	id := store.QueueID(atomic.AddInt64(&s.nextQueueID, 1))
	if _, loaded := s.queueIdx.LoadOrStore(n, id); loaded {
		return 0, store.ErrDuplicateEntry
	}

	s.queue.Store(id, &store.QueueEntry{
		QueueID:       id,
		MessageNumber: n,
		State:         store.QueueStateQueued,
	})
	return id, nil
}

// EntryByQueueID retrieves a queue entry.
func (s *Store) EntryByQueueID(ctx context.Context, id store.QueueID) (*store.QueueEntry, error) {
	if atomic.LoadInt32(&s.connected) == 0 {
		return nil, store.ErrNotConnected
	}
	if id.IsZero() {
		return nil, store.ErrInvalidID
	}
	v, ok := s.queue.Load(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	e := *v.(*store.QueueEntry)
	return &e, nil
}

// EntryByMessage retrieves the queue entry for a message.
func (s *Store) EntryByMessage(ctx context.Context, n ident.MessageNumber) (*store.QueueEntry, error) {
	if atomic.LoadInt32(&s.connected) == 0 {
		return nil, store.ErrNotConnected
	}
	if n.IsZero() {
		return nil, store.ErrInvalidID
	}
	qid, ok := s.queueIdx.Load(n)
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.EntryByQueueID(ctx, qid.(store.QueueID))
}

// QueuedEntries lists entries currently in QUEUED state, ordered by queue id,
// capped at PageSize.
func (s *Store) QueuedEntries(ctx context.Context) ([]store.QueueEntry, error) {
	if atomic.LoadInt32(&s.connected) == 0 {
		return nil, store.ErrNotConnected
	}
	var all []store.QueueEntry
	s.queue.Range(func(_, v any) bool {
		e := v.(*store.QueueEntry)
		if e.State == store.QueueStateQueued {
			all = append(all, *e)
		}
		return true
	})
	sort.Slice(all, func(i, j int) bool { return all[i].QueueID < all[j].QueueID })
	if len(all) > store.PageSize {
		all = all[:store.PageSize]
	}
	return all, nil
}

// MarkAcknowledged transitions QUEUED to AOD.
func (s *Store) MarkAcknowledged(ctx context.Context, id store.QueueID) error {
	return s.transition(id, store.QueueStateAcknowledged)
}

// MarkFailed transitions QUEUED to FAILED.
func (s *Store) MarkFailed(ctx context.Context, id store.QueueID) error {
	return s.transition(id, store.QueueStateFailed)
}

// transition performs a compare-and-set from QUEUED to the target state.
// Per-entry locking guarantees that of two concurrent transitions exactly one
// succeeds, matching the SQL backend's conditional UPDATE.
func (s *Store) transition(id store.QueueID, to store.QueueState) error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	if id.IsZero() {
		return store.ErrInvalidID
	}

	lock := s.getEntryLock(id)
	lock.Lock()
	defer lock.Unlock()

	v, ok := s.queue.Load(id)
	if !ok {
		return store.ErrNotFound
	}
	orig := v.(*store.QueueEntry)
	if orig.State != store.QueueStateQueued {
		return store.ErrInvalidStateTransition
	}

	e := *orig
	e.State = to
	s.queue.Store(id, &e)
	return nil
}

// DeleteEntry removes a queue entry, permitting an explicit re-enqueue.
func (s *Store) DeleteEntry(ctx context.Context, id store.QueueID) error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	if id.IsZero() {
		return store.ErrInvalidID
	}

	lock := s.getEntryLock(id)
	lock.Lock()
	defer lock.Unlock()

	v, ok := s.queue.Load(id)
	if !ok {
		return store.ErrNotFound
	}
	s.queueIdx.Delete(v.(*store.QueueEntry).MessageNumber)
	s.queue.Delete(id)
	return nil
}

// RecordQueueError appends an error audit row for a queue entry.
func (s *Store) RecordQueueError(ctx context.Context, id store.QueueID, message, details, stacktrace string) (store.QueueErrorID, error) {
	if atomic.LoadInt32(&s.connected) == 0 {
		return 0, store.ErrNotConnected
	}
	if id.IsZero() {
		return 0, store.ErrInvalidID
	}
	if _, ok := s.queue.Load(id); !ok {
		return 0, store.ErrNotFound
	}

	eid := store.QueueErrorID(atomic.AddInt64(&s.nextErrorID, 1))
	s.queueErrs.Store(eid, &store.QueueError{
		ErrorID:    eid,
		QueueID:    id,
		Message:    message,
		Details:    details,
		Stacktrace: stacktrace,
		CreatedAt:  time.Now().UTC(),
	})
	return eid, nil
}

// QueueErrors lists all recorded queue errors, ordered by error id.
func (s *Store) QueueErrors(ctx context.Context) ([]store.QueueError, error) {
	if atomic.LoadInt32(&s.connected) == 0 {
		return nil, store.ErrNotConnected
	}
	var all []store.QueueError
	s.queueErrs.Range(func(_, v any) bool {
		all = append(all, *v.(*store.QueueError))
		return true
	})
	sort.Slice(all, func(i, j int) bool { return all[i].ErrorID < all[j].ErrorID })
	return all, nil
}

// ClearQueueErrors deletes all recorded queue errors.
func (s *Store) ClearQueueErrors(ctx context.Context) error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	s.queueErrs.Range(func(k, _ any) bool {
		s.queueErrs.Delete(k)
		return true
	})
	return nil
}
