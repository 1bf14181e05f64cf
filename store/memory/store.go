// Package memory provides an in-memory Store implementation for testing.
// This store is not suitable for production use - data is not persisted.
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

// Store implements store.Store with in-memory storage.
// Thread-safe for concurrent use. Not suitable for production.
type Store struct {
	records      sync.Map // map[ident.MessageNumber]*store.TransmissionRecord
	receptionIdx sync.Map // map[string]ident.MessageNumber (account|direction|receptionID -> number)
	recordLocks  sync.Map // map[ident.MessageNumber]*sync.Mutex (per-record locks for mutations)

	queue      sync.Map // map[store.QueueID]*store.QueueEntry
	queueIdx   sync.Map // map[ident.MessageNumber]store.QueueID (one entry per message)
	queueErrs  sync.Map // map[store.QueueErrorID]*store.QueueError
	entryLocks sync.Map // map[store.QueueID]*sync.Mutex (per-entry locks for state transitions)

	accounts  sync.Map // map[ident.AccountID]accountInfo
	receivers sync.Map // map[string]struct{} (account|participant)

	nextNumber  int64
	nextQueueID int64
	nextErrorID int64
	connected   int32
}

type accountInfo struct {
	name  string
	email string
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{}
}

// Connect marks the store as connected.
func (s *Store) Connect(_ context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}
	return nil
}

// Close marks the store as disconnected.
func (s *Store) Close(_ context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

// RegisterAccount registers account metadata used by statistics rows.
// Test fixture; the SQL backend reads these from the account table.
func (s *Store) RegisterAccount(id ident.AccountID, name, contactEmail string) {
	s.accounts.Store(id, accountInfo{name: name, email: contactEmail})
}

// RegisterReceiver registers a participant as a receiver on an account.
func (s *Store) RegisterReceiver(account ident.AccountID, participant ident.ParticipantID) {
	s.receivers.Store(receiverKey(account, participant), struct{}{})
}

// IsRegisteredReceiver reports whether the participant is registered to
// receive documents on the account. Implements store.ReceiverRegistry.
func (s *Store) IsRegisteredReceiver(_ context.Context, account ident.AccountID, participant ident.ParticipantID) (bool, error) {
	if atomic.LoadInt32(&s.connected) == 0 {
		return false, store.ErrNotConnected
	}
	_, ok := s.receivers.Load(receiverKey(account, participant))
	return ok, nil
}

func receiverKey(account ident.AccountID, participant ident.ParticipantID) string {
	return account.String() + "|" + participant.String()
}

func receptionKey(account ident.AccountID, direction store.Direction, id ident.ReceptionID) string {
	return account.String() + "|" + string(direction) + "|" + id.String()
}

// getRecordLock returns the mutex for a message number, creating one if needed.
// Uses LoadOrStore for atomic get-or-create.
func (s *Store) getRecordLock(n ident.MessageNumber) *sync.Mutex {
	lock, _ := s.recordLocks.LoadOrStore(n, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// =============================================================================
// Message Operations
// =============================================================================

// Create persists a new transmission record and assigns its message number.
func (s *Store) Create(ctx context.Context, data store.RecordData) (ident.MessageNumber, error) {
	if atomic.LoadInt32(&s.connected) == 0 {
		return 0, store.ErrNotConnected
	}
	if err := data.Validate(); err != nil {
		return 0, err
	}

	n := ident.MessageNumber(atomic.AddInt64(&s.nextNumber, 1))

	// Atomically claim the (account, direction, reception id) slot before
	// making the record visible. Mirrors the SQL backend's unique index.
	if !data.ReceptionID.IsZero() {
		key := receptionKey(data.AccountID, data.Direction, data.ReceptionID)
		if _, loaded := s.receptionIdx.LoadOrStore(key, n); loaded {
			return 0, store.ErrDuplicateEntry
		}
	}

	r := &store.TransmissionRecord{
		MessageNumber:    n,
		AccountID:        data.AccountID,
		Direction:        data.Direction,
		Sender:           data.Sender,
		Receiver:         data.Receiver,
		ChannelID:        data.ChannelID,
		DocumentTypeID:   data.DocumentTypeID,
		ProcessID:        data.ProcessID,
		ReceptionID:      data.ReceptionID,
		TransmissionID:   data.TransmissionID,
		InstanceID:       data.InstanceID,
		Received:         data.Received.UTC(),
		RemoteHost:       data.RemoteHost,
		PayloadLocation:  data.PayloadLocation,
		EvidenceLocation: data.EvidenceLocation,
	}
	s.records.Store(n, r)
	return n, nil
}

// ByNumber retrieves a record by message number.
func (s *Store) ByNumber(ctx context.Context, n ident.MessageNumber) (*store.TransmissionRecord, error) {
	if atomic.LoadInt32(&s.connected) == 0 {
		return nil, store.ErrNotConnected
	}
	if n.IsZero() {
		return nil, store.ErrInvalidID
	}
	v, ok := s.records.Load(n)
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneRecord(v.(*store.TransmissionRecord)), nil
}

// ByNumberForAccount retrieves a record scoped to an account. A record that
// belongs to a different account is reported as not found.
func (s *Store) ByNumberForAccount(ctx context.Context, account ident.AccountID, n ident.MessageNumber) (*store.TransmissionRecord, error) {
	r, err := s.ByNumber(ctx, n)
	if err != nil {
		return nil, err
	}
	if r.AccountID != account {
		return nil, store.ErrNotFound
	}
	return r, nil
}

// ByReceptionID retrieves the record with the given direction and reception id.
func (s *Store) ByReceptionID(ctx context.Context, direction store.Direction, id ident.ReceptionID) (*store.TransmissionRecord, error) {
	if atomic.LoadInt32(&s.connected) == 0 {
		return nil, store.ErrNotConnected
	}
	if id.IsZero() {
		return nil, store.ErrInvalidID
	}
	var found *store.TransmissionRecord
	s.records.Range(func(_, v any) bool {
		r := v.(*store.TransmissionRecord)
		if r.Direction == direction && r.ReceptionID == id {
			found = r
			return false
		}
		return true
	})
	if found == nil {
		return nil, store.ErrNotFound
	}
	return cloneRecord(found), nil
}

// AllByReceptionID retrieves the records carrying the reception id in both
// directions, ordered by message number.
func (s *Store) AllByReceptionID(ctx context.Context, id ident.ReceptionID) ([]store.TransmissionRecord, error) {
	if atomic.LoadInt32(&s.connected) == 0 {
		return nil, store.ErrNotConnected
	}
	if id.IsZero() {
		return nil, store.ErrInvalidID
	}
	var all []*store.TransmissionRecord
	s.records.Range(func(_, v any) bool {
		r := v.(*store.TransmissionRecord)
		if r.ReceptionID == id {
			all = append(all, r)
		}
		return true
	})
	sortRecords(all)
	return cloneRecords(all), nil
}

// Search returns the account's records matching the parameters, ordered by
// ascending message number, one page.
func (s *Store) Search(ctx context.Context, account ident.AccountID, params store.SearchParams) ([]store.TransmissionRecord, error) {
	if atomic.LoadInt32(&s.connected) == 0 {
		return nil, store.ErrNotConnected
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	var all []*store.TransmissionRecord
	s.records.Range(func(_, v any) bool {
		r := v.(*store.TransmissionRecord)
		if r.AccountID == account && matchesParams(r, params) {
			all = append(all, r)
		}
		return true
	})
	sortRecords(all)

	start := params.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + store.PageSize
	if end > len(all) {
		end = len(all)
	}
	return cloneRecords(all[start:end]), nil
}

// Count returns the number of records matching the parameters, ignoring
// pagination.
func (s *Store) Count(ctx context.Context, account ident.AccountID, params store.SearchParams) (int64, error) {
	if atomic.LoadInt32(&s.connected) == 0 {
		return 0, store.ErrNotConnected
	}
	if err := params.Validate(); err != nil {
		return 0, err
	}
	var count int64
	s.records.Range(func(_, v any) bool {
		r := v.(*store.TransmissionRecord)
		if r.AccountID == account && matchesParams(r, params) {
			count++
		}
		return true
	})
	return count, nil
}

// Undelivered lists the account's undelivered records for one direction.
func (s *Store) Undelivered(ctx context.Context, account ident.AccountID, direction store.Direction) ([]store.TransmissionRecord, error) {
	if atomic.LoadInt32(&s.connected) == 0 {
		return nil, store.ErrNotConnected
	}
	if !direction.Valid() {
		return nil, store.ErrInvalidSearch
	}

	var all []*store.TransmissionRecord
	s.records.Range(func(_, v any) bool {
		r := v.(*store.TransmissionRecord)
		if r.AccountID == account && r.Direction == direction && s.isUndelivered(r) {
			all = append(all, r)
		}
		return true
	})
	sortRecords(all)
	if len(all) > store.PageSize {
		all = all[:store.PageSize]
	}
	return cloneRecords(all), nil
}

// UndeliveredInboundCount returns the number of inbound records not yet
// delivered to the account.
func (s *Store) UndeliveredInboundCount(ctx context.Context, account ident.AccountID) (int64, error) {
	if atomic.LoadInt32(&s.connected) == 0 {
		return 0, store.ErrNotConnected
	}
	var count int64
	s.records.Range(func(_, v any) bool {
		r := v.(*store.TransmissionRecord)
		if r.AccountID == account && r.Direction == store.DirectionIn && s.isUndelivered(r) {
			count++
		}
		return true
	})
	return count, nil
}

// isUndelivered applies the per-direction undelivered rules: inbound records
// need a reception id to be deliverable at all, and outbound records whose
// queue entry reached AOD are treated as handled even before final accounting
// stamps the delivered timestamp.
func (s *Store) isUndelivered(r *store.TransmissionRecord) bool {
	if r.Delivered != nil {
		return false
	}
	switch r.Direction {
	case store.DirectionIn:
		return !r.ReceptionID.IsZero()
	case store.DirectionOut:
		if qid, ok := s.queueIdx.Load(r.MessageNumber); ok {
			if v, ok := s.queue.Load(qid.(store.QueueID)); ok {
				if v.(*store.QueueEntry).State == store.QueueStateAcknowledged {
					return false
				}
			}
		}
		return true
	}
	return false
}

// MarkDelivered sets the delivered timestamp. Last write wins.
// Uses per-record locking to prevent concurrent mutation races.
func (s *Store) MarkDelivered(ctx context.Context, n ident.MessageNumber, at time.Time) error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	if n.IsZero() {
		return store.ErrInvalidID
	}
	if at.IsZero() {
		return &store.FieldError{Field: "delivered", Reason: "is required"}
	}

	lock := s.getRecordLock(n)
	lock.Lock()
	defer lock.Unlock()

	v, ok := s.records.Load(n)
	if !ok {
		return store.ErrNotFound
	}

	// Copy-on-write: clone, modify, store
	r := cloneRecord(v.(*store.TransmissionRecord))
	at = at.UTC()
	r.Delivered = &at
	s.records.Store(n, r)
	return nil
}

// UpdateOutboundDelivery records delivery metadata on an outbound record in
// one atomic update.
func (s *Store) UpdateOutboundDelivery(ctx context.Context, n ident.MessageNumber, update store.DeliveryUpdate) error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	if n.IsZero() {
		return store.ErrInvalidID
	}
	if update.DeliveredAt.IsZero() {
		return &store.FieldError{Field: "delivered", Reason: "is required"}
	}

	lock := s.getRecordLock(n)
	lock.Lock()
	defer lock.Unlock()

	v, ok := s.records.Load(n)
	if !ok {
		return store.ErrNotFound
	}
	orig := v.(*store.TransmissionRecord)
	if orig.Direction != store.DirectionOut {
		return store.ErrNotFound
	}

	r := cloneRecord(orig)
	at := update.DeliveredAt.UTC()
	r.Delivered = &at
	r.RemoteHost = update.RemoteHost
	r.TransmissionID = update.TransmissionID
	if update.EvidenceLocation != "" {
		r.EvidenceLocation = update.EvidenceLocation
	}
	s.records.Store(n, r)
	return nil
}

// CloneToInbound copies an outbound record into a new inbound record with the
// given fresh reception id, no delivered timestamp and a new message number.
// Transport identifiers, remote host and content locations carry over.
func (s *Store) CloneToInbound(ctx context.Context, n ident.MessageNumber, receptionID ident.ReceptionID) (ident.MessageNumber, error) {
	if atomic.LoadInt32(&s.connected) == 0 {
		return 0, store.ErrNotConnected
	}
	if n.IsZero() || receptionID.IsZero() {
		return 0, store.ErrInvalidID
	}

	v, ok := s.records.Load(n)
	if !ok {
		return 0, store.ErrNotFound
	}
	src := v.(*store.TransmissionRecord)
	if src.Direction != store.DirectionOut {
		return 0, store.ErrNotFound
	}

	return s.Create(ctx, store.RecordData{
		AccountID:        src.AccountID,
		Direction:        store.DirectionIn,
		Sender:           src.Sender,
		Receiver:         src.Receiver,
		ChannelID:        src.ChannelID,
		DocumentTypeID:   src.DocumentTypeID,
		ProcessID:        src.ProcessID,
		ReceptionID:      receptionID,
		TransmissionID:   src.TransmissionID,
		InstanceID:       src.InstanceID,
		Received:         src.Received,
		RemoteHost:       src.RemoteHost,
		PayloadLocation:  src.PayloadLocation,
		EvidenceLocation: src.EvidenceLocation,
	})
}

// WithoutAccount lists records not yet attributed to any account.
func (s *Store) WithoutAccount(ctx context.Context) ([]store.TransmissionRecord, error) {
	if atomic.LoadInt32(&s.connected) == 0 {
		return nil, store.ErrNotConnected
	}
	var all []*store.TransmissionRecord
	s.records.Range(func(_, v any) bool {
		r := v.(*store.TransmissionRecord)
		if r.AccountID.IsZero() {
			all = append(all, r)
		}
		return true
	})
	sortRecords(all)
	return cloneRecords(all), nil
}

// =============================================================================
// Helper Functions
// =============================================================================

func matchesParams(r *store.TransmissionRecord, params store.SearchParams) bool {
	if params.Direction != "" && r.Direction != params.Direction {
		return false
	}
	if !params.Sender.IsZero() && r.Sender != params.Sender {
		return false
	}
	if !params.Receiver.IsZero() && r.Receiver != params.Receiver {
		return false
	}
	return params.MatchesDate(r.Received)
}

func sortRecords(rs []*store.TransmissionRecord) {
	sort.Slice(rs, func(i, j int) bool {
		return rs[i].MessageNumber < rs[j].MessageNumber
	})
}

func cloneRecord(r *store.TransmissionRecord) *store.TransmissionRecord {
	c := *r
	if r.Delivered != nil {
		t := *r.Delivered
		c.Delivered = &t
	}
	return &c
}

func cloneRecords(rs []*store.TransmissionRecord) []store.TransmissionRecord {
	out := make([]store.TransmissionRecord, len(rs))
	for i, r := range rs {
		out[i] = *cloneRecord(r)
	}
	return out
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)
var _ store.ReceiverRegistry = (*Store)(nil)
