package transit

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rbaliyan/event/v3"
	"github.com/rbaliyan/event/v3/transport/channel"

	blobmemory "github.com/docport/transit/blob/memory"
	"github.com/docport/transit/ident"
	"github.com/docport/transit/store"
	"github.com/docport/transit/store/memory"
)

// fakeTransport records sends and returns a canned receipt or error.
type fakeTransport struct {
	mu       sync.Mutex
	sent     []ident.MessageNumber
	payloads []string
	err      error
}

func (f *fakeTransport) Send(_ context.Context, record *store.TransmissionRecord, payload io.Reader) (*DeliveryReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, record.MessageNumber)
	body := ""
	if payload != nil {
		b, err := io.ReadAll(payload)
		if err != nil {
			return nil, err
		}
		body = string(b)
	}
	f.payloads = append(f.payloads, body)
	return &DeliveryReceipt{
		TransmissionID: ident.TransmissionID("tx-" + record.MessageNumber.String()),
		RemoteHost:     "ap.remote.example",
		Evidence:       []byte("<receipt/>"),
	}, nil
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func setupTestService(t *testing.T, opts ...Option) (Service, *memory.Store) {
	t.Helper()
	st := memory.New()
	st.RegisterAccount(1, "Acme", "ops@acme.example")

	base := []Option{
		WithStore(st),
		WithBlobStore(blobmemory.New()),
	}
	svc, err := NewService(append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service failed: %v", err)
	}
	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	t.Cleanup(func() { svc.Close(context.Background()) })
	return svc, st
}

func submitRequest(account ident.AccountID) SubmitRequest {
	return SubmitRequest{
		AccountID:      account,
		Sender:         ident.ParticipantID("9908:111111111"),
		Receiver:       ident.ParticipantID("9908:222222222"),
		ChannelID:      ident.ChannelID("busdox"),
		DocumentTypeID: ident.DocumentTypeID("urn:oasis:names:specification:ubl:schema:xsd:Invoice-2::Invoice"),
		ProcessID:      ident.ProcessID("urn:www.cenbii.eu:profile:bii04:ver1.0"),
		Payload:        strings.NewReader("<Invoice/>"),
	}
}

func receiveRequest(account ident.AccountID) ReceiveRequest {
	return ReceiveRequest{
		AccountID:      account,
		Sender:         ident.ParticipantID("9908:333333333"),
		Receiver:       ident.ParticipantID("9908:111111111"),
		ChannelID:      ident.ChannelID("busdox"),
		DocumentTypeID: ident.DocumentTypeID("urn:oasis:names:specification:ubl:schema:xsd:Invoice-2::Invoice"),
		Payload:        strings.NewReader("<Invoice/>"),
	}
}

func TestNewService(t *testing.T) {
	t.Run("requires store", func(t *testing.T) {
		_, err := NewService()
		if !errors.Is(err, ErrStoreRequired) {
			t.Errorf("expected ErrStoreRequired, got %v", err)
		}
	})

	t.Run("creates service with store", func(t *testing.T) {
		svc, err := NewService(WithStore(memory.New()))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if svc == nil {
			t.Fatal("expected non-nil service")
		}
	})
}

func TestServiceLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("connect and close", func(t *testing.T) {
		svc, err := NewService(WithStore(memory.New()))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if svc.IsConnected() {
			t.Error("expected disconnected before Connect")
		}
		if err := svc.Connect(ctx); err != nil {
			t.Fatalf("connect failed: %v", err)
		}
		if !svc.IsConnected() {
			t.Error("expected connected after Connect")
		}
		if err := svc.Connect(ctx); !errors.Is(err, ErrAlreadyConnected) {
			t.Errorf("expected ErrAlreadyConnected, got %v", err)
		}
		if err := svc.Close(ctx); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if err := svc.Close(ctx); err != nil {
			t.Errorf("second close should not error, got %v", err)
		}
	})

	t.Run("operations fail when not connected", func(t *testing.T) {
		svc, _ := NewService(WithStore(memory.New()))
		if _, err := svc.Receive(ctx, receiveRequest(1)); !errors.Is(err, ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
		if _, err := svc.Account(1).Search(ctx, SearchParams{}); !errors.Is(err, ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
	})
}

func TestReceive(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t)

	t.Run("creates an inbound record", func(t *testing.T) {
		record, err := svc.Receive(ctx, receiveRequest(1))
		if err != nil {
			t.Fatalf("receive failed: %v", err)
		}
		if record.Direction != DirectionIn {
			t.Errorf("expected IN, got %s", record.Direction)
		}
		if record.ReceptionID.IsZero() {
			t.Error("expected minted reception id")
		}
		if record.PayloadLocation == "" {
			t.Error("expected stored payload location")
		}
		if record.Received.IsZero() {
			t.Error("expected received timestamp")
		}
	})

	t.Run("keeps a caller-supplied reception id", func(t *testing.T) {
		req := receiveRequest(1)
		req.ReceptionID = ident.NewReceptionID()
		record, err := svc.Receive(ctx, req)
		if err != nil {
			t.Fatalf("receive failed: %v", err)
		}
		if record.ReceptionID != req.ReceptionID {
			t.Errorf("expected %s, got %s", req.ReceptionID, record.ReceptionID)
		}
	})

	t.Run("rejects duplicate reception id", func(t *testing.T) {
		req := receiveRequest(1)
		req.ReceptionID = ident.NewReceptionID()
		req.Payload = nil
		if _, err := svc.Receive(ctx, req); err != nil {
			t.Fatalf("receive failed: %v", err)
		}
		if _, err := svc.Receive(ctx, req); !errors.Is(err, store.ErrDuplicateEntry) {
			t.Errorf("expected ErrDuplicateEntry, got %v", err)
		}
	})

	t.Run("rejects missing sender", func(t *testing.T) {
		req := receiveRequest(1)
		req.Sender = ""
		if _, err := svc.Receive(ctx, req); !errors.Is(err, store.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})
}

func TestSubmitAndDispatch(t *testing.T) {
	ctx := context.Background()
	tr := &fakeTransport{}
	svc, st := setupTestService(t, WithTransport(tr))

	sub, err := svc.Submit(ctx, submitRequest(1))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if sub.Record.Direction != DirectionOut {
		t.Errorf("expected OUT, got %s", sub.Record.Direction)
	}
	if sub.QueueID.IsZero() {
		t.Fatal("expected queue id")
	}

	entry, err := svc.QueueEntry(ctx, sub.QueueID)
	if err != nil {
		t.Fatalf("queue lookup failed: %v", err)
	}
	if entry.State != store.QueueStateQueued {
		t.Errorf("expected QUEUED, got %s", entry.State)
	}

	t.Run("dispatch delivers and acknowledges", func(t *testing.T) {
		if err := svc.Dispatch(ctx, sub.QueueID); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}
		if tr.sentCount() != 1 {
			t.Fatalf("expected 1 send, got %d", tr.sentCount())
		}
		if tr.payloads[0] != "<Invoice/>" {
			t.Errorf("unexpected payload sent: %q", tr.payloads[0])
		}

		entry, err := svc.QueueEntry(ctx, sub.QueueID)
		if err != nil {
			t.Fatalf("queue lookup failed: %v", err)
		}
		if entry.State != store.QueueStateAcknowledged {
			t.Errorf("expected AOD, got %s", entry.State)
		}

		record, err := st.ByNumber(ctx, sub.Record.MessageNumber)
		if err != nil {
			t.Fatalf("record lookup failed: %v", err)
		}
		if !record.IsDelivered() {
			t.Error("expected delivered record")
		}
		if record.RemoteHost != "ap.remote.example" {
			t.Errorf("remote host not stamped: %q", record.RemoteHost)
		}
		if record.TransmissionID.IsZero() {
			t.Error("transmission id not stamped")
		}
		if record.EvidenceLocation == "" {
			t.Error("evidence location not stamped")
		}
	})

	t.Run("dispatching an acknowledged entry fails", func(t *testing.T) {
		if err := svc.Dispatch(ctx, sub.QueueID); !errors.Is(err, ErrInvalidStateTransition) {
			t.Errorf("expected ErrInvalidStateTransition, got %v", err)
		}
	})

	t.Run("evidence is readable through the account client", func(t *testing.T) {
		rc, err := svc.Account(1).Evidence(ctx, sub.Record.MessageNumber)
		if err != nil {
			t.Fatalf("evidence failed: %v", err)
		}
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if !bytes.Equal(b, []byte("<receipt/>")) {
			t.Errorf("unexpected evidence: %q", b)
		}
	})
}

func TestDispatchFailure(t *testing.T) {
	ctx := context.Background()
	tr := &fakeTransport{err: errors.New("connection refused")}
	svc, _ := setupTestService(t, WithTransport(tr))

	sub, err := svc.Submit(ctx, submitRequest(1))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	err = svc.Dispatch(ctx, sub.QueueID)
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError, got %v", err)
	}

	// Entry stays QUEUED for retry.
	entry, err := svc.QueueEntry(ctx, sub.QueueID)
	if err != nil {
		t.Fatalf("queue lookup failed: %v", err)
	}
	if entry.State != store.QueueStateQueued {
		t.Errorf("expected QUEUED after failure, got %s", entry.State)
	}

	// Failure is recorded as an audit row.
	qerrs, err := svc.QueueErrors(ctx)
	if err != nil {
		t.Fatalf("queue errors failed: %v", err)
	}
	if len(qerrs) != 1 {
		t.Fatalf("expected 1 queue error, got %d", len(qerrs))
	}
	if qerrs[0].Message != "connection refused" {
		t.Errorf("unexpected message: %q", qerrs[0].Message)
	}
	if qerrs[0].Stacktrace == "" {
		t.Error("expected a stacktrace")
	}

	t.Run("retry succeeds after the fault clears", func(t *testing.T) {
		tr.mu.Lock()
		tr.err = nil
		tr.mu.Unlock()
		if err := svc.Dispatch(ctx, sub.QueueID); err != nil {
			t.Fatalf("retry failed: %v", err)
		}
	})

	t.Run("clear queue errors", func(t *testing.T) {
		if err := svc.ClearQueueErrors(ctx); err != nil {
			t.Fatalf("clear failed: %v", err)
		}
		qerrs, err := svc.QueueErrors(ctx)
		if err != nil {
			t.Fatalf("queue errors failed: %v", err)
		}
		if len(qerrs) != 0 {
			t.Errorf("expected no errors, got %d", len(qerrs))
		}
	})
}

func TestDispatchQueued(t *testing.T) {
	ctx := context.Background()
	tr := &fakeTransport{}
	svc, _ := setupTestService(t, WithTransport(tr), WithMaxConcurrentDispatches(4))

	const docs = 6
	for i := 0; i < docs; i++ {
		if _, err := svc.Submit(ctx, submitRequest(1)); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}

	result, err := svc.DispatchQueued(ctx)
	if err != nil {
		t.Fatalf("dispatch run failed: %v", err)
	}
	if result.Dispatched != docs || result.Failed != 0 {
		t.Fatalf("expected %d dispatched, got %+v", docs, result)
	}
	if tr.sentCount() != docs {
		t.Errorf("expected %d sends, got %d", docs, tr.sentCount())
	}

	entries, err := svc.QueuedEntries(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty queue, got %d entries", len(entries))
	}
}

func TestDispatchQueuedDrainsAllPages(t *testing.T) {
	ctx := context.Background()
	tr := &fakeTransport{}
	svc, _ := setupTestService(t, WithTransport(tr))

	docs := store.PageSize + 3
	for i := 0; i < docs; i++ {
		if _, err := svc.Submit(ctx, submitRequest(1)); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}

	result, err := svc.DispatchQueued(ctx)
	if err != nil {
		t.Fatalf("dispatch run failed: %v", err)
	}
	if result.Dispatched != docs || result.Failed != 0 {
		t.Fatalf("expected %d dispatched, got %+v", docs, result)
	}

	entries, err := svc.QueuedEntries(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty queue, got %d entries", len(entries))
	}
}

func TestDispatchRequiresTransport(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t)

	sub, err := svc.Submit(ctx, submitRequest(1))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if err := svc.Dispatch(ctx, sub.QueueID); !errors.Is(err, ErrTransportRequired) {
		t.Errorf("expected ErrTransportRequired, got %v", err)
	}
	if _, err := svc.DispatchQueued(ctx); !errors.Is(err, ErrTransportRequired) {
		t.Errorf("expected ErrTransportRequired, got %v", err)
	}
}

func TestMarkFailedAndRequeue(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t)

	sub, err := svc.Submit(ctx, submitRequest(1))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if err := svc.MarkFailed(ctx, sub.QueueID); err != nil {
		t.Fatalf("mark failed errored: %v", err)
	}
	entry, err := svc.QueueEntry(ctx, sub.QueueID)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if entry.State != store.QueueStateFailed {
		t.Errorf("expected FAILED, got %s", entry.State)
	}

	id, err := svc.Requeue(ctx, sub.Record.MessageNumber)
	if err != nil {
		t.Fatalf("requeue failed: %v", err)
	}
	if id == sub.QueueID {
		t.Error("expected fresh queue id")
	}
	entry, err = svc.QueueEntryForMessage(ctx, sub.Record.MessageNumber)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if entry.QueueID != id || entry.State != store.QueueStateQueued {
		t.Errorf("unexpected entry after requeue: %+v", entry)
	}
}

func TestReconcileSelfSend(t *testing.T) {
	ctx := context.Background()
	svc, st := setupTestService(t)

	t.Run("foreign receiver is not cloned", func(t *testing.T) {
		sub, err := svc.Submit(ctx, submitRequest(1))
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}
		cloned, err := svc.ReconcileSelfSend(ctx, sub.Record.MessageNumber)
		if err != nil {
			t.Fatalf("reconcile failed: %v", err)
		}
		if !cloned.IsZero() {
			t.Errorf("expected no clone, got %v", cloned)
		}
	})

	t.Run("local receiver is cloned inbound", func(t *testing.T) {
		req := submitRequest(1)
		st.RegisterReceiver(1, req.Receiver)

		sub, err := svc.Submit(ctx, req)
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}
		cloned, err := svc.ReconcileSelfSend(ctx, sub.Record.MessageNumber)
		if err != nil {
			t.Fatalf("reconcile failed: %v", err)
		}
		if cloned.IsZero() {
			t.Fatal("expected a cloned record")
		}

		inbound, err := svc.Record(ctx, cloned)
		if err != nil {
			t.Fatalf("lookup failed: %v", err)
		}
		if inbound.Direction != DirectionIn {
			t.Errorf("expected IN, got %s", inbound.Direction)
		}
		if inbound.ReceptionID == sub.Record.ReceptionID {
			t.Error("clone must carry a fresh reception id")
		}
		if inbound.IsDelivered() {
			t.Error("clone must start undelivered")
		}

		// The outbound side is untouched.
		outbound, err := svc.Record(ctx, sub.Record.MessageNumber)
		if err != nil {
			t.Fatalf("lookup failed: %v", err)
		}
		if outbound.Direction != DirectionOut {
			t.Errorf("outbound record changed: %+v", outbound)
		}
	})

	t.Run("inbound records are rejected", func(t *testing.T) {
		record, err := svc.Receive(ctx, receiveRequest(1))
		if err != nil {
			t.Fatalf("receive failed: %v", err)
		}
		if _, err := svc.ReconcileSelfSend(ctx, record.MessageNumber); !errors.Is(err, ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})
}

func TestReconcileAfterDispatch(t *testing.T) {
	ctx := context.Background()
	tr := &fakeTransport{}
	svc, st := setupTestService(t, WithTransport(tr))

	req := submitRequest(1)
	req.InstanceID = ident.InstanceID("env-7")
	st.RegisterReceiver(1, req.Receiver)

	sub, err := svc.Submit(ctx, req)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if err := svc.Dispatch(ctx, sub.QueueID); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	outbound, err := svc.Record(ctx, sub.Record.MessageNumber)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}

	cloned, err := svc.ReconcileSelfSend(ctx, sub.Record.MessageNumber)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	inbound, err := svc.Record(ctx, cloned)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}

	// The clone carries the transport trail of the dispatched outbound.
	if inbound.TransmissionID != outbound.TransmissionID {
		t.Errorf("transmission id not preserved: %q", inbound.TransmissionID)
	}
	if inbound.InstanceID != outbound.InstanceID {
		t.Errorf("instance id not preserved: %q", inbound.InstanceID)
	}
	if inbound.EvidenceLocation != outbound.EvidenceLocation {
		t.Errorf("evidence location not carried over: %q", inbound.EvidenceLocation)
	}
	if inbound.RemoteHost != outbound.RemoteHost {
		t.Errorf("remote host not carried over: %q", inbound.RemoteHost)
	}
	if inbound.PayloadLocation != outbound.PayloadLocation {
		t.Errorf("payload location not carried over: %q", inbound.PayloadLocation)
	}
	if inbound.IsDelivered() {
		t.Error("clone must start undelivered")
	}
}

func TestAccountClient(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t)
	account := svc.Account(1)

	record, err := svc.Receive(ctx, receiveRequest(1))
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}

	t.Run("ID", func(t *testing.T) {
		if account.ID() != 1 {
			t.Errorf("expected account 1, got %v", account.ID())
		}
	})

	t.Run("zero account id rejected", func(t *testing.T) {
		_, err := svc.Account(0).Search(ctx, SearchParams{})
		if !errors.Is(err, ErrInvalidID) {
			t.Errorf("expected ErrInvalidID, got %v", err)
		}
	})

	t.Run("record access is scoped", func(t *testing.T) {
		if _, err := account.Record(ctx, record.MessageNumber); err != nil {
			t.Errorf("owner lookup failed: %v", err)
		}
		if _, err := svc.Account(2).Record(ctx, record.MessageNumber); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound for other account, got %v", err)
		}
	})

	t.Run("search and count", func(t *testing.T) {
		records, err := account.Search(ctx, SearchParams{Direction: DirectionIn})
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("expected 1 record, got %d", len(records))
		}
		count, err := account.Count(ctx, SearchParams{})
		if err != nil {
			t.Fatalf("count failed: %v", err)
		}
		if count != 1 {
			t.Errorf("expected count 1, got %d", count)
		}
	})

	t.Run("invalid search params rejected", func(t *testing.T) {
		_, err := account.Search(ctx, SearchParams{DateCondition: "!="})
		if !errors.Is(err, store.ErrInvalidSearch) {
			t.Errorf("expected ErrInvalidSearch, got %v", err)
		}
	})

	t.Run("payload round trip", func(t *testing.T) {
		rc, err := account.Payload(ctx, record.MessageNumber)
		if err != nil {
			t.Fatalf("payload failed: %v", err)
		}
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if string(b) != "<Invoice/>" {
			t.Errorf("unexpected payload: %q", b)
		}
	})

	t.Run("download flow marks delivered", func(t *testing.T) {
		undelivered, err := account.Undelivered(ctx, DirectionIn)
		if err != nil {
			t.Fatalf("undelivered failed: %v", err)
		}
		if len(undelivered) != 1 {
			t.Fatalf("expected 1 undelivered, got %d", len(undelivered))
		}

		if err := account.MarkDelivered(ctx, record.MessageNumber); err != nil {
			t.Fatalf("mark delivered failed: %v", err)
		}

		count, err := account.UndeliveredInboundCount(ctx)
		if err != nil {
			t.Fatalf("count failed: %v", err)
		}
		if count != 0 {
			t.Errorf("expected 0 undelivered, got %d", count)
		}
	})

	t.Run("cross-account mark delivered rejected", func(t *testing.T) {
		err := svc.Account(2).MarkDelivered(ctx, record.MessageNumber)
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("statistics", func(t *testing.T) {
		stats, err := account.Statistics(ctx)
		if err != nil {
			t.Fatalf("statistics failed: %v", err)
		}
		if stats.AccountID != 1 || stats.Inbound.Total != 1 {
			t.Errorf("unexpected statistics: %+v", stats)
		}
		if stats.AccountName != "Acme" {
			t.Errorf("unexpected account name: %q", stats.AccountName)
		}
	})
}

func TestServiceStatistics(t *testing.T) {
	ctx := context.Background()
	svc, st := setupTestService(t)
	st.RegisterAccount(2, "Globex", "it@globex.example")

	if _, err := svc.Receive(ctx, receiveRequest(1)); err != nil {
		t.Fatalf("receive failed: %v", err)
	}

	rows, err := svc.Statistics(ctx)
	if err != nil {
		t.Fatalf("statistics failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Inbound.Total != 1 || rows[1].Total != 0 {
		t.Errorf("unexpected rows: %+v", rows)
	}
}

func TestUnattributedRecords(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t)

	req := receiveRequest(0)
	req.Payload = nil
	record, err := svc.Receive(ctx, req)
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}

	records, err := svc.UnattributedRecords(ctx)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if len(records) != 1 || records[0].MessageNumber != record.MessageNumber {
		t.Fatalf("expected the unattributed record, got %+v", records)
	}
}

func TestEvents(t *testing.T) {
	ctx := context.Background()
	tr := &fakeTransport{}
	svc, st := setupTestService(t, WithTransport(tr), WithEventTransport(channel.New()))

	var (
		mu        sync.Mutex
		received  []DocumentReceivedEvent
		queued    []DocumentQueuedEvent
		delivered []DocumentDeliveredEvent
	)
	svc.Events().DocumentReceived.Subscribe(ctx, func(_ context.Context, _ event.Event[DocumentReceivedEvent], e DocumentReceivedEvent) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, e)
		return nil
	})
	svc.Events().DocumentQueued.Subscribe(ctx, func(_ context.Context, _ event.Event[DocumentQueuedEvent], e DocumentQueuedEvent) error {
		mu.Lock()
		defer mu.Unlock()
		queued = append(queued, e)
		return nil
	})
	svc.Events().DocumentDelivered.Subscribe(ctx, func(_ context.Context, _ event.Event[DocumentDeliveredEvent], e DocumentDeliveredEvent) error {
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, e)
		return nil
	})

	if _, err := svc.Receive(ctx, receiveRequest(1)); err != nil {
		t.Fatalf("receive failed: %v", err)
	}

	req := submitRequest(1)
	st.RegisterReceiver(1, req.Receiver)
	sub, err := svc.Submit(ctx, req)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if err := svc.Dispatch(ctx, sub.QueueID); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if _, err := svc.ReconcileSelfSend(ctx, sub.Record.MessageNumber); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	// Events are delivered asynchronously on some transports.
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		ok := len(received) == 2 && len(queued) == 1 && len(delivered) == 1
		mu.Unlock()
		if ok || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Errorf("expected 2 received events (direct + reconciled), got %d", len(received))
	}
	if len(queued) != 1 {
		t.Errorf("expected 1 queued event, got %d", len(queued))
	}
	if len(delivered) != 1 {
		t.Errorf("expected 1 delivered event, got %d", len(delivered))
	}
	if len(queued) == 1 && queued[0].QueueID != sub.QueueID {
		t.Errorf("unexpected queue id in event: %v", queued[0].QueueID)
	}
	if len(delivered) == 1 && delivered[0].Direction != DirectionOut {
		t.Errorf("unexpected direction in event: %s", delivered[0].Direction)
	}
}
