package transit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rbaliyan/event/v3"
	"github.com/redis/go-redis/v9"

	blobmemory "github.com/docport/transit/blob/memory"
	"github.com/docport/transit/store/memory"
)

func TestRedisEvents(t *testing.T) {
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	st := memory.New()
	st.RegisterAccount(1, "Acme", "ops@acme.example")
	svc, err := NewService(
		WithStore(st),
		WithBlobStore(blobmemory.New()),
		WithRedisEvents(client),
	)
	if err != nil {
		t.Fatalf("new service failed: %v", err)
	}
	if err := svc.Connect(ctx); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer svc.Close(ctx)

	var (
		mu       sync.Mutex
		received []DocumentReceivedEvent
	)
	svc.Events().DocumentReceived.Subscribe(ctx, func(_ context.Context, _ event.Event[DocumentReceivedEvent], e DocumentReceivedEvent) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, e)
		return nil
	})

	record, err := svc.Receive(ctx, receiveRequest(1))
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 event over redis transport, got %d", len(received))
	}
	if received[0].MessageNumber != record.MessageNumber {
		t.Errorf("unexpected message number: %v", received[0].MessageNumber)
	}
}

func TestEventPublishFailureHandler(t *testing.T) {
	// A handler that panics must not take the operation down with it.
	o := newOptions(
		WithEventPublishFailureHandler(func(string, error) {
			panic("handler exploded")
		}),
	)
	o.safeEventPublishFailure("DocumentReceived", context.DeadlineExceeded)
}
