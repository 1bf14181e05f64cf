package transit

import (
	"errors"
	"fmt"
	"testing"

	"github.com/docport/transit/store"
)

func TestErrorWrapping(t *testing.T) {
	cases := []struct {
		name     string
		transit  error
		storeErr error
	}{
		{"not found", ErrNotFound, store.ErrNotFound},
		{"validation", ErrValidation, store.ErrValidation},
		{"duplicate", ErrDuplicateEntry, store.ErrDuplicateEntry},
		{"state transition", ErrInvalidStateTransition, store.ErrInvalidStateTransition},
		{"invalid id", ErrInvalidID, store.ErrInvalidID},
		{"not connected", ErrNotConnected, store.ErrNotConnected},
		{"already connected", ErrAlreadyConnected, store.ErrAlreadyConnected},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if !errors.Is(c.transit, c.storeErr) {
				t.Errorf("%v should wrap %v", c.transit, c.storeErr)
			}
			// A wrapped transit error still matches the store sentinel, so
			// callers can check either level.
			wrapped := fmt.Errorf("operation failed: %w", c.transit)
			if !errors.Is(wrapped, c.storeErr) {
				t.Errorf("wrapped %v should match %v", wrapped, c.storeErr)
			}
		})
	}
}

func TestTransportError(t *testing.T) {
	cause := errors.New("connection refused")
	err := &TransportError{RemoteHost: "ap.example.com", Err: cause}

	if !errors.Is(err, cause) {
		t.Error("expected TransportError to unwrap to cause")
	}

	var terr *TransportError
	wrapped := fmt.Errorf("dispatch: %w", err)
	if !errors.As(wrapped, &terr) {
		t.Fatal("expected errors.As to find TransportError")
	}
	if terr.RemoteHost != "ap.example.com" {
		t.Errorf("unexpected remote host: %q", terr.RemoteHost)
	}

	msg := err.Error()
	if msg != "transit: transport to ap.example.com: connection refused" {
		t.Errorf("unexpected message: %q", msg)
	}
	bare := (&TransportError{Err: cause}).Error()
	if bare != "transit: transport: connection refused" {
		t.Errorf("unexpected message: %q", bare)
	}
}

func TestEventPublishErrorHelpers(t *testing.T) {
	cause := errors.New("bus closed")
	err := &EventPublishError{EventName: "DocumentReceived", Err: cause}

	epe, ok := IsEventPublishError(fmt.Errorf("receive: %w", err))
	if !ok {
		t.Fatal("expected event publish error to be detected")
	}
	if epe.EventName != "DocumentReceived" {
		t.Errorf("unexpected event name: %q", epe.EventName)
	}
	if !errors.Is(err, cause) {
		t.Error("expected unwrap to cause")
	}

	if _, ok := IsEventPublishError(cause); ok {
		t.Error("plain errors must not be detected")
	}
}
