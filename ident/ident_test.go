package ident

import (
	"testing"

	"github.com/google/uuid"
)

func TestParseParticipantID(t *testing.T) {
	t.Run("valid scheme-prefixed id", func(t *testing.T) {
		p, err := ParseParticipantID("9908:974760673")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.String() != "9908:974760673" {
			t.Errorf("expected canonical form preserved, got %q", p)
		}
		if p.Scheme() != "9908" {
			t.Errorf("expected scheme 9908, got %q", p.Scheme())
		}
	})

	t.Run("rejects invalid forms", func(t *testing.T) {
		for _, s := range []string{"", "9908", ":974760673", "9908:"} {
			if _, err := ParseParticipantID(s); err == nil {
				t.Errorf("expected error for %q", s)
			}
		}
	})
}

func TestReceptionID(t *testing.T) {
	t.Run("mints unique ids", func(t *testing.T) {
		a, b := NewReceptionID(), NewReceptionID()
		if a == b {
			t.Error("expected distinct reception ids")
		}
		if _, err := uuid.Parse(a.String()); err != nil {
			t.Errorf("minted id is not a uuid: %v", err)
		}
	})

	t.Run("parse round-trips", func(t *testing.T) {
		id := NewReceptionID()
		parsed, err := ParseReceptionID(id.String())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if parsed != id {
			t.Errorf("expected %q, got %q", id, parsed)
		}
	})

	t.Run("rejects non-uuid", func(t *testing.T) {
		if _, err := ParseReceptionID("not-a-uuid"); err == nil {
			t.Error("expected error")
		}
	})
}

func TestZeroValues(t *testing.T) {
	if !ParticipantID("").IsZero() || ParticipantID("9908:1").IsZero() {
		t.Error("ParticipantID zero check")
	}
	if !AccountID(0).IsZero() || AccountID(3).IsZero() {
		t.Error("AccountID zero check")
	}
	if !MessageNumber(0).IsZero() || MessageNumber(1).IsZero() {
		t.Error("MessageNumber zero check")
	}
	if !TransmissionID("").IsZero() || TransmissionID("x").IsZero() {
		t.Error("TransmissionID zero check")
	}
	if !ProcessID("").IsZero() || ProcessID("x").IsZero() {
		t.Error("ProcessID zero check")
	}
}
