package store

import (
	"errors"
	"testing"
	"time"
)

func TestSearchParamsValidate(t *testing.T) {
	date := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		params SearchParams
		ok     bool
	}{
		{"zero value", SearchParams{}, true},
		{"direction filter", SearchParams{Direction: DirectionIn}, true},
		{"bad direction", SearchParams{Direction: "SIDEWAYS"}, false},
		{"date with condition", SearchParams{DateCondition: DateEqual, Date: date}, true},
		{"condition without date", SearchParams{DateCondition: DateEqual}, false},
		{"date without condition", SearchParams{Date: date}, false},
		{"bad condition", SearchParams{DateCondition: "!=", Date: date}, false},
		{"negative page", SearchParams{PageIndex: -1}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.params.Validate()
			if c.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !c.ok && !errors.Is(err, ErrInvalidSearch) {
				t.Errorf("expected ErrInvalidSearch, got %v", err)
			}
		})
	}
}

func TestSearchParamsOffset(t *testing.T) {
	cases := []struct {
		page   int
		offset int
	}{
		{0, 0},
		{1, 0},
		{2, PageSize},
		{5, 4 * PageSize},
	}
	for _, c := range cases {
		if got := (SearchParams{PageIndex: c.page}).Offset(); got != c.offset {
			t.Errorf("page %d: expected offset %d, got %d", c.page, c.offset, got)
		}
	}
}

func TestSearchParamsMatchesDate(t *testing.T) {
	morning := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 3, 1, 22, 45, 0, 0, time.UTC)
	nextDay := time.Date(2026, 3, 2, 0, 30, 0, 0, time.UTC)

	t.Run("no filter matches everything", func(t *testing.T) {
		if !(SearchParams{}).MatchesDate(morning) {
			t.Error("expected match")
		}
	})

	t.Run("equal compares calendar days", func(t *testing.T) {
		p := SearchParams{DateCondition: DateEqual, Date: evening}
		if !p.MatchesDate(morning) {
			t.Error("same day, different time should match")
		}
		if p.MatchesDate(nextDay) {
			t.Error("different day should not match")
		}
	})

	t.Run("bounds are inclusive", func(t *testing.T) {
		le := SearchParams{DateCondition: DateLessEqual, Date: morning}
		if !le.MatchesDate(evening) {
			t.Error("same day should satisfy <=")
		}
		if le.MatchesDate(nextDay) {
			t.Error("later day should not satisfy <=")
		}

		ge := SearchParams{DateCondition: DateGreaterEqual, Date: evening}
		if !ge.MatchesDate(morning) {
			t.Error("same day should satisfy >=")
		}
		if !ge.MatchesDate(nextDay) {
			t.Error("later day should satisfy >=")
		}
	})

	t.Run("timezone normalized to UTC", func(t *testing.T) {
		// 23:00-05:00 is already the next day in UTC.
		est := time.FixedZone("EST", -5*3600)
		local := time.Date(2026, 3, 1, 23, 0, 0, 0, est)
		p := SearchParams{DateCondition: DateEqual, Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)}
		if !p.MatchesDate(local) {
			t.Error("expected UTC day comparison")
		}
	})
}

func TestRecordDataValidate(t *testing.T) {
	valid := RecordData{
		Direction:      DirectionIn,
		Sender:         "9908:111111111",
		Receiver:       "9908:222222222",
		ChannelID:      "busdox",
		DocumentTypeID: "urn:example:Invoice",
		ReceptionID:    "rcpt-1",
		Received:       time.Now(),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}

	t.Run("field errors unwrap to ErrValidation", func(t *testing.T) {
		d := valid
		d.Sender = ""
		err := d.Validate()
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
		var fe *FieldError
		if !errors.As(err, &fe) || fe.Field != "sender" {
			t.Errorf("expected sender field error, got %v", err)
		}
	})

	t.Run("outbound needs no reception id", func(t *testing.T) {
		d := valid
		d.Direction = DirectionOut
		d.ReceptionID = ""
		if err := d.Validate(); err != nil {
			t.Errorf("expected valid, got %v", err)
		}
	})
}

func TestParseDirection(t *testing.T) {
	for _, s := range []string{"IN", "in", "In"} {
		d, err := ParseDirection(s)
		if err != nil || d != DirectionIn {
			t.Errorf("ParseDirection(%q) = %v, %v", s, d, err)
		}
	}
	if _, err := ParseDirection("BOTH"); !errors.Is(err, ErrInvalidSearch) {
		t.Errorf("expected ErrInvalidSearch, got %v", err)
	}
}
