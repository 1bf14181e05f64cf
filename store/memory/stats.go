package memory

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/docport/transit/ident"
	"github.com/docport/transit/store"
)

// AccountStatistics derives one statistics row per account. A zero account id
// aggregates every known account; a concrete id yields a single row even when
// the account has no messages yet.
func (s *Store) AccountStatistics(ctx context.Context, account ident.AccountID) ([]store.AccountStatistics, error) {
	if atomic.LoadInt32(&s.connected) == 0 {
		return nil, store.ErrNotConnected
	}

	rows := make(map[ident.AccountID]*store.AccountStatistics)

	row := func(id ident.AccountID) *store.AccountStatistics {
		if r, ok := rows[id]; ok {
			return r
		}
		r := &store.AccountStatistics{AccountID: id}
		if v, ok := s.accounts.Load(id); ok {
			info := v.(accountInfo)
			r.AccountName = info.name
			r.ContactEmail = info.email
		}
		rows[id] = r
		return r
	}

	// Accounts with no messages still get a row, like the SQL backend's
	// outer join from the account table.
	s.accounts.Range(func(k, _ any) bool {
		id := k.(ident.AccountID)
		if account.IsZero() || id == account {
			row(id)
		}
		return true
	})
	if !account.IsZero() {
		row(account)
	}

	s.records.Range(func(_, v any) bool {
		r := v.(*store.TransmissionRecord)
		if r.AccountID.IsZero() {
			return true
		}
		if !account.IsZero() && r.AccountID != account {
			return true
		}
		st := row(r.AccountID)
		st.Total++
		switch r.Direction {
		case store.DirectionIn:
			st.Inbound.Total++
			st.Inbound.LastReceived = maxTime(st.Inbound.LastReceived, r.Received)
			if r.Delivered != nil {
				st.Inbound.LastDownloaded = maxTime(st.Inbound.LastDownloaded, *r.Delivered)
			} else if !r.ReceptionID.IsZero() {
				st.Inbound.Undelivered++
				st.Inbound.OldestUndelivered = minTime(st.Inbound.OldestUndelivered, r.Received)
			}
		case store.DirectionOut:
			st.Outbound.Total++
			st.Outbound.LastReceived = maxTime(st.Outbound.LastReceived, r.Received)
			if r.Delivered != nil {
				st.Outbound.LastSent = maxTime(st.Outbound.LastSent, *r.Delivered)
			} else {
				st.Outbound.Undelivered++
			}
		}
		return true
	})

	out := make([]store.AccountStatistics, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

func maxTime(cur *time.Time, t time.Time) *time.Time {
	if cur == nil || t.After(*cur) {
		t := t
		return &t
	}
	return cur
}

func minTime(cur *time.Time, t time.Time) *time.Time {
	if cur == nil || t.Before(*cur) {
		t := t
		return &t
	}
	return cur
}
