package transit

import (
	"context"

	"github.com/docport/transit/store"
)

// Statistics returns per-account traffic statistics for all known accounts.
// Accounts without messages are included with zero counts.
func (s *service) Statistics(ctx context.Context) ([]store.AccountStatistics, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	return s.store.AccountStatistics(ctx, 0)
}
