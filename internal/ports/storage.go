package ports

import (
	"context"

	"github.com/alejandrodnm/liqbot/internal/domain"
)

// Journal records what each cycle did. It is an audit trail only: nothing in
// it is read back to rebuild the watchlist.
type Journal interface {
	SaveCycle(ctx context.Context, summary domain.CycleSummary) error
	SaveAttempt(ctx context.Context, attempt domain.Attempt) error
	Close() error
}
