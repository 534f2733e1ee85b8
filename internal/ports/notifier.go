package ports

import (
	"context"

	"github.com/alejandrodnm/liqbot/internal/domain"
)

// Notifier presents a cycle's accepted candidates to the operator.
type Notifier interface {
	NotifyCandidates(ctx context.Context, cycleID string, candidates []domain.Candidate) error
}
