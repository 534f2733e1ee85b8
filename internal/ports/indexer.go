package ports

import (
	"context"

	"github.com/alejandrodnm/liqbot/internal/domain"
)

// PositionIndexer lists currently open borrow positions. Used once at startup
// and again after the event stream reconnects.
type PositionIndexer interface {
	OpenBorrows(ctx context.Context) ([]domain.WatchKey, error)
}
