package subscription

import (
	"context"
	"time"

	"github.com/xraph/xchpay/id"
)

type Store interface {
	Create(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, subID id.SubscriptionID) (*Subscription, error)
	List(ctx context.Context, opts ListOpts) ([]*Subscription, error)
	Update(ctx context.Context, s *Subscription) error
	// SetStatus moves the subscription to status to only if it is
	// currently in status from. It reports whether the row changed.
	SetStatus(ctx context.Context, subID id.SubscriptionID, from, to Status, at time.Time) (bool, error)
}

// ListOpts filters subscription listings. Zero values are ignored.
// EndFrom is inclusive and EndBefore exclusive.
type ListOpts struct {
	UserID    string
	Status    Status
	EndFrom   time.Time
	EndBefore time.Time
	Limit     int
	Offset    int
}
