package nowcast

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/routeloop/core/model"
)

// ErrFeedUnavailable is returned by feeds when the upstream cannot be
// reached. The adapter never propagates it past its boundary.
var ErrFeedUnavailable = errors.New("nowcast: feed unavailable")

// Feed is the pluggable upstream forecast interface. The contract only
// requires schema-valid fields with monotonic timestamps; the transport is
// left to the implementation.
type Feed interface {
	Fetch(ctx context.Context, horizon time.Duration) (model.NowcastField, error)
}
