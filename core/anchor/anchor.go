package anchor

import "context"

// Anchor forwards a committed record digest to an external anchoring
// service. Submission is one-way and best-effort: failures are non-fatal
// and leave the record flagged anchor_pending.
type Anchor interface {
	Submit(ctx context.Context, digest string) (ref string, err error)
}

// Nop discards digests. Used when anchoring is disabled.
type Nop struct{}

// Submit implements Anchor.
func (Nop) Submit(context.Context, string) (string, error) { return "", nil }
