package chat

import (
	"context"

	"golang.org/x/time/rate"
)

// OutboxSize is the default capacity of an Outbox.
const OutboxSize = 64

type outboxOp struct {
	channel string
	do      func(ctx context.Context) error
}

// Outbox runs the outgoing operations of a conn one at a time, in the order
// they were pushed, paced by a rate limiter.
type Outbox struct {
	ops     chan outboxOp
	limiter *rate.Limiter
}

// NewOutbox returns an outbox holding up to size pending operations. A nil
// limiter disables pacing.
func NewOutbox(size int, limiter *rate.Limiter) *Outbox {
	return &Outbox{
		ops:     make(chan outboxOp, size),
		limiter: limiter,
	}
}

// Push queues do without blocking. It returns false when the outbox is full.
// channel is the channel errors of do are reported to.
func (o *Outbox) Push(channel string, do func(ctx context.Context) error) bool {
	select {
	case o.ops <- outboxOp{channel: channel, do: do}:
		return true
	default:
		return false
	}
}

// Run runs queued operations until ctx is done. Failed operations are
// passed to onError.
func (o *Outbox) Run(ctx context.Context, onError func(channel string, err error)) {
	for {
		var op outboxOp
		select {
		case <-ctx.Done():
			return
		case op = <-o.ops:
		}
		if o.limiter != nil {
			if err := o.limiter.Wait(ctx); err != nil {
				return
			}
		}
		if err := op.do(ctx); err != nil {
			onError(op.channel, err)
		}
	}
}
