package bus

import "context"

// Handler receives one raw bus message. It must not block for long;
// heavy work belongs on the caller's side.
type Handler func(channel string, data []byte)

// Subscription is one active channel subscription. Close is idempotent.
type Subscription interface {
	Close() error
}

// Bus is a channel-addressed pub/sub transport with no durability: a
// message published while nobody is subscribed is gone.
//
// Publish returns the number of receivers the broker reported. That is
// a presence heuristic, not a delivery acknowledgment; brokers that
// cannot count receivers report 1 on success.
type Bus interface {
	Publish(ctx context.Context, channel string, data []byte) (int64, error)
	Subscribe(ctx context.Context, channel string, h Handler) (Subscription, error)
	Close() error
}
