package domain

import (
	"context"
	"time"
)

// Message is a plain-text notification.
type Message struct {
	Subject string
	Body    string
}

// Notifier delivers one message to one recipient. Implementations bound
// their own timeout through ctx and report failure to the caller.
type Notifier interface {
	Notify(ctx context.Context, recipient string, msg Message) error
}

// PriceFeed is a push-based tick source. Subscribe is called once at startup.
type PriceFeed interface {
	Subscribe(ctx context.Context) (<-chan PriceUpdateEvent, error)
}

// SubscriberRepository snapshots subscribers (with their thresholds) so the
// in-memory store can be restored after a restart.
type SubscriberRepository interface {
	LoadAll(ctx context.Context) ([]Subscriber, error)
	Save(ctx context.Context, sub Subscriber) error
	Delete(ctx context.Context, email string) error
}

// CandidateStore keeps pending activation codes until they are used or expire.
type CandidateStore interface {
	Put(ctx context.Context, code, email string, ttl time.Duration) error
	// Take returns the email for code and forgets the code. Unknown or
	// expired codes yield ErrActivationNotFound.
	Take(ctx context.Context, code string) (string, error)
}
