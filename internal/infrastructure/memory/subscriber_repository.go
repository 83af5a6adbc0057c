package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/cntech/bitalert/internal/domain"
)

// SubscriberRepository keeps saved subscribers in process memory. Nothing
// survives a restart.
type SubscriberRepository struct {
	mu   sync.RWMutex
	subs map[string]domain.Subscriber
}

func NewSubscriberRepository() *SubscriberRepository {
	return &SubscriberRepository{subs: make(map[string]domain.Subscriber)}
}

func (r *SubscriberRepository) LoadAll(_ context.Context) ([]domain.Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Subscriber, 0, len(r.subs))
	for _, sub := range r.subs {
		out = append(out, cloneSubscriber(sub))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (r *SubscriberRepository) Save(_ context.Context, sub domain.Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub.Email] = cloneSubscriber(sub)
	return nil
}

func (r *SubscriberRepository) Delete(_ context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, email)
	return nil
}

func cloneSubscriber(sub domain.Subscriber) domain.Subscriber {
	sub.Thresholds = append([]domain.Threshold(nil), sub.Thresholds...)
	return sub
}
