// Package store holds the in-memory mapping from subscriber to thresholds.
//
// Every per-subscriber slice is copy-on-write: a mutation builds a new slice
// and swaps it in under the write lock, so a snapshot taken under the read
// lock is a consistent view that no later mutation can change.
package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cntech/bitalert/internal/domain"
)

type entry struct {
	secret     string
	thresholds []domain.Threshold
	createdAt  time.Time
}

type Store struct {
	mu          sync.RWMutex
	subscribers map[string]*entry
}

func New() *Store {
	return &Store{subscribers: make(map[string]*entry)}
}

// --- Subscriber lifecycle ---

// AddSubscriber creates the subscriber if absent. An existing subscriber keeps
// its secret and thresholds; the stored secret is returned either way.
func (s *Store) AddSubscriber(email, secret string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.subscribers[email]; ok {
		return e.secret, false
	}
	s.subscribers[email] = &entry{secret: secret, createdAt: time.Now()}
	return secret, true
}

func (s *Store) RemoveSubscriber(email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subscribers[email]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrSubscriberNotFound, email)
	}
	delete(s.subscribers, email)
	return nil
}

func (s *Store) HasSubscriber(email string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.subscribers[email]
	return ok
}

// Subscriber returns a copy of one subscriber, thresholds included.
func (s *Store) Subscriber(email string) (domain.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.subscribers[email]
	if !ok {
		return domain.Subscriber{}, fmt.Errorf("%w: %s", domain.ErrSubscriberNotFound, email)
	}
	return domain.Subscriber{
		Email:      email,
		Secret:     e.secret,
		Thresholds: cloneThresholds(e.thresholds),
		CreatedAt:  e.createdAt,
	}, nil
}

// Subscribers lists every subscriber email in sorted order.
func (s *Store) Subscribers() []string {
	s.mu.RLock()
	emails := make([]string, 0, len(s.subscribers))
	for email := range s.subscribers {
		emails = append(emails, email)
	}
	s.mu.RUnlock()

	sort.Strings(emails)
	return emails
}

// Count returns the number of subscribers and the total number of thresholds.
func (s *Store) Count() (subscribers, thresholds int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.subscribers {
		thresholds += len(e.thresholds)
	}
	return len(s.subscribers), thresholds
}

// --- Threshold mutations ---

// AddThreshold inserts t, replacing an equal threshold in place.
func (s *Store) AddThreshold(email string, t domain.Threshold) error {
	if err := t.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.subscribers[email]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrSubscriberNotFound, email)
	}
	e.thresholds = upsert(e.thresholds, t)
	return nil
}

// RemoveThreshold drops any threshold equal to t. Removing a threshold the
// subscriber does not have is a no-op.
func (s *Store) RemoveThreshold(email string, t domain.Threshold) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.subscribers[email]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrSubscriberNotFound, email)
	}

	next := make([]domain.Threshold, 0, len(e.thresholds))
	for _, existing := range e.thresholds {
		if !existing.Equal(t) {
			next = append(next, existing)
		}
	}
	if len(next) != len(e.thresholds) {
		e.thresholds = next
	}
	return nil
}

// ReplaceThresholds swaps the whole set in one step. The new set is validated
// before anything changes; duplicates collapse onto the first position.
func (s *Store) ReplaceThresholds(email string, set []domain.Threshold) error {
	next := make([]domain.Threshold, 0, len(set))
	for _, t := range set {
		if err := t.Validate(); err != nil {
			return err
		}
		next = upsert(next, t)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.subscribers[email]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrSubscriberNotFound, email)
	}
	e.thresholds = next
	return nil
}

// ListThresholds returns a copy; callers may modify it freely.
func (s *Store) ListThresholds(email string) ([]domain.Threshold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.subscribers[email]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSubscriberNotFound, email)
	}
	return cloneThresholds(e.thresholds), nil
}

// --- Engine & persistence views ---

// Snapshot is the atomic view a tick evaluates. The slices are shared with
// the store but never written again, so they must be treated as read-only.
func (s *Store) Snapshot() map[string][]domain.Threshold {
	s.mu.RLock()
	defer s.mu.RUnlock()

	view := make(map[string][]domain.Threshold, len(s.subscribers))
	for email, e := range s.subscribers {
		if len(e.thresholds) > 0 {
			view[email] = e.thresholds
		}
	}
	return view
}

// Restore loads subscribers from a repository. Existing entries are replaced.
func (s *Store) Restore(subs []domain.Subscriber) error {
	loaded := make(map[string]*entry, len(subs))
	for _, sub := range subs {
		next := make([]domain.Threshold, 0, len(sub.Thresholds))
		for _, t := range sub.Thresholds {
			if err := t.Validate(); err != nil {
				return fmt.Errorf("subscriber %s: %w", sub.Email, err)
			}
			next = upsert(next, t)
		}
		createdAt := sub.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		loaded[sub.Email] = &entry{secret: sub.Secret, thresholds: next, createdAt: createdAt}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for email, e := range loaded {
		s.subscribers[email] = e
	}
	return nil
}

// Helpers

// upsert never writes into the slice it was given.
func upsert(list []domain.Threshold, t domain.Threshold) []domain.Threshold {
	next := make([]domain.Threshold, len(list), len(list)+1)
	copy(next, list)
	for i, existing := range next {
		if existing.Equal(t) {
			next[i] = t
			return next
		}
	}
	return append(next, t)
}

func cloneThresholds(list []domain.Threshold) []domain.Threshold {
	out := make([]domain.Threshold, len(list))
	copy(out, list)
	return out
}
