// Package memory holds the in-process CandidateStore and SubscriberRepository
// used when Redis or a database is not configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cntech/bitalert/internal/domain"
)

type CandidateStore struct {
	mu         sync.Mutex
	candidates map[string]domain.ActivationCandidate
	now        func() time.Time
}

func NewCandidateStore() *CandidateStore {
	return &CandidateStore{
		candidates: make(map[string]domain.ActivationCandidate),
		now:        time.Now,
	}
}

func (s *CandidateStore) Put(_ context.Context, code, email string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)

	c := domain.ActivationCandidate{Code: code, Email: email}
	if ttl > 0 {
		c.ExpiresAt = now.Add(ttl)
	}
	s.candidates[code] = c
	return nil
}

func (s *CandidateStore) Take(_ context.Context, code string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.candidates[code]
	if !ok {
		return "", domain.ErrActivationNotFound
	}
	delete(s.candidates, code)
	if c.Expired(s.now()) {
		return "", domain.ErrActivationNotFound
	}
	return c.Email, nil
}

// sweep drops expired codes; caller holds mu.
func (s *CandidateStore) sweep(now time.Time) {
	for code, c := range s.candidates {
		if c.Expired(now) {
			delete(s.candidates, code)
		}
	}
}
