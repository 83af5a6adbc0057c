package memory

import (
	"context"
	"testing"
	"time"

	"github.com/cntech/bitalert/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateStore(t *testing.T) {
	s := NewCandidateStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "a", "alice@example.com", time.Hour))
	require.NoError(t, s.Put(ctx, "b", "bob@example.com", time.Minute))
	require.NoError(t, s.Put(ctx, "c", "carol@example.com", 0))

	email, err := s.Take(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", email)

	_, err = s.Take(ctx, "a")
	assert.ErrorIs(t, err, domain.ErrActivationNotFound)

	now = now.Add(2 * time.Minute)
	_, err = s.Take(ctx, "b")
	assert.ErrorIs(t, err, domain.ErrActivationNotFound)

	now = now.Add(24 * time.Hour)
	email, err = s.Take(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", email)
}

func TestSubscriberRepositoryCopies(t *testing.T) {
	repo := NewSubscriberRepository()
	ctx := context.Background()

	sub := domain.Subscriber{Email: "b@example.com", Thresholds: []domain.Threshold{{Orientation: domain.OrientationUp}}}
	require.NoError(t, repo.Save(ctx, sub))
	require.NoError(t, repo.Save(ctx, domain.Subscriber{Email: "a@example.com"}))
	sub.Thresholds[0].Orientation = domain.OrientationDown

	subs, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "a@example.com", subs[0].Email)
	assert.Equal(t, domain.OrientationUp, subs[1].Thresholds[0].Orientation)

	require.NoError(t, repo.Delete(ctx, "a@example.com"))
	subs, err = repo.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}
