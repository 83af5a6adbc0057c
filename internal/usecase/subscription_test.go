package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/cntech/bitalert/internal/domain"
	"github.com/cntech/bitalert/internal/infrastructure/memory"
	"github.com/cntech/bitalert/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseURL = "https://bitalert.example.com"

type outbox struct {
	mu   sync.Mutex
	msgs map[string][]domain.Message
	err  error
}

func (o *outbox) Notify(_ context.Context, recipient string, msg domain.Message) error {
	if o.err != nil {
		return o.err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.msgs == nil {
		o.msgs = make(map[string][]domain.Message)
	}
	o.msgs[recipient] = append(o.msgs[recipient], msg)
	return nil
}

func (o *outbox) lastCode(t *testing.T, recipient string) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	list := o.msgs[recipient]
	require.NotEmpty(t, list)
	body := list[len(list)-1].Body
	require.True(t, strings.HasPrefix(body, baseURL+"/activate/"), body)
	return strings.TrimPrefix(body, baseURL+"/activate/")
}

type failingRepo struct {
	*memory.SubscriberRepository
	fail bool
}

func (f *failingRepo) Save(ctx context.Context, sub domain.Subscriber) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.SubscriberRepository.Save(ctx, sub)
}

type fixture struct {
	svc   *SubscriptionService
	store *store.Store
	repo  *failingRepo
	mail  *outbox
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.New()
	repo := &failingRepo{SubscriberRepository: memory.NewSubscriberRepository()}
	mail := &outbox{}
	svc := NewSubscriptionService(st, memory.NewCandidateStore(), repo, mail,
		SubscriptionConfig{BaseURL: baseURL + "/"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	return &fixture{svc: svc, store: st, repo: repo, mail: mail}
}

func (f *fixture) activate(t *testing.T, email string) string {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.svc.Register(ctx, email))
	secret, err := f.svc.Activate(ctx, f.mail.lastCode(t, email))
	require.NoError(t, err)
	return secret
}

func up(price int64) domain.Threshold {
	return domain.Threshold{Orientation: domain.OrientationUp, Price: decimal.NewFromInt(price)}
}

func TestRegisterSendsActivationLink(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.Register(context.Background(), "alice@example.com"))

	msgs := f.mail.msgs["alice@example.com"]
	require.Len(t, msgs, 1)
	assert.Equal(t, "Activate your Bit Alert", msgs[0].Subject)
	assert.Len(t, f.mail.lastCode(t, "alice@example.com"), 20)
	assert.False(t, f.store.HasSubscriber("alice@example.com"))
}

func TestRegisterRejectsBadAddress(t *testing.T) {
	f := newFixture(t)

	for _, email := range []string{"", "nope", "Alice <alice@example.com>"} {
		assert.ErrorIs(t, f.svc.Register(context.Background(), email), domain.ErrInvalidEmail, email)
	}
	assert.Empty(t, f.mail.msgs)
}

func TestRegisterReportsMailFailure(t *testing.T) {
	f := newFixture(t)
	f.mail.err = errors.New("smtp down")

	assert.Error(t, f.svc.Register(context.Background(), "alice@example.com"))
}

func TestActivateIsSingleUseAndPersists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.Register(ctx, "alice@example.com"))
	code := f.mail.lastCode(t, "alice@example.com")

	secret, err := f.svc.Activate(ctx, code)
	require.NoError(t, err)
	assert.Len(t, secret, 20)
	require.NoError(t, f.svc.Authenticate("alice@example.com", secret))

	_, err = f.svc.Activate(ctx, code)
	assert.ErrorIs(t, err, domain.ErrActivationNotFound)

	saved, err := f.repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, secret, saved[0].Secret)
}

func TestReactivationKeepsSecretAndThresholds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	secret := f.activate(t, "alice@example.com")
	require.NoError(t, f.svc.AddThreshold(ctx, "alice@example.com", secret, up(100)))

	again := f.activate(t, "alice@example.com")
	assert.Equal(t, secret, again)

	list, err := f.svc.ListThresholds("alice@example.com", secret)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	secret := f.activate(t, "alice@example.com")

	assert.NoError(t, f.svc.Authenticate("alice@example.com", secret))
	assert.ErrorIs(t, f.svc.Authenticate("alice@example.com", "wrong"), domain.ErrUnauthorized)
	assert.ErrorIs(t, f.svc.Authenticate("bob@example.com", secret), domain.ErrSubscriberNotFound)
}

func TestThresholdOperationsWriteThrough(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	email := "alice@example.com"
	secret := f.activate(t, email)

	require.NoError(t, f.svc.AddThreshold(ctx, email, secret, up(100)))
	require.NoError(t, f.svc.AddThreshold(ctx, email, secret, up(200)))
	require.NoError(t, f.svc.RemoveThreshold(ctx, email, secret, up(100)))

	saved, err := f.repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, saved[0].Thresholds, 1)
	assert.True(t, saved[0].Thresholds[0].Equal(up(200)))

	require.NoError(t, f.svc.ReplaceThresholds(ctx, email, secret, []domain.Threshold{up(1), up(2)}))
	saved, err = f.repo.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, saved[0].Thresholds, 2)
}

func TestValidationComesBeforeAuthentication(t *testing.T) {
	f := newFixture(t)
	bad := domain.Threshold{Orientation: "sideways", Price: decimal.NewFromInt(1)}

	err := f.svc.AddThreshold(context.Background(), "nobody@example.com", "x", bad)
	assert.ErrorIs(t, err, domain.ErrInvalidThreshold)

	err = f.svc.ReplaceThresholds(context.Background(), "nobody@example.com", "x", []domain.Threshold{up(1), bad})
	assert.ErrorIs(t, err, domain.ErrInvalidThreshold)

	err = f.svc.AddThreshold(context.Background(), "nobody@example.com", "x", up(1))
	assert.ErrorIs(t, err, domain.ErrSubscriberNotFound)
}

func TestWrongSecretLeavesStoreUnchanged(t *testing.T) {
	f := newFixture(t)
	email := "alice@example.com"
	f.activate(t, email)

	err := f.svc.AddThreshold(context.Background(), email, "wrong", up(1))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	list, err := f.store.ListThresholds(email)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPersistFailureIsReported(t *testing.T) {
	f := newFixture(t)
	email := "alice@example.com"
	secret := f.activate(t, email)
	f.repo.fail = true

	err := f.svc.AddThreshold(context.Background(), email, secret, up(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestActivateRollsBackWhenFirstWriteFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	email := "alice@example.com"

	require.NoError(t, f.svc.Register(ctx, email))
	f.repo.fail = true
	_, err := f.svc.Activate(ctx, f.mail.lastCode(t, email))
	require.Error(t, err)
	assert.False(t, f.store.HasSubscriber(email))

	f.repo.fail = false
	secret := f.activate(t, email)

	saved, err := f.repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, email, saved[0].Email)
	assert.Equal(t, secret, saved[0].Secret)
}

func TestReactivationWritesExistingSubscriber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	email := "alice@example.com"
	secret := f.activate(t, email)

	// subscriber only known in memory, e.g. after a failed write
	require.NoError(t, f.repo.Delete(ctx, email))

	again := f.activate(t, email)
	assert.Equal(t, secret, again)

	saved, err := f.repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, secret, saved[0].Secret)
}

func TestUnregister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	email := "alice@example.com"
	secret := f.activate(t, email)

	assert.ErrorIs(t, f.svc.Unregister(ctx, email, "wrong"), domain.ErrUnauthorized)
	require.NoError(t, f.svc.Unregister(ctx, email, secret))
	assert.False(t, f.store.HasSubscriber(email))

	saved, err := f.repo.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.Save(ctx, domain.Subscriber{Email: "a@example.com", Secret: "s", Thresholds: []domain.Threshold{up(5)}}))

	require.NoError(t, f.svc.Restore(ctx))
	list, err := f.svc.ListThresholds("a@example.com", "s")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
