package usecase

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/cntech/bitalert/internal/domain"
	"github.com/cntech/bitalert/internal/store"
)

const activationSubject = "Activate your Bit Alert"

type SubscriptionConfig struct {
	// BaseURL prefixes the activation link, e.g. https://bitalert.example.com
	BaseURL       string
	ActivationTTL time.Duration
}

// SubscriptionService owns the subscriber lifecycle: registration by email,
// activation, authenticated threshold edits and write-through persistence.
type SubscriptionService struct {
	store      *store.Store
	candidates domain.CandidateStore
	repo       domain.SubscriberRepository
	mailer     domain.Notifier
	cfg        SubscriptionConfig
	logger     *slog.Logger

	// writeMu keeps repository writes in the same order as store mutations.
	writeMu sync.Mutex
}

func NewSubscriptionService(
	st *store.Store,
	candidates domain.CandidateStore,
	repo domain.SubscriberRepository,
	mailer domain.Notifier,
	cfg SubscriptionConfig,
	logger *slog.Logger,
) *SubscriptionService {
	if cfg.ActivationTTL <= 0 {
		cfg.ActivationTTL = 24 * time.Hour
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &SubscriptionService{
		store:      st,
		candidates: candidates,
		repo:       repo,
		mailer:     mailer,
		cfg:        cfg,
		logger:     logger.With("component", "subscription"),
	}
}

// Restore fills the store from the repository. Called once at startup.
func (s *SubscriptionService) Restore(ctx context.Context) error {
	subs, err := s.repo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load subscribers: %w", err)
	}
	if err := s.store.Restore(subs); err != nil {
		return fmt.Errorf("failed to restore store: %w", err)
	}

	subscribers, thresholds := s.store.Count()
	s.logger.Info("Store restored", slog.Int("subscribers", subscribers), slog.Int("thresholds", thresholds))
	return nil
}

// --- Registration ---

// Register mails an activation link to email.
func (s *SubscriptionService) Register(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	code, err := domain.NewSecret()
	if err != nil {
		return err
	}
	if err := s.candidates.Put(ctx, code, email, s.cfg.ActivationTTL); err != nil {
		return err
	}

	msg := domain.Message{
		Subject: activationSubject,
		Body:    fmt.Sprintf("%s/activate/%s", s.cfg.BaseURL, code),
	}
	if err := s.mailer.Notify(ctx, email, msg); err != nil {
		return fmt.Errorf("failed to send activation mail: %w", err)
	}

	s.logger.Info("Activation mail sent", slog.String("email", email))
	return nil
}

// Activate consumes code and returns the subscriber's secret. An already
// active subscriber keeps its secret and thresholds. The subscriber is
// written on every activation; a new one is dropped again if that fails.
func (s *SubscriptionService) Activate(ctx context.Context, code string) (string, error) {
	email, err := s.candidates.Take(ctx, code)
	if err != nil {
		return "", err
	}

	fresh, err := domain.NewSecret()
	if err != nil {
		return "", err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	secret, created := s.store.AddSubscriber(email, fresh)
	if err := s.persist(ctx, email); err != nil {
		if created {
			// the code is spent; the user registers again
			_ = s.store.RemoveSubscriber(email)
		}
		return "", err
	}

	s.logger.Info("Subscriber activated", slog.String("email", email), slog.Bool("new", created))
	return secret, nil
}

// Authenticate checks the (email, secret) pair of a request.
func (s *SubscriptionService) Authenticate(email, secret string) error {
	sub, err := s.store.Subscriber(email)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(sub.Secret), []byte(secret)) != 1 {
		return domain.ErrUnauthorized
	}
	return nil
}

func (s *SubscriptionService) Unregister(ctx context.Context, email, secret string) error {
	if err := s.Authenticate(email, secret); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.store.RemoveSubscriber(email); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, email); err != nil {
		return fmt.Errorf("failed to delete subscriber: %w", err)
	}

	s.logger.Info("Subscriber removed", slog.String("email", email))
	return nil
}

// --- Thresholds ---

func (s *SubscriptionService) AddThreshold(ctx context.Context, email, secret string, t domain.Threshold) error {
	return s.mutate(ctx, email, secret, t.Validate, func() error {
		return s.store.AddThreshold(email, t)
	})
}

func (s *SubscriptionService) RemoveThreshold(ctx context.Context, email, secret string, t domain.Threshold) error {
	return s.mutate(ctx, email, secret, t.Validate, func() error {
		return s.store.RemoveThreshold(email, t)
	})
}

func (s *SubscriptionService) ReplaceThresholds(ctx context.Context, email, secret string, set []domain.Threshold) error {
	validate := func() error {
		for _, t := range set {
			if err := t.Validate(); err != nil {
				return err
			}
		}
		return nil
	}
	return s.mutate(ctx, email, secret, validate, func() error {
		return s.store.ReplaceThresholds(email, set)
	})
}

func (s *SubscriptionService) ListThresholds(email, secret string) ([]domain.Threshold, error) {
	if err := s.Authenticate(email, secret); err != nil {
		return nil, err
	}
	return s.store.ListThresholds(email)
}

// mutate validates before it authenticates, so a malformed request is
// rejected the same way for every caller.
func (s *SubscriptionService) mutate(ctx context.Context, email, secret string, validate, apply func() error) error {
	if err := validate(); err != nil {
		return err
	}
	if err := s.Authenticate(email, secret); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := apply(); err != nil {
		return err
	}
	return s.persist(ctx, email)
}

// persist writes the store's current view of email through; caller holds writeMu.
func (s *SubscriptionService) persist(ctx context.Context, email string) error {
	sub, err := s.store.Subscriber(email)
	if err != nil {
		return err
	}
	if err := s.repo.Save(ctx, sub); err != nil {
		s.logger.Error("Failed to persist subscriber", slog.String("email", email), slog.String("error", err.Error()))
		return fmt.Errorf("failed to persist subscriber: %w", err)
	}
	return nil
}

func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidEmail, raw)
	}
	return addr.Address, nil
}
