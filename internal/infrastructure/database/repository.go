package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cntech/bitalert/internal/domain"
	"github.com/cntech/bitalert/internal/infrastructure/crypto"
	"github.com/shopspring/decimal"
)

type subscriberRow struct {
	Email     string    `db:"email"`
	Secret    string    `db:"secret"`
	CreatedAt time.Time `db:"created_at"`
}

type thresholdRow struct {
	Email       string          `db:"email"`
	Orientation string          `db:"orientation"`
	Price       decimal.Decimal `db:"price"`
}

// SubscriberRepository persists subscribers and their ordered thresholds in
// Postgres.
type SubscriberRepository struct {
	db     *DB
	cipher crypto.Cipher
	logger *slog.Logger
}

func NewSubscriberRepository(db *DB, cipher crypto.Cipher, logger *slog.Logger) *SubscriberRepository {
	return &SubscriberRepository{
		db:     db,
		cipher: cipher,
		logger: logger.With("component", "subscriber_repository", "driver", "postgres"),
	}
}

func (r *SubscriberRepository) LoadAll(ctx context.Context) ([]domain.Subscriber, error) {
	var subs []subscriberRow
	err := r.db.SelectContext(ctx, &subs, `
		SELECT email, secret, created_at
		FROM subscribers
		ORDER BY email
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscribers: %w", err)
	}

	var ths []thresholdRow
	err = r.db.SelectContext(ctx, &ths, `
		SELECT email, orientation, price
		FROM thresholds
		ORDER BY email, position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load thresholds: %w", err)
	}

	byEmail := make(map[string][]domain.Threshold, len(subs))
	for _, row := range ths {
		o, err := domain.ParseOrientation(row.Orientation)
		if err != nil {
			r.logger.Warn("Skipping stored threshold", slog.String("email", row.Email), slog.String("error", err.Error()))
			continue
		}
		byEmail[row.Email] = append(byEmail[row.Email], domain.Threshold{Orientation: o, Price: row.Price})
	}

	out := make([]domain.Subscriber, 0, len(subs))
	for _, row := range subs {
		secret, err := r.cipher.Decrypt(row.Secret)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt secret for %s: %w", row.Email, err)
		}
		out = append(out, domain.Subscriber{
			Email:      row.Email,
			Secret:     secret,
			Thresholds: byEmail[row.Email],
			CreatedAt:  row.CreatedAt,
		})
	}

	r.logger.Info("Loaded subscribers", slog.Int("count", len(out)), slog.Int("thresholds", len(ths)))
	return out, nil
}

// Save upserts the subscriber and replaces its thresholds in one transaction.
func (r *SubscriberRepository) Save(ctx context.Context, sub domain.Subscriber) error {
	secret, err := r.cipher.Encrypt(sub.Secret)
	if err != nil {
		return fmt.Errorf("failed to encrypt secret: %w", err)
	}
	createdAt := sub.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO subscribers (email, secret, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET secret = EXCLUDED.secret
	`, sub.Email, secret, createdAt)
	if err != nil {
		return fmt.Errorf("failed to upsert subscriber: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM thresholds WHERE email = $1`, sub.Email); err != nil {
		return fmt.Errorf("failed to clear thresholds: %w", err)
	}

	for i, t := range sub.Thresholds {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO thresholds (email, position, orientation, price)
			VALUES ($1, $2, $3, $4)
		`, sub.Email, i, string(t.Orientation), t.Price)
		if err != nil {
			return fmt.Errorf("failed to insert threshold %s: %w", t, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Delete removes the subscriber; thresholds cascade. Deleting an unknown
// subscriber is not an error.
func (r *SubscriberRepository) Delete(ctx context.Context, email string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM subscribers WHERE email = $1`, email); err != nil {
		return fmt.Errorf("failed to delete subscriber: %w", err)
	}
	return nil
}
