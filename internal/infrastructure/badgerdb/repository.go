// Package badgerdb is the embedded subscriber repository, for single-node
// deployments without Postgres.
package badgerdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cntech/bitalert/internal/domain"
	"github.com/cntech/bitalert/internal/infrastructure/crypto"
	badger "github.com/dgraph-io/badger/v4"
)

const keyPrefix = "subscriber:"

type record struct {
	Email      string             `json:"email"`
	Secret     string             `json:"secret"`
	Thresholds []domain.Threshold `json:"thresholds"`
	CreatedAt  time.Time          `json:"created_at"`
}

type Options struct {
	Path string
	// InMemory ignores Path and keeps everything in RAM.
	InMemory bool
}

type SubscriberRepository struct {
	db     *badger.DB
	cipher crypto.Cipher
	logger *slog.Logger
}

func Open(opts Options, cipher crypto.Cipher, logger *slog.Logger) (*SubscriberRepository, error) {
	if !opts.InMemory && strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("badger: path is required")
	}

	bopts := badger.DefaultOptions(opts.Path).WithLogger(nil)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &SubscriberRepository{
		db:     db,
		cipher: cipher,
		logger: logger.With("component", "subscriber_repository", "driver", "badger"),
	}, nil
}

func (r *SubscriberRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *SubscriberRepository) LoadAll(ctx context.Context) ([]domain.Subscriber, error) {
	var out []domain.Subscriber

	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var rec record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}

			secret, err := r.cipher.Decrypt(rec.Secret)
			if err != nil {
				return fmt.Errorf("failed to decrypt secret for %s: %w", rec.Email, err)
			}
			out = append(out, domain.Subscriber{
				Email:      rec.Email,
				Secret:     secret,
				Thresholds: rec.Thresholds,
				CreatedAt:  rec.CreatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load subscribers: %w", err)
	}

	r.logger.Info("Loaded subscribers", slog.Int("count", len(out)))
	return out, nil
}

func (r *SubscriberRepository) Save(_ context.Context, sub domain.Subscriber) error {
	secret, err := r.cipher.Encrypt(sub.Secret)
	if err != nil {
		return fmt.Errorf("failed to encrypt secret: %w", err)
	}

	rec := record{
		Email:      sub.Email,
		Secret:     secret,
		Thresholds: sub.Thresholds,
		CreatedAt:  sub.CreatedAt,
	}
	if rec.Thresholds == nil {
		rec.Thresholds = []domain.Threshold{}
	}
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode subscriber: %w", err)
	}

	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+sub.Email), val)
	})
}

func (r *SubscriberRepository) Delete(_ context.Context, email string) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + email))
	})
}
