package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cntech/bitalert/internal/domain"
	"github.com/go-redis/redis/v8"
)

const defaultPrefix = "bitalert:activation:"

type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewClient connects and pings once so a bad address fails at startup.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// CandidateStore keeps activation codes in Redis with a TTL.
type CandidateStore struct {
	client *redis.Client
	prefix string
}

func NewCandidateStore(client *redis.Client, prefix string) *CandidateStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &CandidateStore{client: client, prefix: prefix}
}

func (s *CandidateStore) Put(ctx context.Context, code, email string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+code, email, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store activation code: %w", err)
	}
	return nil
}

// Take reads and deletes the code atomically, so a code can be used once.
func (s *CandidateStore) Take(ctx context.Context, code string) (string, error) {
	key := s.prefix + code

	var get *redis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, key)
		pipe.Del(ctx, key)
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrActivationNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to take activation code: %w", err)
	}

	email, err := get.Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrActivationNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read activation code: %w", err)
	}
	return email, nil
}
