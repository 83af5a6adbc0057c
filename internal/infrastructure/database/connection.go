package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	MaxOpenConns int
	MaxIdleConns int
}

func (c *Config) ConnectString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

const (
	defaultMaxOpenConns = 25
	defaultMaxIdleConns = 5
)

// poolSize fills in defaults and never lets idle exceed open.
func (c *Config) poolSize() (maxOpen, maxIdle int) {
	maxOpen, maxIdle = c.MaxOpenConns, c.MaxIdleConns
	if maxOpen <= 0 {
		maxOpen = defaultMaxOpenConns
	}
	if maxIdle <= 0 {
		maxIdle = defaultMaxIdleConns
	}
	if maxIdle > maxOpen {
		maxIdle = maxOpen
	}
	return maxOpen, maxIdle
}

type DB struct {
	*sqlx.DB
}

func NewConnection(ctx context.Context, cfg Config) (*DB, error) {
	db, err := sqlx.Open("postgres", cfg.ConnectString())
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	maxOpen, maxIdle := cfg.poolSize()
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db}, nil
}

// Wrap adopts an existing handle, e.g. one opened by sqlmock.
func Wrap(db *sqlx.DB) *DB {
	return &DB{db}
}

func (db *DB) Close() error {
	return db.DB.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS subscribers (
	email      TEXT PRIMARY KEY,
	secret     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS thresholds (
	email       TEXT NOT NULL REFERENCES subscribers(email) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	orientation TEXT NOT NULL,
	price       NUMERIC NOT NULL,
	PRIMARY KEY (email, position)
);
`

// EnsureSchema creates the tables on first start.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
