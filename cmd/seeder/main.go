package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/cntech/bitalert/internal/config"
	"github.com/cntech/bitalert/internal/domain"
	"github.com/cntech/bitalert/internal/infrastructure/badgerdb"
	"github.com/cntech/bitalert/internal/infrastructure/crypto"
	"github.com/cntech/bitalert/internal/infrastructure/database"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	email := flag.String("email", "seed@example.com", "subscriber to create")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if cfg.Env != "local" {
		log.Fatal("Seeder allowed only in local environment")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cipher, err := crypto.NewCipher(cfg.Storage.EncryptionKey)
	if err != nil {
		log.Fatalf("Cipher init failed: %v", err)
	}

	ctx := context.Background()
	repo, closeRepo, err := open(ctx, cfg, cipher, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer closeRepo()

	existing, err := repo.LoadAll(ctx)
	if err != nil {
		log.Fatalf("Failed to load subscribers: %v", err)
	}
	for _, sub := range existing {
		if sub.Email == *email {
			log.Printf("[Seeder] %s already exists with %d thresholds. Secret: %s", sub.Email, len(sub.Thresholds), sub.Secret)
			return
		}
	}

	secret, err := domain.NewSecret()
	if err != nil {
		log.Fatalf("Failed to generate secret: %v", err)
	}

	var thresholds []domain.Threshold
	for _, raw := range [][2]string{{"up", "100000"}, {"down", "20000"}, {"any", "50000"}} {
		th, err := domain.NewThreshold(raw[0], raw[1])
		if err != nil {
			log.Fatalf("Bad seed threshold %v: %v", raw, err)
		}
		thresholds = append(thresholds, th)
	}

	sub := domain.Subscriber{
		Email:      *email,
		Secret:     secret,
		Thresholds: thresholds,
		CreatedAt:  time.Now().UTC(),
	}
	if err := repo.Save(ctx, sub); err != nil {
		log.Fatalf("Failed to save subscriber: %v", err)
	}

	log.Printf("Subscriber %s created with %d thresholds", sub.Email, len(sub.Thresholds))
	fmt.Printf("%s/user/%s\n", cfg.BaseURL, secret)
}

func open(ctx context.Context, cfg *config.Config, cipher crypto.Cipher, logger *slog.Logger) (domain.SubscriberRepository, func(), error) {
	switch cfg.Storage.Driver {
	case "postgres":
		db, err := database.NewConnection(ctx, database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,

			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return database.NewSubscriberRepository(db, cipher, logger), func() { db.Close() }, nil
	case "badger":
		repo, err := badgerdb.Open(badgerdb.Options{Path: cfg.Storage.BadgerPath}, cipher, logger)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { repo.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("nothing to seed for storage driver %q", cfg.Storage.Driver)
	}
}
