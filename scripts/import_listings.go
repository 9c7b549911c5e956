package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"rentbook/internal/config"
	"rentbook/internal/database"
	"rentbook/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type ListingsConfig struct {
	Listings []models.Listing `yaml:"listings"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		listingsPath = flag.String("listings", "configs/listings.yaml", "path to listings.yaml")
		dbPath       = flag.String("db", "./data/rentbook.db", "path to sqlite db")
	)
	flag.Parse()

	data, err := os.ReadFile(*listingsPath)
	if err != nil {
		return fmt.Errorf("read listings: %w", err)
	}
	var cfg ListingsConfig
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse listings: %w", err)
	}
	if len(cfg.Listings) == 0 {
		return fmt.Errorf("no listings in yaml")
	}
	if err = config.ValidateListings(cfg.Listings); err != nil {
		return err
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	created := 0
	updated := 0
	for i := range cfg.Listings {
		l := &cfg.Listings[i]
		_, err = db.GetListing(ctx, l.ID)
		switch {
		case err == nil:
			updated++
		case errors.Is(err, database.ErrNotFound):
			created++
		default:
			return fmt.Errorf("get %s: %w", l.ID, err)
		}
		if err = db.UpsertListing(ctx, l); err != nil {
			return fmt.Errorf("upsert %s: %w", l.ID, err)
		}
	}

	fmt.Printf("done: created=%d updated=%d\n", created, updated)
	return nil
}
