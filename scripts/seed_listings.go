package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"rently/internal/database"
	"rently/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
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
		dbPath       = flag.String("db", "./data/rently.db", "path to sqlite db")
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

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err = db.SyncListings(ctx, cfg.Listings); err != nil {
		return fmt.Errorf("sync listings: %w", err)
	}

	fmt.Printf("done: synced %d listings\n", len(cfg.Listings))
	return nil
}
