// Command seed creates an admin account and optionally loads catalog
// entries from a JSON file into the storefront database.
//
//	SEED_ADMIN_PASSWORD=... seed -admin-email ops@myncoffee.cl -products catalog.json
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/utafrali/roastery/internal/config"
	"github.com/utafrali/roastery/internal/seed"
	"github.com/utafrali/roastery/migrations"
	"github.com/utafrali/roastery/pkg/database"
	"github.com/utafrali/roastery/pkg/logger"
)

func main() {
	adminEmail := flag.String("admin-email", "", "email of the admin account to create or promote")
	productsFile := flag.String("products", "", "JSON file with catalog entries to upsert")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.New("storefront-seed", cfg.LogLevel)

	if err := run(cfg, log, *adminEmail, *productsFile); err != nil {
		log.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger, adminEmail, productsFile string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pgCfg := cfg.Postgres()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, log)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	s := seed.New(pool, log)

	if adminEmail != "" {
		if _, err := s.Admin(ctx, seed.AdminInput{
			Email:    adminEmail,
			Password: os.Getenv("SEED_ADMIN_PASSWORD"),
		}); err != nil {
			return err
		}
	}

	if productsFile != "" {
		f, err := os.Open(productsFile)
		if err != nil {
			return fmt.Errorf("open products file: %w", err)
		}
		defer f.Close()

		products, err := seed.ReadProducts(f)
		if err != nil {
			return err
		}
		if _, err := s.Products(ctx, products); err != nil {
			return err
		}
	}
	return nil
}
