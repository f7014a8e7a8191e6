package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/noah-isme/liff-store/internal/db"
	"github.com/noah-isme/liff-store/internal/importer"
	"github.com/noah-isme/liff-store/internal/obs"
)

func main() {
	dir := flag.String("dir", "data", "directory holding the legacy *.json files")
	dryRun := flag.Bool("dry-run", false, "parse and apply against an in-memory store only")
	skipMigrate := flag.Bool("skip-migrate", false, "do not run database migrations first")
	flag.Parse()

	_ = godotenv.Load()
	logger := obs.NewLogger("console", os.Getenv("LOG_LEVEL"))

	snap, err := importer.Load(*dir)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", *dir).Msg("load legacy data")
	}
	logger.Info().
		Int("products", len(snap.Products)).
		Int("coupons", len(snap.Coupons)).
		Int("members", len(snap.Members)).
		Int("orders", len(snap.Orders)).
		Msg("legacy data loaded")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var store db.Store
	if *dryRun {
		store = db.NewMemory()
	} else {
		dbURL := os.Getenv("DATABASE_URL")
		if dbURL == "" {
			logger.Fatal().Msg("DATABASE_URL is not set")
		}
		if !*skipMigrate {
			if err := db.Migrate(dbURL); err != nil {
				logger.Fatal().Err(err).Msg("migrate")
			}
		}
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("open database")
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Fatal().Err(err).Msg("ping database")
		}
		store = db.NewPGStore(pool)
	}

	stats, err := importer.Apply(ctx, store, snap)
	if err != nil {
		logger.Fatal().Err(err).Msg("import failed, nothing was written")
	}
	logger.Info().Bool("dry_run", *dryRun).Interface("stats", stats).Msg("import completed")
}
