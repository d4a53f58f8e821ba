package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/noah-isme/backend-vloer/internal/config"
	"github.com/noah-isme/backend-vloer/internal/obs"
)

func main() {
	var (
		dir  = flag.String("dir", "migrations", "directory containing migration files")
		down = flag.Bool("down", false, "roll back one migration instead of migrating up")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger("console", "info")

	m, err := migrate.New(fmt.Sprintf("file://%s", *dir), databaseURL(cfg.DatabaseURL))
	if err != nil {
		logger.Fatal().Err(err).Msg("open migrations")
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Error().Err(srcErr).Msg("close migration source")
		}
		if dbErr != nil {
			logger.Error().Err(dbErr).Msg("close migration database")
		}
	}()

	if *down {
		if err := m.Steps(-1); err != nil {
			logger.Fatal().Err(err).Msg("roll back migration")
		}
		logger.Info().Msg("rolled back one migration")
		return
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info().Msg("schema already up to date")
			os.Exit(0)
		}
		logger.Fatal().Err(err).Msg("apply migrations")
	}
	logger.Info().Msg("migrations applied")
}

// databaseURL rewrites the scheme so golang-migrate picks its pgx v5 driver.
func databaseURL(url string) string {
	const prefix = "postgres://"
	if len(url) >= len(prefix) && url[:len(prefix)] == prefix {
		return "pgx5://" + url[len(prefix):]
	}
	return url
}
