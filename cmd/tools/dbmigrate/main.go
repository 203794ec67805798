// cmd/tools/dbmigrate/main.go
package main

import (
	"database/sql"
	"errors"
	"flag"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codr1/Kickabout/internal/db"
)

func main() {
	var (
		dbPath  = flag.String("db", "", "Path to SQLite database")
		command = flag.String("command", "", "Command to run (up, down, version, force)")
		version = flag.Int("version", -1, "Version to force when command is force")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Validate flags
	if *dbPath == "" || *command == "" {
		log.Error().Msg("-db and -command are required")
		flag.PrintDefaults()
		os.Exit(1)
	}

	absDB, err := filepath.Abs(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid database path")
	}

	// Create database directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(absDB), 0755); err != nil {
		log.Fatal().Err(err).Msg("Failed to create database directory")
	}

	sqlDB, err := sql.Open("sqlite3", absDB)
	if err != nil {
		log.Fatal().Err(err).Str("db", absDB).Msg("Failed to open database")
	}

	m, err := db.NewMigrator(sqlDB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create migrate instance")
	}
	defer m.Close()

	if err := run(m, *command, *version); err != nil {
		log.Error().Err(err).Str("command", *command).Msg("Migration failed")
		m.Close()
		os.Exit(1)
	}
}

func run(m *migrate.Migrate, command string, version int) error {
	switch command {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
		log.Info().Msg("Successfully ran migrations up")

	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
		log.Info().Msg("Successfully ran migrations down")

	case "version":
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Info().Msg("No migrations applied")
			return nil
		}
		if err != nil {
			return err
		}
		log.Info().Uint("version", v).Bool("dirty", dirty).Msg("Current version")

	case "force":
		if version < 0 {
			return errors.New("-version is required with force")
		}
		if err := m.Force(version); err != nil {
			return err
		}
		log.Info().Int("version", version).Msg("Forced migration version")

	default:
		return errors.New("unknown command: " + command)
	}
	return nil
}
