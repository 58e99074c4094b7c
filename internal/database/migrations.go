package database

import (
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// RunMigrations applies every pending migration found in dir of fsys.
func RunMigrations(db *sql.DB, fsys fs.FS, dir string, logger *zap.Logger) error {
	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	before, err := goose.GetDBVersion(db)
	if err != nil {
		logger.Debug("Could not read schema version before migrating", zap.Error(err))
	}

	logger.Info("Checking for pending migrations...", zap.Int64("current_version", before))

	if err := goose.Up(db, dir); err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	after, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	logger.Info("Migrations completed successfully",
		zap.Int64("from_version", before),
		zap.Int64("to_version", after),
	)
	return nil
}

// GetMigrationStatus prints goose status for the embedded migrations.
func GetMigrationStatus(db *sql.DB, fsys fs.FS, dir string) error {
	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.Status(db, dir)
}
