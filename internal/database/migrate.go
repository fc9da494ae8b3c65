// Package database はPostgreSQL失効ストアの接続とスキーマ管理を提供する。
package database

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUnsupportedDatabaseURL はPostgreSQL以外の接続URLが渡された場合のエラー。
var ErrUnsupportedDatabaseURL = errors.New("database: migrations require a postgres:// or postgresql:// URL")

// checkPostgresURL はrevoked_tokensを置けるバックエンドかを確認する。
// マイグレーションのSQLはPostgreSQL専用のため、他のスキームは適用前に拒否する。
func checkPostgresURL(databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedDatabaseURL, err)
	}
	switch u.Scheme {
	case "postgres", "postgresql":
		return nil
	default:
		return fmt.Errorf("%w: got scheme %q", ErrUnsupportedDatabaseURL, u.Scheme)
	}
}

// NewMigrator は埋め込みのマイグレーションを読むmigrateインスタンスを生成する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	if err := checkPostgresURL(databaseURL); err != nil {
		return nil, err
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

// RunMigrations は失効ストアのマイグレーションをすべて適用し、適用前後のバージョンをloggerに記録する。
// dirtyな状態が残っている場合は手動での修復が必要なため適用せずにエラーを返す。
func RunMigrations(databaseURL string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	m, err := NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	from, dirty, err := schemaVersion(m)
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("schema version %d is dirty; fix it with the migrate CLI before retrying", from)
	}

	if err := m.Up(); errors.Is(err, migrate.ErrNoChange) {
		logger.Info("revocation schema already up to date", slog.Uint64("version", uint64(from)))
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	to, _, err := schemaVersion(m)
	if err != nil {
		return err
	}
	logger.Info("revocation schema migrated",
		slog.Uint64("from_version", uint64(from)),
		slog.Uint64("to_version", uint64(to)),
	)
	return nil
}

// schemaVersion は現在のスキーマバージョンを返す。未適用なら0。
func schemaVersion(m *migrate.Migrate) (uint, bool, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, dirty, nil
}
