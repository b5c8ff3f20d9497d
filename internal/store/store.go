// Package store persists the Topology Store of SPEC_FULL.md §4.7: a record
// of registered child URIs and their last-known state per Nexus, which
// nexusmanager.Manager.Restore reads to rehydrate register_children calls
// (nexusd itself does not call Restore). It is ambient
// bookkeeping, never the core's own persisted state (spec.md's Non-goals
// explicitly exclude the core persisting its own metadata).
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/marmos91/nexus/internal/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DatabaseType selects the backing SQL engine.
type DatabaseType string

const (
	// DatabaseTypeSQLite is the zero-dependency default for local
	// development and single-node deployments.
	DatabaseTypeSQLite DatabaseType = "sqlite"

	// DatabaseTypePostgres is the production backend.
	DatabaseTypePostgres DatabaseType = "postgres"
)

// Config configures the Topology Store's backing database.
type Config struct {
	Type DatabaseType `mapstructure:"type" yaml:"type"`

	// SQLitePath is the database file path when Type is sqlite.
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`

	// PostgresDSN is the connection string when Type is postgres.
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
}

// ApplyDefaults fills in unset fields with sensible local-development
// defaults.
func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = DatabaseTypeSQLite
	}
	if c.Type == DatabaseTypeSQLite && c.SQLitePath == "" {
		c.SQLitePath = "nexus-topology.db"
	}
}

// Store wraps a GORM connection over the Topology Store schema.
type Store struct {
	db *gorm.DB
}

// Open connects to the configured database, bringing the schema up to date
// (golang-migrate for Postgres, GORM AutoMigrate for the SQLite dev path),
// and returns a ready Store.
func Open(cfg Config) (*Store, error) {
	cfg.ApplyDefaults()

	switch cfg.Type {
	case DatabaseTypeSQLite:
		return openSQLite(cfg.SQLitePath)
	case DatabaseTypePostgres:
		return openPostgres(cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("store: unsupported database type %q", cfg.Type)
	}
}

func openSQLite(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create %q: %w", dir, err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite %q: %w", path, err)
	}
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("store: automigrate: %w", err)
	}
	return &Store{db: db}, nil
}

func openPostgres(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store: postgres_dsn is required")
	}
	if err := runPostgresMigrations(dsn); err != nil {
		return nil, err
	}
	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	return &Store{db: db}, nil
}

func runPostgresMigrations(dsn string) error {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("store: open postgres for migration: %w", err)
	}
	defer sqlDB.Close()

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("store: init postgres migration driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: load embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("store: init migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("store: run migrations: %w", err)
	}
	return nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveChild upserts a TopologyRecord for (nexusName, uri), write-through
// after every membership mutation commits in memory. A write failure is
// logged, not surfaced: store writes never gate the in-memory transition,
// mirroring destroy_children's best-effort philosophy for this ambient
// concern.
func (s *Store) SaveChild(ctx context.Context, nexusName, uri, parentName, state string) {
	rec := TopologyRecord{NexusName: nexusName, URI: uri, ParentName: parentName, LastKnownState: state}
	err := s.db.WithContext(ctx).
		Where(TopologyRecord{NexusName: nexusName, URI: uri}).
		Assign(TopologyRecord{ParentName: parentName, LastKnownState: state}).
		FirstOrCreate(&rec).Error
	if err != nil {
		logger.ErrorCtx(ctx, "topology store: save failed", "nexus", nexusName, "uri", uri, "error", err)
	}
}

// DeleteChild removes the persisted record for (nexusName, uri), called
// after remove_child commits.
func (s *Store) DeleteChild(ctx context.Context, nexusName, uri string) {
	err := s.db.WithContext(ctx).
		Where("nexus_name = ? AND uri = ?", nexusName, uri).
		Delete(&TopologyRecord{}).Error
	if err != nil {
		logger.ErrorCtx(ctx, "topology store: delete failed", "nexus", nexusName, "uri", uri, "error", err)
	}
}

// LoadTopology returns every URI persisted for nexusName, in insertion
// order, for nexusmanager.Manager.Restore to seed register_children.
func (s *Store) LoadTopology(ctx context.Context, nexusName string) ([]string, error) {
	var records []TopologyRecord
	if err := s.db.WithContext(ctx).
		Where("nexus_name = ?", nexusName).
		Order("id asc").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("store: load topology for %s: %w", nexusName, err)
	}
	uris := make([]string, len(records))
	for i, r := range records {
		uris[i] = r.URI
	}
	return uris, nil
}
