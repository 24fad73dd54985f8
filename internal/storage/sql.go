package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

const migrationsTable = "storage_schema_migrations"

type dialect struct {
	name string
	get  string
	set  string
	del  string
}

var (
	postgresDialect = dialect{
		name: "postgres",
		get:  `SELECT value FROM session_storage WHERE storage_key = $1`,
		set: `INSERT INTO session_storage (storage_key, value, updated_at)
		      VALUES ($1, $2, NOW())
		      ON CONFLICT (storage_key) DO UPDATE
		      SET value = EXCLUDED.value, updated_at = NOW()`,
		del: `DELETE FROM session_storage WHERE storage_key = $1`,
	}
	sqliteDialect = dialect{
		name: "sqlite",
		get:  `SELECT value FROM session_storage WHERE storage_key = ?`,
		set: `INSERT INTO session_storage (storage_key, value, updated_at)
		      VALUES (?, ?, CURRENT_TIMESTAMP)
		      ON CONFLICT (storage_key) DO UPDATE
		      SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		del: `DELETE FROM session_storage WHERE storage_key = ?`,
	}
)

// SQLStorage keeps values in a session_storage table on Postgres or SQLite.
type SQLStorage struct {
	db      *sql.DB
	dialect dialect
}

// OpenPostgres connects with lib/pq and applies the embedded migrations.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStorage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)

	s := &SQLStorage{db: db, dialect: postgresDialect}
	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OpenSQLite opens (creating if needed) a database file. This is the closest
// thing to browser local storage: a single file that survives restarts.
func OpenSQLite(ctx context.Context, path string) (*SQLStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	// Busy timeout + WAL for concurrency
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout=5000&_pragma=journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// SQLite allows a single writer; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}

	s := &SQLStorage{db: db, dialect: sqliteDialect}
	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStorage) runMigrations() error {
	src, err := iofs.New(migrationsFS, "migrations/"+s.dialect.name)
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	var driver database.Driver
	switch s.dialect.name {
	case "postgres":
		driver, err = postgres.WithInstance(s.db, &postgres.Config{MigrationsTable: migrationsTable})
	default:
		driver, err = sqlite.WithInstance(s.db, &sqlite.Config{MigrationsTable: migrationsTable})
	}
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, s.dialect.name, driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func (s *SQLStorage) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.dialect.get, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", key, err)
	}
	return []byte(value), nil
}

func (s *SQLStorage) Set(ctx context.Context, key string, value []byte) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.set, key, string(value)); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

func (s *SQLStorage) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.del, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *SQLStorage) Close() error {
	return s.db.Close()
}
