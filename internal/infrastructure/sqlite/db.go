// Package sqlite provides the SQLite implementation of the project repository.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/NaruseNia/progest/internal/log"
	"github.com/NaruseNia/progest/internal/project/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationTable = "schema_migrations"

// DB wraps the registry database connection.
type DB struct {
	conn *sql.DB
	path string
}

// NewDB opens or creates the database at path and applies pending
// migrations. The parent directory is created with 0700 permissions.
//
// Every transaction begins with BEGIN IMMEDIATE so that a read-modify-write
// cycle holds the write lock from its first read, across processes.
func NewDB(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	_, statErr := os.Stat(path)
	existed := statErr == nil

	dsn := "file:" + filepath.ToSlash(path) +
		"?_txlock=immediate" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(wal)" +
		"&_pragma=foreign_keys(1)"

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{conn: conn, path: path}

	var backup func() error
	if existed {
		backup = db.backup
	}
	applied, err := applyMigrations(conn, migrationsFS, "migrations", backup)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if applied > 0 {
		log.Info(log.CatDB, "Applied migrations", "path", path, "count", applied)
	}

	return db, nil
}

// ProjectRepository returns the project repository backed by this database.
func (db *DB) ProjectRepository() domain.Repository {
	return newProjectRepository(db.conn)
}

// Connection returns the underlying connection.
func (db *DB) Connection() *sql.DB {
	return db.conn
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// SchemaVersion returns the highest applied migration version.
func (db *DB) SchemaVersion() (uint, error) {
	var version sql.NullInt64
	err := db.conn.QueryRow("SELECT MAX(version) FROM " + migrationTable).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return uint(version.Int64), nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// backup writes a consistent copy of the database next to it before the
// schema changes.
func (db *DB) backup() error {
	dest := db.path + ".bak"
	if err := os.Remove(dest); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove old backup: %w", err)
	}
	if _, err := db.conn.Exec("VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("failed to back up database: %w", err)
	}
	log.Info(log.CatDB, "Backed up database before migration", "backup", dest)
	return nil
}

// applyMigrations runs every up migration in dir newer than the recorded
// schema version, each in its own transaction. backup, when set, runs once
// before the first pending migration.
func applyMigrations(conn *sql.DB, fsys fs.FS, dir string, backup func() error) (int, error) {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return 0, fmt.Errorf("failed to open migrations: %w", err)
	}
	defer func() { _ = src.Close() }()

	if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
		version    INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return 0, fmt.Errorf("failed to ensure migration table: %w", err)
	}

	var current sql.NullInt64
	if err := conn.QueryRow("SELECT MAX(version) FROM " + migrationTable).Scan(&current); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}

	applied := 0
	version, err := src.First()
	for err == nil {
		if int64(version) > current.Int64 {
			if applied == 0 && backup != nil {
				if err := backup(); err != nil {
					return 0, err
				}
			}
			if err := applyMigration(conn, src, version); err != nil {
				return applied, err
			}
			applied++
		}
		version, err = src.Next(version)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return applied, fmt.Errorf("failed to read migrations: %w", err)
	}
	return applied, nil
}

type upReader interface {
	ReadUp(version uint) (io.ReadCloser, string, error)
}

func applyMigration(conn *sql.DB, src upReader, version uint) error {
	r, ident, err := src.ReadUp(version)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read migration %d: %w", version, err)
	}
	body, err := io.ReadAll(r)
	_ = r.Close()
	if err != nil {
		return fmt.Errorf("failed to read migration %d: %w", version, err)
	}

	tx, err := conn.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %d: %w", version, err)
	}
	if _, err := tx.Exec(string(body)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to run migration %d_%s: %w", version, ident, err)
	}
	if _, err := tx.Exec(
		"INSERT INTO "+migrationTable+" (version, applied_at) VALUES (?, ?)",
		int64(version), time.Now().UnixMilli(),
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to record migration %d: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", version, err)
	}
	log.Debug(log.CatDB, "Applied migration", "version", version, "name", ident)
	return nil
}
