package sqlite

import (
	"database/sql"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/NaruseNia/progest/internal/project/domain"
)

// TestNewDB_CreatesDirectory verifies that NewDB creates the parent directory if missing.
func TestNewDB_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "registry.db")

	db, err := NewDB(dbPath)
	require.NoError(t, err, "NewDB should succeed even with nested non-existent directories")
	defer db.Close()

	info, err := os.Stat(filepath.Dir(dbPath))
	require.NoError(t, err, "Directory should exist after NewDB")
	require.True(t, info.IsDir(), "Should be a directory")

	// Windows doesn't support Unix permissions
	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0700), info.Mode().Perm(), "Directory should have 0700 permissions")
	}
}

// TestNewDB_RunsMigrations verifies that NewDB creates the projects table and records the version.
func TestNewDB_RunsMigrations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "registry.db")

	db, err := NewDB(dbPath)
	require.NoError(t, err, "NewDB should succeed")
	defer db.Close()

	var tableName string
	err = db.conn.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='projects'",
	).Scan(&tableName)
	require.NoError(t, err, "projects table should exist after migrations")
	require.Equal(t, "projects", tableName)

	version, err := db.SchemaVersion()
	require.NoError(t, err)
	require.Equal(t, uint(1), version)
}

// TestNewDB_ReopenIsIdempotent verifies that reopening applies nothing and keeps data.
func TestNewDB_ReopenIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "registry.db")

	db1, err := NewDB(dbPath)
	require.NoError(t, err)
	_, err = db1.conn.Exec(
		"INSERT INTO projects (id, name, root_path, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		"p1", "Foo", "/tmp/x/Foo", "active", 1000, 1000,
	)
	require.NoError(t, err)
	require.NoError(t, db1.Close())

	db2, err := NewDB(dbPath)
	require.NoError(t, err)
	defer db2.Close()

	var count int
	require.NoError(t, db2.conn.QueryRow("SELECT COUNT(*) FROM projects").Scan(&count))
	require.Equal(t, 1, count)

	_, err = os.Stat(dbPath + ".bak")
	require.ErrorIs(t, err, os.ErrNotExist, "no backup without pending migrations")
}

// TestApplyMigrations_BacksUpBeforePending verifies that a .bak copy is written
// before a new migration runs against an existing database.
func TestApplyMigrations_BacksUpBeforePending(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "registry.db")

	db, err := NewDB(dbPath)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.conn.Exec(
		"INSERT INTO projects (id, name, root_path, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		"p1", "Foo", "/tmp/x/Foo", "active", 1000, 1000,
	)
	require.NoError(t, err)

	first, err := migrationsFS.ReadFile("migrations/1_create_projects.up.sql")
	require.NoError(t, err)
	fsys := fstest.MapFS{
		"migrations/1_create_projects.up.sql": {Data: first},
		"migrations/2_add_notes.up.sql":       {Data: []byte("ALTER TABLE projects ADD COLUMN notes TEXT;")},
	}

	applied, err := applyMigrations(db.conn, fsys, "migrations", db.backup)
	require.NoError(t, err)
	require.Equal(t, 1, applied)

	info, err := os.Stat(dbPath + ".bak")
	require.NoError(t, err, "Backup file should exist")
	require.Greater(t, info.Size(), int64(0), "Backup file should have content")

	backup, err := sql.Open("sqlite3", "file:"+filepath.ToSlash(dbPath+".bak"))
	require.NoError(t, err)
	defer backup.Close()
	var count int
	require.NoError(t, backup.QueryRow("SELECT COUNT(*) FROM projects").Scan(&count))
	require.Equal(t, 1, count, "backup holds the pre-migration rows")

	version, err := db.SchemaVersion()
	require.NoError(t, err)
	require.Equal(t, uint(2), version)
}

// TestApplyMigrations_FailureRollsBack verifies that a broken migration is not recorded.
func TestApplyMigrations_FailureRollsBack(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "registry.db")
	db, err := NewDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	first, err := migrationsFS.ReadFile("migrations/1_create_projects.up.sql")
	require.NoError(t, err)
	fsys := fstest.MapFS{
		"migrations/1_create_projects.up.sql": {Data: first},
		"migrations/2_broken.up.sql":          {Data: []byte("CREATE TABLE extra (id TEXT); NOT SQL;")},
	}

	_, err = applyMigrations(db.conn, fsys, "migrations", nil)
	require.Error(t, err)

	version, err := db.SchemaVersion()
	require.NoError(t, err)
	require.Equal(t, uint(1), version)

	var name string
	err = db.conn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='extra'").Scan(&name)
	require.ErrorIs(t, err, sql.ErrNoRows, "partial migration is rolled back")
}

// TestNewDB_Pragmas verifies WAL mode, foreign keys and the busy timeout.
func TestNewDB_Pragmas(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err, "NewDB should succeed")
	defer db.Close()

	var journalMode string
	require.NoError(t, db.conn.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	require.Equal(t, "wal", journalMode, "Journal mode should be WAL")

	var foreignKeys int
	require.NoError(t, db.conn.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	require.Equal(t, 1, foreignKeys, "Foreign keys should be enabled (1)")

	var busyTimeout int
	require.NoError(t, db.conn.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	require.Equal(t, 5000, busyTimeout, "Busy timeout should be 5000ms")
}

// TestDB_Close verifies that connection closes cleanly.
func TestDB_Close(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err, "NewDB should succeed")

	require.NoError(t, db.Close(), "Close should succeed")
	require.Error(t, db.conn.Ping(), "Ping should fail after Close")
}

// TestDB_ProjectRepository verifies that ProjectRepository satisfies domain.Repository.
func TestDB_ProjectRepository(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err, "NewDB should succeed")
	defer db.Close()

	repo := db.ProjectRepository()
	require.NotNil(t, repo, "ProjectRepository should not return nil")

	var _ domain.Repository = repo
}

// TestDB_Connection verifies that Connection returns the underlying *sql.DB.
func TestDB_Connection(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err, "NewDB should succeed")
	defer db.Close()

	conn := db.Connection()
	require.NotNil(t, conn, "Connection should not return nil")
	require.NoError(t, conn.Ping(), "Connection should be pingable")
}

// TestNewDB_MultipleCalls verifies that opening the same database twice is safe.
func TestNewDB_MultipleCalls(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "registry.db")

	db1, err := NewDB(dbPath)
	require.NoError(t, err, "First NewDB should succeed")
	defer db1.Close()

	db2, err := NewDB(dbPath)
	require.NoError(t, err, "Second NewDB should succeed (WAL mode allows concurrent access)")
	defer db2.Close()

	var count1, count2 int
	require.NoError(t, db1.conn.QueryRow("SELECT COUNT(*) FROM projects").Scan(&count1))
	require.NoError(t, db2.conn.QueryRow("SELECT COUNT(*) FROM projects").Scan(&count2))
}

// TestNewDB_InvalidPath verifies that NewDB fails when the parent is a file.
func TestNewDB_InvalidPath(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	_, err := NewDB(filepath.Join(blocker, "registry.db"))
	require.Error(t, err, "NewDB should fail when the directory cannot be created")
}
