package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the SQLite run journal.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "xposter.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Runs ---

// Writes use a fixed width so lexical order in SQL matches time order.
// DATETIME columns come back through the driver as time.Time, which
// database/sql renders with RFC3339Nano and trailing zeros trimmed.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// BeginRun inserts a claimed run. ID and StartedAt are required.
func (s *Store) BeginRun(r Run) error {
	if r.ID == "" || r.ItemID == "" {
		return fmt.Errorf("run id and item id are required")
	}
	started := r.StartedAt.UTC().Format(timeLayout)
	_, err := s.db.Exec(`
		INSERT INTO runs (id, item_id, slot, state, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.ItemID, r.Slot, StateClaimed, started, started,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// MarkSubmitted records that the submit control is about to be clicked.
// From here on the run is never marked failed.
func (s *Store) MarkSubmitted(id string) error {
	return s.setState(id, StateSubmitted, `state = 'claimed'`)
}

// MarkRecorded closes a run after the queue and posted log were written.
func (s *Store) MarkRecorded(id, resultURL string, degraded bool) error {
	res, err := s.db.Exec(`
		UPDATE runs SET state = ?, result_url = ?, degraded = ?, updated_at = ?
		WHERE id = ?`,
		StateRecorded, resultURL, boolToInt(degraded), now(), id,
	)
	return affectedOne(res, err)
}

// FailRun stores errMsg on the run. Runs that already reached submitted
// keep that state so the item stays guarded against a second post.
func (s *Store) FailRun(id, errMsg string) error {
	res, err := s.db.Exec(`
		UPDATE runs
		SET state = CASE WHEN state = 'submitted' THEN 'submitted' ELSE 'failed' END,
			last_error = ?, updated_at = ?
		WHERE id = ? AND state != 'recorded'`,
		errMsg, now(), id,
	)
	return affectedOne(res, err)
}

// Unreconciled returns runs that clicked submit but never recorded a
// result, oldest first.
func (s *Store) Unreconciled() ([]Run, error) {
	return s.queryRuns(`WHERE state = 'submitted' ORDER BY started_at ASC`)
}

// RecentRuns returns the newest runs first.
func (s *Store) RecentRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.queryRuns(`ORDER BY started_at DESC LIMIT ?`, limit)
}

// ReconcileItem marks every submitted run of itemID as recorded with
// resultURL. It returns the number of runs closed.
func (s *Store) ReconcileItem(itemID, resultURL string) (int, error) {
	res, err := s.db.Exec(`
		UPDATE runs SET state = ?, result_url = ?, updated_at = ?
		WHERE item_id = ? AND state = 'submitted'`,
		StateRecorded, resultURL, now(), itemID,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *Store) setState(id, state, guard string) error {
	res, err := s.db.Exec(`UPDATE runs SET state = ?, updated_at = ? WHERE id = ? AND `+guard, state, now(), id)
	return affectedOne(res, err)
}

func (s *Store) queryRuns(clause string, args ...any) ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT id, item_id, slot, state, result_url, degraded, last_error, started_at, updated_at
		FROM runs `+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Run
	for rows.Next() {
		var r Run
		var degraded int
		var startedAt, updatedAt string
		if err := rows.Scan(&r.ID, &r.ItemID, &r.Slot, &r.State, &r.ResultURL, &degraded, &r.LastError, &startedAt, &updatedAt); err != nil {
			return nil, err
		}
		r.Degraded = degraded != 0
		if r.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("parsing started_at for run %s: %w", r.ID, err)
		}
		if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at for run %s: %w", r.ID, err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(timeLayout)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
