package infra

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	// Ensure sqlcipher driver is registered.
	_ "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/focusd/usage_mon/internal/domain"
)

const (
	storeDBName = "usage.db"
)

// Store implements every persistence interface of the engine on a single
// SQLCipher encrypted SQLite database.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (or creates) the encrypted usage database.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewStore(dataDir string, key []byte) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, storeDBName)
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}
	// The tracker, scheduler and CLI share one file; a single connection
	// serializes writers instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	// Verify encryption works by running a query
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	s := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// createTables creates the schema if it doesn't exist.
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS hourly_usage (
		package TEXT NOT NULL,
		hour_start INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		open_count INTEGER NOT NULL,
		PRIMARY KEY (package, hour_start)
	);

	CREATE TABLE IF NOT EXISTS usage_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		package TEXT NOT NULL,
		ts_ms INTEGER NOT NULL,
		kind INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_events_ts ON usage_events (ts_ms);

	CREATE TABLE IF NOT EXISTS app_policies (
		package TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		tracked INTEGER NOT NULL DEFAULT 0,
		time_limit_minutes INTEGER NOT NULL DEFAULT 0,
		requires_intention INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS focus_sessions (
		id TEXT PRIMARY KEY,
		start_time INTEGER NOT NULL,
		end_time INTEGER,
		planned_minutes INTEGER NOT NULL,
		actual_minutes INTEGER NOT NULL DEFAULT 0,
		completed INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS user_stats (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		current_streak INTEGER NOT NULL,
		longest_streak INTEGER NOT NULL,
		total_points INTEGER NOT NULL,
		daily_goal_minutes INTEGER NOT NULL,
		last_goal_check_date INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS daily_goals (
		date INTEGER PRIMARY KEY,
		goal_minutes INTEGER NOT NULL,
		actual_minutes INTEGER NOT NULL,
		goal_met INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS daemon_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		pid INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		last_heartbeat INTEGER NOT NULL,
		app_version TEXT DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// --- domain.MetaStore implementation ---

// GetMeta returns a stored flag, or ErrNotFound.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read meta %q: %w", key, err)
	}
	return value, nil
}

// SetMeta stores a flag.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write meta %q: %w", key, err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Ensure Store implements the persistence interfaces.
var (
	_ domain.UsageStore        = (*Store)(nil)
	_ domain.EventSource       = (*Store)(nil)
	_ domain.EventJournal      = (*Store)(nil)
	_ domain.PolicyStore       = (*Store)(nil)
	_ domain.FocusSessionStore = (*Store)(nil)
	_ domain.StatsStore        = (*Store)(nil)
	_ domain.MetaStore         = (*Store)(nil)
	_ domain.DaemonRegistry    = (*Store)(nil)
)
