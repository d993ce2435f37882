package infra

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/eliteGoblin/focusd/usage_mon/internal/domain"
)

// --- domain.DaemonRegistry implementation ---

// Register saves the current tracker's PID.
func (s *Store) Register(daemon domain.Daemon) error {
	now := time.Now()
	started := daemon.StartedAt
	if started.IsZero() {
		started = now
	}

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO daemon_state (id, pid, started_at, last_heartbeat, app_version)
		VALUES (1, ?, ?, ?, ?)`,
		daemon.PID, started.Unix(), now.Unix(), daemon.AppVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to register daemon: %w", err)
	}
	return nil
}

// UpdateHeartbeat updates timestamp for liveness check.
func (s *Store) UpdateHeartbeat() error {
	result, err := s.db.Exec(`UPDATE daemon_state SET last_heartbeat = ? WHERE id = 1`, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to update heartbeat: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("daemon not registered: %w", domain.ErrNotFound)
	}
	return nil
}

// Get returns the registered tracker, or ErrNotFound.
func (s *Store) Get() (*domain.Daemon, error) {
	var (
		d                  domain.Daemon
		started, heartbeat int64
	)
	err := s.db.QueryRow(`SELECT pid, started_at, last_heartbeat, app_version FROM daemon_state WHERE id = 1`).
		Scan(&d.PID, &started, &heartbeat, &d.AppVersion)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read daemon state: %w", err)
	}
	d.StartedAt = time.Unix(started, 0)
	d.LastHeartbeat = time.Unix(heartbeat, 0)
	return &d, nil
}

// Clear removes daemon state (for clean restart).
func (s *Store) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM daemon_state`); err != nil {
		return fmt.Errorf("failed to clear daemon state: %w", err)
	}
	return nil
}
