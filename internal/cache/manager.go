// Package cache stores task signatures between builds using SoloDB
package cache

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	solodb "github.com/phillarmonic/SoloDB"
)

const (
	// DirName is the metadata directory created inside the build dir
	DirName = ".buildcmd"

	// DefaultExpiration bounds how long an unused signature is kept
	DefaultExpiration = 30 * 24 * time.Hour

	// CompactThreshold is the database size past which a build compacts it
	CompactThreshold = 1 << 20

	keyPrefix = "sig:"
)

// Manager persists task signatures with expiration
type Manager struct {
	db         *solodb.DB
	path       string
	expiration time.Duration
	disabled   bool
}

// Stats provides cache statistics
type Stats struct {
	Keys        int
	FileBytes   int64
	LiveRecords int64
}

// Path returns the database location for a build dir
func Path(buildDir string) string {
	return filepath.Join(buildDir, DirName, "cache.solo")
}

// NewManager opens the signature database under buildDir. A disabled
// manager never hits and never writes.
func NewManager(buildDir string, expiration time.Duration, disabled bool) (*Manager, error) {
	if expiration <= 0 {
		expiration = DefaultExpiration
	}
	if disabled {
		return &Manager{disabled: true, expiration: expiration}, nil
	}

	dbPath := Path(buildDir)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := solodb.Open(solodb.Options{
		Path:       dbPath,
		Durability: solodb.SyncBatch,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	return &Manager{
		db:         db,
		path:       dbPath,
		expiration: expiration,
	}, nil
}

// Disabled reports whether the manager is a no-op
func (m *Manager) Disabled() bool { return m.disabled }

// Get returns the stored signature of a task.
// Returns: signature, hit (true if found and not expired), error
func (m *Manager) Get(task string) ([]byte, bool, error) {
	if m.disabled {
		return nil, false, nil
	}

	rc, _, _, err := m.db.GetBlob(keyPrefix + task)
	if err == solodb.ErrNotFound || err == solodb.ErrExpired {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache read error: %w", err)
	}
	defer rc.Close()

	sig, err := io.ReadAll(rc)
	if err != nil {
		return nil, false, fmt.Errorf("cache read error: %w", err)
	}
	return sig, true, nil
}

// Matches reports whether sig equals the stored signature of task
func (m *Manager) Matches(task string, sig []byte) (bool, error) {
	stored, hit, err := m.Get(task)
	if err != nil || !hit {
		return false, err
	}
	return bytes.Equal(stored, sig), nil
}

// Set records the signature of a successful task run
func (m *Manager) Set(task string, sig []byte) error {
	if m.disabled {
		return nil
	}

	expiry := time.Now().Add(m.expiration)
	if err := m.db.SetBlob(keyPrefix+task, bytes.NewReader(sig), int64(len(sig)), expiry); err != nil {
		return fmt.Errorf("cache write error: %w", err)
	}
	return nil
}

// Delete forgets a task signature
func (m *Manager) Delete(task string) error {
	if m.disabled {
		return nil
	}

	err := m.db.Delete(keyPrefix + task)
	if err == solodb.ErrNotFound {
		return nil
	}
	return err
}

// Stats returns cache statistics
func (m *Manager) Stats() Stats {
	if m.disabled || m.db == nil {
		return Stats{}
	}

	dbStats := m.db.Stats()
	return Stats{
		Keys:        dbStats.Keys,
		FileBytes:   dbStats.FileBytes,
		LiveRecords: int64(dbStats.LiveRecords),
	}
}

// CompactAbove compacts the database when its file has grown past limit
// bytes. Every successful run rewrites a signature, so stale records pile
// up between builds. It reports whether a compaction ran.
func (m *Manager) CompactAbove(limit int64) (bool, error) {
	if m.disabled || m.db == nil {
		return false, nil
	}
	if m.db.Stats().FileBytes <= limit {
		return false, nil
	}
	if err := m.db.Compact(); err != nil {
		return false, fmt.Errorf("cache compaction error: %w", err)
	}
	return true, nil
}

// Close closes the cache database
func (m *Manager) Close() error {
	if m.disabled || m.db == nil {
		return nil
	}
	return m.db.Close()
}
