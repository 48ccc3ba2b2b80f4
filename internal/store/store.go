// Package store persists run history and conversion counters to SQLite.
// It implements the batch.Store interface; pending runs survive restarts
// and interrupted runs are marked failed on startup.
package store

import (
	"path/filepath"
)

const dbFileName = "rawray.db"

// InitStore opens (or creates) the SQLite store in the given data
// directory and sweeps runs left over from an unclean shutdown.
func InitStore(dataDir string) (*SQLiteStore, error) {
	s, err := NewSQLiteStore(filepath.Join(dataDir, dbFileName))
	if err != nil {
		return nil, err
	}

	if _, err := s.MarkInterrupted(); err != nil {
		s.Close()
		return nil, err
	}

	// A new process is a new session.
	if err := s.ResetSession(); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}
