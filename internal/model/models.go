package model

import (
	"database/sql"
	"time"
)

// Session status values.
const (
	SessionRunning  = "running"
	SessionComplete = "complete"
	SessionFailed   = "failed"
)

// Session represents one capture of a directory tree.
type Session struct {
	ID         string       // UUID
	Root       string       // Absolute path of the captured directory
	Status     string       // running, complete or failed
	CreatedAt  time.Time    // When the capture started
	FinishedAt sql.NullTime // When the capture finished, if it did
	FileCount  int64        // Number of files captured
}

// SessionFile represents one file captured by a session.
type SessionFile struct {
	ID           string // UUID
	SessionID    string // Foreign key to Session
	RelativePath string // Path relative to the session root
	Size         int64  // Snapshot size in bytes (plaintext)
	VaultKey     string // Key of the snapshot blob in the vault
	Encrypted    bool   // Whether the blob is encrypted
}
