package fsnap

import (
	"time"

	"fsnap-go/internal/model"
)

// Database records capture sessions and the files each one captured.
// Find methods return nil and no error when nothing matches.
type Database interface {
	// Session operations

	// CreateSession inserts a new session row.
	CreateSession(session *model.Session) error

	// FinishSession sets the final status, file count and finish time of a session.
	FinishSession(session *model.Session, status string, fileCount int64, at time.Time) error

	// FindSession returns a session by ID.
	FindSession(id string) (*model.Session, error)

	// LatestSession returns the most recent complete session for root.
	LatestSession(root string) (*model.Session, error)

	// ListSessions returns the most recent sessions, newest first.
	ListSessions(limit int) ([]*model.Session, error)

	// DeleteSession removes a session and its file rows.
	DeleteSession(session *model.Session) error

	// Session file operations

	// AddSessionFile records one captured file.
	AddSessionFile(file *model.SessionFile) error

	// FindSessionFiles returns the files of a session ordered by relative path.
	FindSessionFiles(session *model.Session) ([]*model.SessionFile, error)

	// Close closes the database connection.
	Close() error
}
