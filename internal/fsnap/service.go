package fsnap

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"fsnap-go/internal/model"
)

// FsnapService is the orchestration layer that coordinates discovery,
// snapshot storage and session bookkeeping for the CLI.
type FsnapService struct {
	database  Database
	vault     Vault
	fsmgr     FilesystemManager
	encryptor Encryptor
	logger    Logger
	clock     Clock
	idgen     IDGenerator
}

// NewFsnapService creates a new FsnapService with the provided dependencies.
// encryptor may be nil, in which case snapshot blobs are stored in plaintext.
func NewFsnapService(database Database, vault Vault, fsmgr FilesystemManager, encryptor Encryptor, logger Logger, clock Clock, idgen IDGenerator) *FsnapService {
	return &FsnapService{
		database:  database,
		vault:     vault,
		fsmgr:     fsmgr,
		encryptor: encryptor,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
	}
}

// Scan discovers the files under root, sorted by path.
func (s *FsnapService) Scan(ctx context.Context, root *Path) ([]*File, error) {
	if !root.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", root.String())
	}

	files, err := s.fsmgr.Discover(ctx, root, nil)
	if err != nil {
		return nil, fmt.Errorf("discovering files: %w", err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path() < files[j].Path()
	})

	s.logger.Debug("scan complete", "root", root.String(), "count", len(files))
	return files, nil
}

// Capture discovers the files under root, reads each one, and stores the
// snapshots in the vault as a new session. The session is marked failed if
// any file cannot be captured.
func (s *FsnapService) Capture(ctx context.Context, root *Path) (*model.Session, error) {
	files, err := s.Scan(ctx, root)
	if err != nil {
		return nil, err
	}

	session := &model.Session{
		ID:        s.idgen.New(),
		Root:      root.String(),
		Status:    model.SessionRunning,
		CreatedAt: s.clock.Now(),
	}
	if err := s.database.CreateSession(session); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	s.logger.Info("capture started", "session", session.ID, "root", session.Root)

	var count int64
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			s.fail(session, count)
			return nil, err
		}
		if err := s.captureFile(session, f); err != nil {
			s.fail(session, count)
			return nil, fmt.Errorf("capturing %s: %w", f.Path(), err)
		}
		count++
	}

	if err := s.database.FinishSession(session, model.SessionComplete, count, s.clock.Now()); err != nil {
		return nil, fmt.Errorf("finishing session: %w", err)
	}

	s.logger.Info("capture complete", "session", session.ID, "count", count)
	return session, nil
}

// captureFile snapshots a single file into the vault and records it.
func (s *FsnapService) captureFile(session *model.Session, f *File) error {
	data, err := f.ReadContent()
	if err != nil {
		return err
	}

	relativePath, err := filepath.Rel(session.Root, f.Path())
	if err != nil {
		return fmt.Errorf("calculating relative path: %w", err)
	}

	fileID := s.idgen.New()
	key := session.ID + "/" + fileID

	payload := data
	encrypted := false
	if s.encryptor != nil {
		var buf bytes.Buffer
		if err := s.encryptor.Encrypt(bytes.NewReader(data), &buf); err != nil {
			return fmt.Errorf("encrypting snapshot: %w", err)
		}
		payload = buf.Bytes()
		encrypted = true
	}

	if err := s.vault.PutSnapshot(key, bytes.NewReader(payload), int64(len(payload))); err != nil {
		return fmt.Errorf("storing snapshot: %w", err)
	}

	err = s.database.AddSessionFile(&model.SessionFile{
		ID:           fileID,
		SessionID:    session.ID,
		RelativePath: relativePath,
		Size:         int64(len(data)),
		VaultKey:     key,
		Encrypted:    encrypted,
	})
	if err != nil {
		return fmt.Errorf("recording file: %w", err)
	}

	s.logger.Debug("file captured", "path", relativePath, "size", len(data))
	return nil
}

// fail marks a session failed. The capture error takes precedence over a
// bookkeeping error, which is only logged.
func (s *FsnapService) fail(session *model.Session, count int64) {
	if err := s.database.FinishSession(session, model.SessionFailed, count, s.clock.Now()); err != nil {
		s.logger.Error("marking session failed", "session", session.ID, "error", err)
	}
}

// History returns the most recent sessions, newest first.
func (s *FsnapService) History(limit int) ([]*model.Session, error) {
	sessions, err := s.database.ListSessions(limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return sessions, nil
}

// Drop deletes a session together with its stored snapshots.
func (s *FsnapService) Drop(sessionID string) error {
	session, err := s.database.FindSession(sessionID)
	if err != nil {
		return fmt.Errorf("finding session: %w", err)
	}
	if session == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	files, err := s.database.FindSessionFiles(session)
	if err != nil {
		return fmt.Errorf("finding session files: %w", err)
	}
	for _, f := range files {
		if err := s.vault.DeleteSnapshot(f.VaultKey); err != nil {
			return fmt.Errorf("deleting snapshot for %s: %w", f.RelativePath, err)
		}
	}

	if err := s.database.DeleteSession(session); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	s.logger.Info("session dropped", "session", session.ID, "files", len(files))
	return nil
}
