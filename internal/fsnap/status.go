package fsnap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"fsnap-go/internal/model"
)

// FileStatus reports how a captured file compares to the working tree.
type FileStatus struct {
	RelativePath string
	Size         int64
	Changed      bool
	Missing      bool
}

// trackedFile pairs a session row with a File holding its snapshot.
type trackedFile struct {
	record *model.SessionFile
	file   *File
}

// Status compares every file of a session with the bytes on disk.
// An empty sessionID selects the latest complete session for root.
// decryptCtx is required when the session's snapshots are encrypted.
func (s *FsnapService) Status(ctx context.Context, root string, sessionID string, decryptCtx DecryptionContext) (*model.Session, []*FileStatus, error) {
	session, err := s.resolveSession(root, sessionID)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Debug("computing status", "session", session.ID)

	tracked, err := s.loadSession(session, decryptCtx)
	if err != nil {
		return nil, nil, err
	}

	statuses := make([]*FileStatus, 0, len(tracked))
	for _, t := range tracked {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		status, err := compareFile(t)
		if err != nil {
			return nil, nil, err
		}
		statuses = append(statuses, status)
	}

	return session, statuses, nil
}

// Revert writes the captured snapshot back over every file of the session
// that changed or went missing. It returns the reverted relative paths.
func (s *FsnapService) Revert(ctx context.Context, root string, sessionID string, decryptCtx DecryptionContext) ([]string, error) {
	session, err := s.resolveSession(root, sessionID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("revert started", "session", session.ID, "root", session.Root)

	tracked, err := s.loadSession(session, decryptCtx)
	if err != nil {
		return nil, err
	}

	var reverted []string
	for _, t := range tracked {
		if err := ctx.Err(); err != nil {
			return reverted, err
		}

		status, err := compareFile(t)
		if err != nil {
			return reverted, err
		}
		if !status.Changed && !status.Missing {
			continue
		}

		if status.Missing {
			if err := s.fsmgr.MkdirAll(filepath.Dir(t.file.Path())); err != nil {
				return reverted, fmt.Errorf("creating parent directory: %w", err)
			}
		}
		if err := t.file.RestoreSnapshot(); err != nil {
			return reverted, fmt.Errorf("reverting %s: %w", t.record.RelativePath, err)
		}

		s.logger.Info("file reverted", "path", t.record.RelativePath)
		reverted = append(reverted, t.record.RelativePath)
	}

	s.logger.Info("revert complete", "session", session.ID, "count", len(reverted))
	return reverted, nil
}

// compareFile checks one tracked file. A file that no longer exists is
// reported missing rather than failing the whole run.
func compareFile(t *trackedFile) (*FileStatus, error) {
	status := &FileStatus{
		RelativePath: t.record.RelativePath,
		Size:         t.record.Size,
	}

	changed, err := t.file.HasChanges()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			status.Missing = true
			return status, nil
		}
		return nil, fmt.Errorf("comparing %s: %w", t.record.RelativePath, err)
	}
	status.Changed = changed
	return status, nil
}

// resolveSession finds a complete session by ID, or the latest one for root.
func (s *FsnapService) resolveSession(root string, sessionID string) (*model.Session, error) {
	var session *model.Session
	var err error

	if sessionID != "" {
		session, err = s.database.FindSession(sessionID)
		if err != nil {
			return nil, fmt.Errorf("finding session: %w", err)
		}
		if session == nil {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
	} else {
		session, err = s.database.LatestSession(root)
		if err != nil {
			return nil, fmt.Errorf("finding latest session: %w", err)
		}
		if session == nil {
			return nil, fmt.Errorf("%w: no complete session for %s", ErrSessionNotFound, root)
		}
	}

	if session.Status != model.SessionComplete {
		return nil, fmt.Errorf("session %s is %s", session.ID, session.Status)
	}
	return session, nil
}

// loadSession fetches every snapshot of a session from the vault and binds
// it to a File rooted at the session root.
func (s *FsnapService) loadSession(session *model.Session, decryptCtx DecryptionContext) ([]*trackedFile, error) {
	records, err := s.database.FindSessionFiles(session)
	if err != nil {
		return nil, fmt.Errorf("finding session files: %w", err)
	}

	tracked := make([]*trackedFile, 0, len(records))
	for _, rec := range records {
		data, err := s.fetchSnapshot(rec, decryptCtx)
		if err != nil {
			return nil, fmt.Errorf("loading snapshot for %s: %w", rec.RelativePath, err)
		}

		f := s.fsmgr.NewFile(filepath.Join(session.Root, rec.RelativePath))
		f.LoadSnapshot(data)
		tracked = append(tracked, &trackedFile{record: rec, file: f})
	}
	return tracked, nil
}

// fetchSnapshot reads a blob from the vault, decrypting it when needed.
func (s *FsnapService) fetchSnapshot(rec *model.SessionFile, decryptCtx DecryptionContext) ([]byte, error) {
	var blob bytes.Buffer
	if err := s.vault.GetSnapshot(rec.VaultKey, &blob); err != nil {
		return nil, fmt.Errorf("retrieving from vault: %w", err)
	}

	data := blob.Bytes()
	if rec.Encrypted {
		if decryptCtx == nil {
			return nil, fmt.Errorf("snapshot is encrypted but no passphrase was provided")
		}
		var plain bytes.Buffer
		if err := decryptCtx.Decrypt(&blob, &plain); err != nil {
			return nil, fmt.Errorf("decrypting snapshot: %w", err)
		}
		data = plain.Bytes()
	}

	if int64(len(data)) != rec.Size {
		return nil, fmt.Errorf("size mismatch: expected %d bytes, got %d", rec.Size, len(data))
	}
	return data, nil
}
