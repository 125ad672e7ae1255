package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"fsnap-go/internal/fsnap"
	"fsnap-go/internal/model"
)

// newTestDB creates a new in-memory database with schema applied.
func newTestDB(t *testing.T) *SQLiteDatabase {
	t.Helper()

	db, err := NewSQLiteDatabase(MemoryPath)
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})

	if err := db.MigrateUp(); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	return db
}

var baseTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// createSession inserts a session with the given ID, root, status and age.
func createSession(t *testing.T, db *SQLiteDatabase, id, root, status string, offset time.Duration) *model.Session {
	t.Helper()
	s := &model.Session{
		ID:        id,
		Root:      root,
		Status:    model.SessionRunning,
		CreatedAt: baseTime.Add(offset),
	}
	if err := db.CreateSession(s); err != nil {
		t.Fatalf("CreateSession(%s) error = %v", id, err)
	}
	if status != model.SessionRunning {
		if err := db.FinishSession(s, status, 0, s.CreatedAt.Add(time.Second)); err != nil {
			t.Fatalf("FinishSession(%s) error = %v", id, err)
		}
	}
	return s
}

func addFile(t *testing.T, db *SQLiteDatabase, session *model.Session, id, rel string) *model.SessionFile {
	t.Helper()
	f := &model.SessionFile{
		ID:           id,
		SessionID:    session.ID,
		RelativePath: rel,
		Size:         int64(len(rel)),
		VaultKey:     session.ID + "/" + id,
		Encrypted:    true,
	}
	if err := db.AddSessionFile(f); err != nil {
		t.Fatalf("AddSessionFile(%s) error = %v", rel, err)
	}
	return f
}

func TestSQLiteDatabase_FindSession(t *testing.T) {
	t.Run("returns nil when session not found", func(t *testing.T) {
		db := newTestDB(t)

		s, err := db.FindSession("nope")
		if err != nil {
			t.Fatalf("FindSession() error = %v", err)
		}
		if s != nil {
			t.Errorf("FindSession() = %v, want nil", s)
		}
	})

	t.Run("round trips fields", func(t *testing.T) {
		db := newTestDB(t)
		created := createSession(t, db, "s-1", "/home/user/proj", model.SessionRunning, 0)

		found, err := db.FindSession("s-1")
		if err != nil {
			t.Fatalf("FindSession() error = %v", err)
		}
		if found == nil {
			t.Fatal("FindSession() returned nil, want session")
		}
		if found.Root != created.Root {
			t.Errorf("Root = %q, want %q", found.Root, created.Root)
		}
		if found.Status != model.SessionRunning {
			t.Errorf("Status = %q, want %q", found.Status, model.SessionRunning)
		}
		if !found.CreatedAt.Equal(created.CreatedAt) {
			t.Errorf("CreatedAt = %v, want %v", found.CreatedAt, created.CreatedAt)
		}
		if found.FinishedAt.Valid {
			t.Error("FinishedAt should be NULL for a running session")
		}
	})
}

func TestSQLiteDatabase_CreateSession_DuplicateID(t *testing.T) {
	db := newTestDB(t)
	createSession(t, db, "s-1", "/r", model.SessionRunning, 0)

	err := db.CreateSession(&model.Session{ID: "s-1", Root: "/r", Status: model.SessionRunning, CreatedAt: baseTime})
	if err == nil {
		t.Error("CreateSession() expected error for duplicate ID")
	}
}

func TestSQLiteDatabase_FinishSession(t *testing.T) {
	t.Run("updates status and count", func(t *testing.T) {
		db := newTestDB(t)
		s := createSession(t, db, "s-1", "/r", model.SessionRunning, 0)

		finished := baseTime.Add(90 * time.Second)
		if err := db.FinishSession(s, model.SessionComplete, 7, finished); err != nil {
			t.Fatalf("FinishSession() error = %v", err)
		}
		if s.Status != model.SessionComplete || s.FileCount != 7 || !s.FinishedAt.Valid {
			t.Errorf("session not updated in place: %+v", s)
		}

		found, err := db.FindSession("s-1")
		if err != nil {
			t.Fatalf("FindSession() error = %v", err)
		}
		if found.Status != model.SessionComplete {
			t.Errorf("Status = %q, want %q", found.Status, model.SessionComplete)
		}
		if found.FileCount != 7 {
			t.Errorf("FileCount = %d, want 7", found.FileCount)
		}
		if !found.FinishedAt.Valid || !found.FinishedAt.Time.Equal(finished) {
			t.Errorf("FinishedAt = %v, want %v", found.FinishedAt, finished)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		db := newTestDB(t)
		err := db.FinishSession(&model.Session{ID: "ghost"}, model.SessionFailed, 0, baseTime)
		if !errors.Is(err, fsnap.ErrSessionNotFound) {
			t.Errorf("FinishSession() error = %v, want ErrSessionNotFound", err)
		}
	})
}

func TestSQLiteDatabase_LatestSession(t *testing.T) {
	t.Run("returns nil without sessions", func(t *testing.T) {
		db := newTestDB(t)
		s, err := db.LatestSession("/r")
		if err != nil {
			t.Fatalf("LatestSession() error = %v", err)
		}
		if s != nil {
			t.Errorf("LatestSession() = %v, want nil", s)
		}
	})

	t.Run("picks newest complete session for root", func(t *testing.T) {
		db := newTestDB(t)
		createSession(t, db, "old", "/r", model.SessionComplete, 0)
		createSession(t, db, "new", "/r", model.SessionComplete, time.Hour)
		createSession(t, db, "failed", "/r", model.SessionFailed, 2*time.Hour)
		createSession(t, db, "running", "/r", model.SessionRunning, 3*time.Hour)
		createSession(t, db, "other", "/other", model.SessionComplete, 4*time.Hour)

		s, err := db.LatestSession("/r")
		if err != nil {
			t.Fatalf("LatestSession() error = %v", err)
		}
		if s == nil || s.ID != "new" {
			t.Errorf("LatestSession() = %v, want session new", s)
		}
	})

	t.Run("same timestamp prefers later insert", func(t *testing.T) {
		db := newTestDB(t)
		createSession(t, db, "first", "/r", model.SessionComplete, 0)
		createSession(t, db, "second", "/r", model.SessionComplete, 0)

		s, err := db.LatestSession("/r")
		if err != nil {
			t.Fatalf("LatestSession() error = %v", err)
		}
		if s == nil || s.ID != "second" {
			t.Errorf("LatestSession() = %v, want session second", s)
		}
	})
}

func TestSQLiteDatabase_ListSessions(t *testing.T) {
	db := newTestDB(t)
	createSession(t, db, "a", "/r", model.SessionComplete, 0)
	createSession(t, db, "b", "/r", model.SessionFailed, time.Minute)
	createSession(t, db, "c", "/x", model.SessionComplete, 2*time.Minute)

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{name: "all newest first", limit: 10, want: []string{"c", "b", "a"}},
		{name: "limited", limit: 2, want: []string{"c", "b"}},
		{name: "zero means unlimited", limit: 0, want: []string{"c", "b", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions, err := db.ListSessions(tt.limit)
			if err != nil {
				t.Fatalf("ListSessions() error = %v", err)
			}
			if len(sessions) != len(tt.want) {
				t.Fatalf("ListSessions() returned %d sessions, want %d", len(sessions), len(tt.want))
			}
			for i, id := range tt.want {
				if sessions[i].ID != id {
					t.Errorf("sessions[%d].ID = %q, want %q", i, sessions[i].ID, id)
				}
			}
		})
	}
}

func TestSQLiteDatabase_SessionFiles(t *testing.T) {
	t.Run("ordered by relative path", func(t *testing.T) {
		db := newTestDB(t)
		s := createSession(t, db, "s-1", "/r", model.SessionRunning, 0)
		addFile(t, db, s, "f-1", "z.txt")
		addFile(t, db, s, "f-2", "a/b.txt")
		addFile(t, db, s, "f-3", "m.txt")

		files, err := db.FindSessionFiles(s)
		if err != nil {
			t.Fatalf("FindSessionFiles() error = %v", err)
		}
		want := []string{"a/b.txt", "m.txt", "z.txt"}
		if len(files) != len(want) {
			t.Fatalf("FindSessionFiles() returned %d files, want %d", len(files), len(want))
		}
		for i, rel := range want {
			if files[i].RelativePath != rel {
				t.Errorf("files[%d] = %q, want %q", i, files[i].RelativePath, rel)
			}
		}
		if !files[0].Encrypted || files[0].VaultKey != "s-1/f-2" || files[0].Size != int64(len("a/b.txt")) {
			t.Errorf("fields not round tripped: %+v", files[0])
		}
	})

	t.Run("scoped to session", func(t *testing.T) {
		db := newTestDB(t)
		s1 := createSession(t, db, "s-1", "/r", model.SessionRunning, 0)
		s2 := createSession(t, db, "s-2", "/r", model.SessionRunning, 0)
		addFile(t, db, s1, "f-1", "a.txt")
		addFile(t, db, s2, "f-2", "a.txt")

		files, err := db.FindSessionFiles(s1)
		if err != nil {
			t.Fatalf("FindSessionFiles() error = %v", err)
		}
		if len(files) != 1 || files[0].ID != "f-1" {
			t.Errorf("FindSessionFiles() = %v, want only f-1", files)
		}
	})

	t.Run("duplicate path in session rejected", func(t *testing.T) {
		db := newTestDB(t)
		s := createSession(t, db, "s-1", "/r", model.SessionRunning, 0)
		addFile(t, db, s, "f-1", "a.txt")

		err := db.AddSessionFile(&model.SessionFile{ID: "f-2", SessionID: "s-1", RelativePath: "a.txt", VaultKey: "k"})
		if err == nil {
			t.Error("AddSessionFile() expected error for duplicate path")
		}
	})

	t.Run("unknown session rejected", func(t *testing.T) {
		db := newTestDB(t)
		err := db.AddSessionFile(&model.SessionFile{ID: "f-1", SessionID: "ghost", RelativePath: "a.txt", VaultKey: "k"})
		if err == nil {
			t.Error("AddSessionFile() expected foreign key error")
		}
	})
}

func TestSQLiteDatabase_DeleteSession(t *testing.T) {
	db := newTestDB(t)
	s := createSession(t, db, "s-1", "/r", model.SessionComplete, 0)
	addFile(t, db, s, "f-1", "a.txt")
	keep := createSession(t, db, "s-2", "/r", model.SessionComplete, 0)
	addFile(t, db, keep, "f-2", "a.txt")

	if err := db.DeleteSession(s); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}

	found, err := db.FindSession("s-1")
	if err != nil {
		t.Fatalf("FindSession() error = %v", err)
	}
	if found != nil {
		t.Error("session still present after DeleteSession")
	}

	files, err := db.FindSessionFiles(s)
	if err != nil {
		t.Fatalf("FindSessionFiles() error = %v", err)
	}
	if len(files) != 0 {
		t.Errorf("FindSessionFiles() returned %d files after delete, want 0", len(files))
	}

	files, err = db.FindSessionFiles(keep)
	if err != nil {
		t.Fatalf("FindSessionFiles() error = %v", err)
	}
	if len(files) != 1 {
		t.Errorf("other session lost its files: got %d, want 1", len(files))
	}
}

func TestSQLiteDatabase_DeleteSession_EveryConnectionCascades(t *testing.T) {
	db, err := NewSQLiteDatabase(filepath.Join(t.TempDir(), DatabaseFileName))
	if err != nil {
		t.Fatalf("NewSQLiteDatabase() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}

	s := createSession(t, db, "s-1", "/r", model.SessionComplete, 0)
	addFile(t, db, s, "f-1", "a.txt")
	addFile(t, db, s, "f-2", "b.txt")

	// Pin one pooled connection so the delete runs on another.
	ctx := context.Background()
	held, err := db.db.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn() error = %v", err)
	}
	defer held.Close()

	var fk int
	if err := held.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("reading foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("held connection foreign_keys = %d, want 1", fk)
	}

	if err := db.DeleteSession(s); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}

	var orphans int
	if err := held.QueryRowContext(ctx, "SELECT COUNT(*) FROM session_files WHERE session_id = ?", "s-1").Scan(&orphans); err != nil {
		t.Fatalf("counting session files: %v", err)
	}
	if orphans != 0 {
		t.Errorf("%d session files left after DeleteSession, want 0", orphans)
	}
}

func TestSQLiteDatabase_CheckMigrations(t *testing.T) {
	db, err := NewSQLiteDatabase(MemoryPath)
	if err != nil {
		t.Fatalf("NewSQLiteDatabase() error = %v", err)
	}
	defer db.Close()

	if err := db.CheckMigrations(); err == nil {
		t.Error("CheckMigrations() expected error before MigrateUp")
	}
	if err := db.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	if err := db.CheckMigrations(); err != nil {
		t.Errorf("CheckMigrations() after MigrateUp error = %v", err)
	}
}

func TestSQLiteDatabase_BackupTo(t *testing.T) {
	db := newTestDB(t)
	createSession(t, db, "s-1", "/r", model.SessionComplete, 0)

	dest := filepath.Join(t.TempDir(), "backup.db")
	if err := db.BackupTo(dest); err != nil {
		t.Fatalf("BackupTo() error = %v", err)
	}

	conn, err := sql.Open("sqlite3", dest)
	if err != nil {
		t.Fatalf("opening backup: %v", err)
	}
	defer conn.Close()

	copied := NewSQLiteDatabaseFromDB(conn)
	s, err := copied.FindSession("s-1")
	if err != nil {
		t.Fatalf("FindSession() on backup error = %v", err)
	}
	if s == nil {
		t.Error("backup is missing session s-1")
	}
}
