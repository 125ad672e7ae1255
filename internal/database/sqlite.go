package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fsnap-go/internal/database/migrations"
	"fsnap-go/internal/fsnap"
	"fsnap-go/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteDatabase implements the Database interface using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase creates a new SQLite database connection.
// path can be a file path or MemoryPath for an in-memory database.
// The schema is not touched; call MigrateUp or CheckMigrations.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db}
}

// OpenConnection opens a SQLite database with foreign keys enforced.
// path can be a file path or MemoryPath for an in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection to :memory: would get its own empty database.
	if path == MemoryPath {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// dsn turns on foreign keys for every connection the pool opens.
func dsn(path string) string {
	return path + "?_foreign_keys=on"
}

// Session operations

func (s *SQLiteDatabase) CreateSession(session *model.Session) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, root, status, created_at, finished_at, file_count)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		session.ID, session.Root, session.Status, session.CreatedAt.UTC(), session.FinishedAt, session.FileCount,
	)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

// FinishSession stamps finished_at and updates session in place.
func (s *SQLiteDatabase) FinishSession(session *model.Session, status string, fileCount int64, at time.Time) error {
	finishedAt := sql.NullTime{Time: at.UTC(), Valid: true}
	res, err := s.db.Exec(
		`UPDATE sessions SET status = ?, file_count = ?, finished_at = ? WHERE id = ?`,
		status, fileCount, finishedAt, session.ID,
	)
	if err != nil {
		return fmt.Errorf("finishing session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finishing session: %w: %s", fsnap.ErrSessionNotFound, session.ID)
	}

	session.Status = status
	session.FileCount = fileCount
	session.FinishedAt = finishedAt
	return nil
}

func (s *SQLiteDatabase) FindSession(id string) (*model.Session, error) {
	row := s.db.QueryRow(
		`SELECT id, root, status, created_at, finished_at, file_count
		 FROM sessions WHERE id = ?`, id)

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding session: %w", err)
	}
	return session, nil
}

func (s *SQLiteDatabase) LatestSession(root string) (*model.Session, error) {
	row := s.db.QueryRow(
		`SELECT id, root, status, created_at, finished_at, file_count
		 FROM sessions WHERE root = ? AND status = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		root, model.SessionComplete)

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding latest session: %w", err)
	}
	return session, nil
}

func (s *SQLiteDatabase) ListSessions(limit int) ([]*model.Session, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.Query(
		`SELECT id, root, status, created_at, finished_at, file_count
		 FROM sessions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return sessions, nil
}

// DeleteSession removes the session row; its file rows go with it via ON DELETE CASCADE.
func (s *SQLiteDatabase) DeleteSession(session *model.Session) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, session.ID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// Session file operations

func (s *SQLiteDatabase) AddSessionFile(file *model.SessionFile) error {
	_, err := s.db.Exec(
		`INSERT INTO session_files (id, session_id, relative_path, size, vault_key, encrypted)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		file.ID, file.SessionID, file.RelativePath, file.Size, file.VaultKey, file.Encrypted,
	)
	if err != nil {
		return fmt.Errorf("adding session file: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindSessionFiles(session *model.Session) ([]*model.SessionFile, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, relative_path, size, vault_key, encrypted
		 FROM session_files WHERE session_id = ? ORDER BY relative_path`, session.ID)
	if err != nil {
		return nil, fmt.Errorf("finding session files: %w", err)
	}
	defer rows.Close()

	var files []*model.SessionFile
	for rows.Next() {
		var f model.SessionFile
		if err := rows.Scan(&f.ID, &f.SessionID, &f.RelativePath, &f.Size, &f.VaultKey, &f.Encrypted); err != nil {
			return nil, fmt.Errorf("scanning session file: %w", err)
		}
		files = append(files, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("finding session files: %w", err)
	}
	return files, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*model.Session, error) {
	var session model.Session
	err := row.Scan(
		&session.ID,
		&session.Root,
		&session.Status,
		&session.CreatedAt,
		&session.FinishedAt,
		&session.FileCount,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Path returns the database file path (or MemoryPath for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// MigrateUp applies any pending schema migrations.
func (s *SQLiteDatabase) MigrateUp() error {
	return migrations.MigrateUp(s.db)
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	_, err := s.db.Exec("VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteDatabase implements fsnap.Database interface
var _ fsnap.Database = (*SQLiteDatabase)(nil)
