package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"fsnap-go/internal/config"
	"fsnap-go/internal/database"
	"fsnap-go/internal/encryption"
	"fsnap-go/internal/fs"
	"fsnap-go/internal/fsnap"
	"fsnap-go/internal/model"
	"fsnap-go/internal/vault"
)

// CatalogKey is the vault key the session catalog is mirrored to after a
// mutating operation.
const CatalogKey = "catalog/" + database.DatabaseFileName

// ErrEncryptionDisabled is returned by key operations when the config selects
// no encryption.
var ErrEncryptionDisabled = errors.New("encryption is disabled in config")

// ErrKeysMissing is returned by Capture when encryption is configured but no
// key pair exists yet.
var ErrKeysMissing = errors.New("encryption keys not found: run 'fsnap keys init' first")

// FsnapApp is the application layer between the CLI and FsnapService.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and mirrors the catalog on Close.
type FsnapApp struct {
	cfg       *config.Config
	db        *database.SQLiteDatabase
	vault     fsnap.Vault
	fsmgr     *fs.OSFilesystemManager
	encryptor fsnap.Encryptor
	service   *fsnap.FsnapService
	op        *Operation
	logger    *slogAdapter
	logFile   *os.File
	closed    bool
}

// NewFsnapApp creates a fully wired FsnapApp from the given config.
// Log lines go to the log directory and, when stderr is non-nil, to stderr.
// The caller must call Close when done.
func NewFsnapApp(ctx context.Context, cfg *config.Config, op *Operation, stderr io.Writer) (*FsnapApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	fsmgr := fs.NewOSFilesystemManager(cfg.Filesystem.Ignore, cfg.ChunkSize)

	v, err := vault.NewVaultFromConfig(ctx, cfg.Vaults[0])
	if err != nil {
		return nil, fmt.Errorf("creating vault: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	logger, logFile, err := newLogger(cfg.LogDir, op.ID, level, stderr)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	adapter := &slogAdapter{l: logger}

	svc := fsnap.NewFsnapService(db, v, fsmgr, enc, adapter, fsnap.RealClock{}, fsnap.UUIDGenerator{})
	adapter.Debug("operation started", "op", op.Name, "params", op.Parameters)

	return &FsnapApp{
		cfg:       cfg,
		db:        db,
		vault:     v,
		fsmgr:     fsmgr,
		encryptor: enc,
		service:   svc,
		op:        op,
		logger:    adapter,
		logFile:   logFile,
	}, nil
}

// track records a failure on the operation and passes err through.
func (a *FsnapApp) track(err error) error {
	if err != nil {
		a.op.Fail()
	}
	return err
}

// Scan resolves rawRoot and lists the files a capture would include.
func (a *FsnapApp) Scan(ctx context.Context, rawRoot string) ([]*fsnap.File, error) {
	root, err := a.fsmgr.Resolve(rawRoot)
	if err != nil {
		return nil, a.track(fmt.Errorf("resolving path: %w", err))
	}
	files, err := a.service.Scan(ctx, root)
	return files, a.track(err)
}

// Capture resolves rawRoot and stores a new session of every file under it.
func (a *FsnapApp) Capture(ctx context.Context, rawRoot string) (*model.Session, error) {
	if a.encryptor != nil && !a.encryptor.IsConfigured() {
		return nil, a.track(ErrKeysMissing)
	}
	root, err := a.fsmgr.Resolve(rawRoot)
	if err != nil {
		return nil, a.track(fmt.Errorf("resolving path: %w", err))
	}
	session, err := a.service.Capture(ctx, root)
	return session, a.track(err)
}

// Status compares a session against the working tree. rawRoot selects the
// latest session when sessionID is empty.
func (a *FsnapApp) Status(ctx context.Context, rawRoot, sessionID, passphrase string) (*model.Session, []*fsnap.FileStatus, error) {
	root, err := filepath.Abs(rawRoot)
	if err != nil {
		return nil, nil, a.track(fmt.Errorf("resolving path: %w", err))
	}
	dc, err := a.unlock(passphrase)
	if err != nil {
		return nil, nil, a.track(err)
	}
	session, statuses, err := a.service.Status(ctx, root, sessionID, dc)
	return session, statuses, a.track(err)
}

// Revert writes a session's snapshots back over changed or missing files.
// The root does not need to exist on disk.
func (a *FsnapApp) Revert(ctx context.Context, rawRoot, sessionID, passphrase string) ([]string, error) {
	root, err := filepath.Abs(rawRoot)
	if err != nil {
		return nil, a.track(fmt.Errorf("resolving path: %w", err))
	}
	dc, err := a.unlock(passphrase)
	if err != nil {
		return nil, a.track(err)
	}
	reverted, err := a.service.Revert(ctx, root, sessionID, dc)
	return reverted, a.track(err)
}

// History returns the most recent sessions, newest first.
func (a *FsnapApp) History(limit int) ([]*model.Session, error) {
	sessions, err := a.service.History(limit)
	return sessions, a.track(err)
}

// Drop deletes a session and its snapshots.
func (a *FsnapApp) Drop(sessionID string) error {
	return a.track(a.service.Drop(sessionID))
}

// NeedsPassphrase reports whether reading snapshots requires a passphrase.
func (a *FsnapApp) NeedsPassphrase() bool {
	_, ok := a.encryptor.(*encryption.AgeEncryptor)
	return ok
}

// SetupKeys generates the encryption key pair protected by passphrase.
func (a *FsnapApp) SetupKeys(passphrase string) error {
	if a.encryptor == nil {
		return a.track(ErrEncryptionDisabled)
	}
	if err := a.encryptor.Setup(passphrase); err != nil {
		return a.track(fmt.Errorf("setting up keys: %w", err))
	}
	a.logger.Info("encryption keys created")
	return nil
}

// CheckVault verifies that the configured vault is reachable.
func (a *FsnapApp) CheckVault() error {
	if err := a.vault.ValidateSetup(); err != nil {
		return a.track(fmt.Errorf("vault %q: %w", a.cfg.Vaults[0].Name, err))
	}
	return nil
}

// unlock returns a DecryptionContext when encryption is configured. Without
// a passphrase only plaintext snapshots can be read.
func (a *FsnapApp) unlock(passphrase string) (fsnap.DecryptionContext, error) {
	if a.encryptor == nil || (a.NeedsPassphrase() && passphrase == "") {
		return nil, nil
	}
	dc, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return nil, fmt.Errorf("unlocking private key: %w", err)
	}
	return dc, nil
}

// Close finalizes the operation and closes all resources. It is safe to call
// more than once.
// A successful mutating operation mirrors the catalog to the vault first.
func (a *FsnapApp) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	var firstErr error

	if a.op.Mutating && a.op.Succeeded() {
		if err := a.mirrorCatalog(); err != nil {
			firstErr = err
		}
	}

	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	a.logger.Debug("operation finished", "op", a.op.Name, "status", a.op.Status)
	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}

// mirrorCatalog snapshots the database into a temp file and stores it in
// the vault under CatalogKey.
func (a *FsnapApp) mirrorCatalog() error {
	tmpDir, err := os.MkdirTemp("", "fsnap-catalog-*")
	if err != nil {
		return fmt.Errorf("creating temp dir for catalog backup: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	// VACUUM INTO refuses to overwrite, so the target must not exist yet.
	tmpPath := filepath.Join(tmpDir, database.DatabaseFileName)
	if err := a.db.BackupTo(tmpPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("opening catalog backup: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat catalog backup: %w", err)
	}

	if err := a.vault.PutSnapshot(CatalogKey, f, info.Size()); err != nil {
		return fmt.Errorf("uploading catalog to vault: %w", err)
	}
	a.logger.Debug("catalog mirrored", "key", CatalogKey, "size", info.Size())
	return nil
}
