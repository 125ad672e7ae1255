package database

import (
	"os"
	"path/filepath"
	"testing"

	"fsnap-go/internal/config"
)

func TestNewDatabaseFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.DatabaseConfig
		wantErr bool
	}{
		{name: "memory database", cfg: config.DatabaseConfig{Type: "memory"}},
		{name: "sqlite database", cfg: config.DatabaseConfig{Type: "sqlite", DataDir: t.TempDir()}},
		{name: "sqlite database without data_dir", cfg: config.DatabaseConfig{Type: "sqlite"}, wantErr: true},
		{name: "unknown database type", cfg: config.DatabaseConfig{Type: "unknown"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewDatabaseFromConfig(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Error("NewDatabaseFromConfig() expected error, got nil")
				}
				if got != nil {
					t.Error("NewDatabaseFromConfig() should return nil on error")
					got.Close()
				}
				return
			}

			if err != nil {
				t.Fatalf("NewDatabaseFromConfig() unexpected error: %v", err)
			}
			defer got.Close()

			if err := got.MigrateUp(); err != nil {
				t.Errorf("MigrateUp() error = %v", err)
			}
		})
	}
}

func TestNewDatabaseFromConfig_SQLiteFileLocation(t *testing.T) {
	dataDir := t.TempDir()
	db, err := NewDatabaseFromConfig(config.DatabaseConfig{Type: "sqlite", DataDir: dataDir})
	if err != nil {
		t.Fatalf("NewDatabaseFromConfig() error = %v", err)
	}
	defer db.Close()

	if err := db.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}

	want := filepath.Join(dataDir, DatabaseFileName)
	if db.Path() != want {
		t.Errorf("Path() = %q, want %q", db.Path(), want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}
