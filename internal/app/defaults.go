package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths are the locations fsnap uses before a config file has been read.
type Paths struct {
	ConfigPath string // the fsnap.toml to read or initialize
	BaseDir    string // parent of the catalog, vault, keys and logs
}

// LogDir is where operation logs are written.
func (p Paths) LogDir() string {
	return filepath.Join(p.BaseDir, "log")
}

// GetDefaults resolves Paths from the process environment.
//
// The config file is FSNAP_CONFIG_PATH, else $XDG_CONFIG_HOME/fsnap/fsnap.toml,
// else ~/.config/fsnap/fsnap.toml. The base directory is FSNAP_HOME, else
// $XDG_DATA_HOME/fsnap, else ~/.local/share/fsnap.
func GetDefaults() (Paths, error) {
	return resolvePaths(os.Getenv, os.UserHomeDir)
}

func resolvePaths(getenv func(string) string, home func() (string, error)) (Paths, error) {
	var p Paths

	// The home directory is only needed when some variable is unset.
	homeDir := func() (string, error) {
		dir, err := home()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return dir, nil
	}

	switch {
	case getenv("FSNAP_CONFIG_PATH") != "":
		p.ConfigPath = getenv("FSNAP_CONFIG_PATH")
	case getenv("XDG_CONFIG_HOME") != "":
		p.ConfigPath = filepath.Join(getenv("XDG_CONFIG_HOME"), "fsnap", "fsnap.toml")
	default:
		dir, err := homeDir()
		if err != nil {
			return Paths{}, err
		}
		p.ConfigPath = filepath.Join(dir, ".config", "fsnap", "fsnap.toml")
	}

	switch {
	case getenv("FSNAP_HOME") != "":
		p.BaseDir = getenv("FSNAP_HOME")
	case getenv("XDG_DATA_HOME") != "":
		p.BaseDir = filepath.Join(getenv("XDG_DATA_HOME"), "fsnap")
	default:
		dir, err := homeDir()
		if err != nil {
			return Paths{}, err
		}
		p.BaseDir = filepath.Join(dir, ".local", "share", "fsnap")
	}

	return p, nil
}
