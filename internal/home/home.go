// Package home locates the distill home directory: config file,
// local-DefraDB data path. Grounded on the teacher's internal/home,
// renamed from .shelf to .distill and trimmed of the scan-specific
// data subdirectory this system has no use for.
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the distill home directory.
	DefaultDirName = ".distill"
	// DefraDataDirName is the subdirectory the local DefraDB container
	// persists its data under.
	DefraDataDirName = "defradb"
	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Dir represents the distill home directory structure.
type Dir struct {
	path string
}

// New creates a Dir rooted at path. An empty path resolves to
// ~/.distill.
func New(path string) (*Dir, error) {
	if path == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("home: get user home directory: %w", err)
		}
		path = filepath.Join(h, DefaultDirName)
	}
	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string { return d.path }

// DefraDataPath returns the path the local DefraDB container should
// persist its data under.
func (d *Dir) DefraDataPath() string { return filepath.Join(d.path, DefraDataDirName) }

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string { return filepath.Join(d.path, ConfigFileName) }

// EnsureExists creates the home directory and its subdirectories.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.DefraDataPath(), 0o755); err != nil {
		return fmt.Errorf("home: create defradb data directory: %w", err)
	}
	return nil
}

// Exists reports whether the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists reports whether the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
