package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Paths resolves every directory the toolchain writes to. All output for a
// state lands under OutputDir/{state}/ so repeated runs for different
// states never collide.
type Paths struct {
	BaseDir      string
	DataDir      string
	RawDir       string
	OutputDir    string
	LogsDir      string
	ReferenceDir string
	ArchiveFile  string
}

// NewPaths builds a Paths from configuration, resolving relative entries
// against the base directory (working directory when unset).
func NewPaths(cfg PathsConfig) (*Paths, error) {
	base := cfg.BaseDir
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to determine working directory: %w", err)
		}
		base = wd
	}

	resolve := func(p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}

	return &Paths{
		BaseDir:      base,
		DataDir:      resolve(cfg.DataDir),
		RawDir:       resolve(filepath.Join(cfg.DataDir, "raw")),
		OutputDir:    resolve(cfg.OutputDir),
		LogsDir:      resolve(cfg.LogsDir),
		ReferenceDir: resolve(cfg.ReferenceDir),
		ArchiveFile:  resolve(cfg.ArchiveFile),
	}, nil
}

// EnsureDirectories creates every directory the toolchain needs.
func (p *Paths) EnsureDirectories() error {
	dirs := []string{p.DataDir, p.RawDir, p.OutputDir, p.LogsDir, p.ReferenceDir, filepath.Dir(p.ArchiveFile)}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// StateOutputDir returns the per-state output directory, creating it if
// needed. State codes are lowercased for directory names, matching the
// output/{state}/ layout.
func (p *Paths) StateOutputDir(stateCode string) (string, error) {
	dir := filepath.Join(p.OutputDir, strings.ToLower(stateCode))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create state output directory %s: %w", dir, err)
	}
	return dir, nil
}

// OutputPath joins a per-state output file name.
func (p *Paths) OutputPath(stateCode, name string) string {
	return filepath.Join(p.OutputDir, strings.ToLower(stateCode), name)
}

// LogPath returns the path of a named log file under the logs directory.
func (p *Paths) LogPath(name string) string {
	return filepath.Join(p.LogsDir, name)
}

// ReferencePath returns the path of a named reference data file.
func (p *Paths) ReferencePath(name string) string {
	return filepath.Join(p.ReferenceDir, name)
}
