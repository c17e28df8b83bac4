// Package provision ensures the filesystem directories the application needs
// exist with the right permissions before it starts.
package provision

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// PathSpec is one directory to provision: absolute or project-relative path
// plus the permission bits to enforce on it and everything beneath it.
type PathSpec struct {
	Path string
	Mode fs.FileMode
}

// Provisioner creates and permissions a fixed set of directories.
type Provisioner struct {
	paths []PathSpec
}

// New returns a Provisioner for the given paths. Order among the paths is
// irrelevant; none depends on another.
func New(paths ...PathSpec) *Provisioner {
	return &Provisioner{paths: paths}
}

// Ensure creates each path (including intermediate directories) if absent,
// then enforces the permission bits recursively. It is idempotent: a path
// that already exists with the right mode is a no-op success, so calling it
// on every build is itself the recovery mechanism after a partial failure.
func (p *Provisioner) Ensure(ctx context.Context) error {
	for _, spec := range p.paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := ensureOne(spec); err != nil {
			return err
		}
	}
	return nil
}

func ensureOne(spec PathSpec) error {
	if err := os.MkdirAll(spec.Path, spec.Mode); err != nil {
		return fmt.Errorf("creating %s: %w", spec.Path, err)
	}

	// MkdirAll applies the mode only to directories it creates (and umask may
	// mask bits); walk to enforce the exact mode on pre-existing trees too.
	err := filepath.WalkDir(spec.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return os.Chmod(path, spec.Mode)
	})
	if err != nil {
		return fmt.Errorf("setting permissions on %s: %w", spec.Path, err)
	}
	return nil
}
