// Package pathmgr computes the deterministic on-disk layout for a
// torrent's package files and extracted output, and enforces the
// configured ownership/mode on directories it creates.
package pathmgr

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
)

// DirConfig describes one logical directory line from config: its base
// path, the owning user/group, and the mode applied to directories
// (dmode) and files (fmode) under it.
type DirConfig struct {
	Path  string
	UID   int
	GID   int
	DMode os.FileMode
	FMode os.FileMode
}

// ParseDirConfig parses a "path,owner,group,dmode,fmode" config line, the
// same shape used by every path manager section.
func ParseDirConfig(line string) (DirConfig, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 5 {
		return DirConfig{}, fmt.Errorf("pathmgr: malformed path config line: %q", line)
	}

	uid, err := uidFromName(parts[1])
	if err != nil {
		return DirConfig{}, err
	}
	gid, err := gidFromName(parts[2])
	if err != nil {
		return DirConfig{}, err
	}
	dmode, err := strconv.ParseUint(parts[3], 8, 32)
	if err != nil {
		return DirConfig{}, fmt.Errorf("pathmgr: bad dmode %q: %w", parts[3], err)
	}
	fmode, err := strconv.ParseUint(parts[4], 8, 32)
	if err != nil {
		return DirConfig{}, fmt.Errorf("pathmgr: bad fmode %q: %w", parts[4], err)
	}

	return DirConfig{
		Path:  parts[0],
		UID:   uid,
		GID:   gid,
		DMode: os.FileMode(dmode),
		FMode: os.FileMode(fmode),
	}, nil
}

func uidFromName(name string) (int, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return 0, fmt.Errorf("pathmgr: unknown user %q: %w", name, err)
	}
	return strconv.Atoi(u.Uid)
}

func gidFromName(name string) (int, error) {
	g, err := user.LookupGroup(name)
	if err != nil {
		return 0, fmt.Errorf("pathmgr: unknown group %q: %w", name, err)
	}
	return strconv.Atoi(g.Gid)
}

// Manager exposes the producer/consumer path layout: where package file
// chunks, the transient joined archive, and extracted output live for a
// given torrent name.
type Manager struct {
	PackageFilesDir DirConfig
	UnsortedDir     DirConfig
}

// PackageFilesDirPath returns the directory holding a torrent's chunk files:
// <base>/<name>/
func (m *Manager) PackageFilesDirPath(name string) string {
	return filepath.Join(m.PackageFilesDir.Path, name)
}

// CreatePackageFilesDir ensures the torrent's chunk directory exists with
// the configured owner/group/mode.
func (m *Manager) CreatePackageFilesDir(name string) (string, error) {
	dir := m.PackageFilesDirPath(name)
	if err := mkdirChownMod(dir, m.PackageFilesDir.UID, m.PackageFilesDir.GID, m.PackageFilesDir.DMode); err != nil {
		return "", &Error{Op: "create_package_files_dir", Err: err}
	}
	return dir, nil
}

// PackageFilePath returns the path to one chunk file:
// <base>/<name>/<name>.tar.NNNN (filename is the chunk's own name).
func (m *Manager) PackageFilePath(name, filename string) string {
	return filepath.Join(m.PackageFilesDirPath(name), filename)
}

// PackageArchivePath returns the path to the transient joined archive:
// <base>/<name>/<name>.tar
func (m *Manager) PackageArchivePath(name string) string {
	return filepath.Join(m.PackageFilesDirPath(name), name+".tar")
}

// ChownModPackageFile applies the configured file owner/group/mode to a
// single downloaded chunk.
func (m *Manager) ChownModPackageFile(name, filename string) error {
	path := m.PackageFilePath(name, filename)
	if err := os.Chown(path, m.PackageFilesDir.UID, m.PackageFilesDir.GID); err != nil {
		return &Error{Op: "chownmod_package_file", Err: err}
	}
	if err := os.Chmod(path, m.PackageFilesDir.FMode); err != nil {
		return &Error{Op: "chownmod_package_file", Err: err}
	}
	return nil
}

// PackageOutputDir returns the extracted-output directory for a torrent:
// <unsorted-base>/<name>/
func (m *Manager) PackageOutputDir(name string) string {
	return filepath.Join(m.UnsortedDir.Path, name)
}

// CreatePackageOutputDir ensures the extracted-output directory exists
// with the configured owner/group/mode.
func (m *Manager) CreatePackageOutputDir(name string) (string, error) {
	dir := m.PackageOutputDir(name)
	if err := mkdirChownMod(dir, m.UnsortedDir.UID, m.UnsortedDir.GID, m.UnsortedDir.DMode); err != nil {
		return "", &Error{Op: "create_package_output_dir", Err: err}
	}
	return dir, nil
}

// ChownModPackageOutputDir recursively applies dmode to directories and
// fmode to files under the torrent's extracted output.
func (m *Manager) ChownModPackageOutputDir(name string) error {
	dir := m.PackageOutputDir(name)
	if err := chownModRecursive(dir, m.UnsortedDir.UID, m.UnsortedDir.GID, m.UnsortedDir.DMode, m.UnsortedDir.FMode); err != nil {
		return &Error{Op: "chownmod_package_output_dir", Err: err}
	}
	return nil
}

// Error wraps an underlying filesystem error with the operation that
// produced it, surfaced to the worker that records it on the entity.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("pathmgr: %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

func mkdirChownMod(dir string, uid, gid int, mode os.FileMode) error {
	if err := os.MkdirAll(dir, mode); err != nil {
		return err
	}
	if err := os.Chown(dir, uid, gid); err != nil {
		return err
	}
	return os.Chmod(dir, mode)
}

func chownModRecursive(root string, uid, gid int, dmode, fmode os.FileMode) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := os.Chown(path, uid, gid); err != nil {
			return err
		}
		if info.IsDir() {
			return os.Chmod(path, dmode)
		}
		return os.Chmod(path, fmode)
	})
}
