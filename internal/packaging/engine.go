// Package packaging implements the producer's archive+split engine: given
// a completed torrent's source path, it normalizes permissions, tars the
// source, splits the tar into checksummed chunks, and records a manifest
// of the emitted chunks next to them so the HTTP surface can list a
// torrent's package files without re-hashing on every request.
package packaging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/arlowood/torrentship/internal/archive"
)

// manifestName is the sidecar file recording a torrent's emitted chunks.
// The packaging engine itself touches no database (per its no-DB-access
// contract); this file is the producer API's only source of truth for
// what a torrent's package files are.
const manifestName = "manifest.json"

// ErrTorrentNotFound is returned when a requested source path, or a
// previously-packaged torrent's manifest, does not exist.
type ErrTorrentNotFound struct {
	Name string
}

func (e *ErrTorrentNotFound) Error() string {
	return fmt.Sprintf("packaging: torrent %q not found", e.Name)
}

// Engine packages completed torrents found under SourceDir into chunk
// files under OutputDir/<name>/.
type Engine struct {
	SourceDir       string
	OutputDir       string
	MinChunkSize    int64
	MaxPackageFiles int
}

// Package archives and splits the torrent named name (a file or directory
// directly under SourceDir), writing chunks and a manifest to
// OutputDir/<name>/, and returns the emitted chunks.
func (e *Engine) Package(name string) ([]archive.Chunk, error) {
	sourcePath := filepath.Join(e.SourceDir, name)
	if _, err := os.Stat(sourcePath); os.IsNotExist(err) {
		return nil, &ErrTorrentNotFound{Name: name}
	} else if err != nil {
		return nil, err
	}

	if err := archive.NormalizePermissions(sourcePath); err != nil {
		return nil, err
	}

	destDir := filepath.Join(e.OutputDir, name)
	if err := os.MkdirAll(destDir, archive.DirMode); err != nil {
		return nil, err
	}

	archivePath := filepath.Join(destDir, name+".tar")
	if err := archive.CreateTar(archivePath, sourcePath, name); err != nil {
		return nil, err
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, err
	}
	chunkSize := archive.EffectiveChunkSize(info.Size(), e.MinChunkSize, e.MaxPackageFiles)

	chunks, err := archive.Split(archivePath, destDir, name+".tar", chunkSize, e.MaxPackageFiles)
	if err != nil {
		return nil, err
	}

	if err := writeManifest(destDir, chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

// Names lists torrents this engine has already packaged (every
// subdirectory of OutputDir carrying a manifest).
func (e *Engine) Names() ([]string, error) {
	entries, err := os.ReadDir(e.OutputDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(e.OutputDir, entry.Name(), manifestName)); err == nil {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// Manifest returns the recorded chunks for a previously-packaged torrent,
// or ErrTorrentNotFound if it has none.
func (e *Engine) Manifest(name string) ([]archive.Chunk, error) {
	path := filepath.Join(e.OutputDir, name, manifestName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &ErrTorrentNotFound{Name: name}
	}
	if err != nil {
		return nil, err
	}
	var chunks []archive.Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

// ChunkPath returns the on-disk path of one chunk file within torrent
// name's output directory.
func (e *Engine) ChunkPath(name, filename string) string {
	return filepath.Join(e.OutputDir, name, filename)
}

func writeManifest(destDir string, chunks []archive.Chunk) error {
	data, err := json.Marshal(chunks)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(destDir, manifestName), data, archive.FileMode)
}
