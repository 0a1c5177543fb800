// Package archive implements the producer's archive-then-split pipeline:
// normalizing source permissions, taring a completed torrent, splitting the
// resulting archive into fixed-size checksummed chunks, and (on the
// consumer side) joining chunks back into an archive for extraction.
package archive

import (
	"archive/tar"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/arlowood/torrentship/internal/hashutil"
)

// ioBlockSize is the default read block size while streaming the archive
// during splitting.
const ioBlockSize = 16 * 1024

// DirMode and FileMode are the permissions normalized onto a source tree
// before it is archived.
const (
	DirMode  os.FileMode = 0o775
	FileMode os.FileMode = 0o664
)

// Chunk describes one emitted package file: its name within the output
// directory, its size, and its SHA-256 hex digest computed during the
// write (single pass, no second read).
type Chunk struct {
	Filename string
	Filesize int64
	SHA256   string
}

// NormalizePermissions walks sourcePath (file or directory) and sets
// directory/file permissions to DirMode/FileMode respectively, including
// the root itself.
func NormalizePermissions(sourcePath string) error {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return err
	}
	if info.IsDir() {
		if err := os.Chmod(sourcePath, DirMode); err != nil {
			return err
		}
	} else {
		if err := os.Chmod(sourcePath, FileMode); err != nil {
			return err
		}
		return nil
	}

	return filepath.Walk(sourcePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == sourcePath {
			return nil
		}
		if info.IsDir() {
			return os.Chmod(path, DirMode)
		}
		return os.Chmod(path, FileMode)
	})
}

// CreateTar archives sourcePath into archivePath, storing entries with
// relative paths rooted at baseName (no leading slashes).
func CreateTar(archivePath, sourcePath, baseName string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer out.Close()

	tw := tar.NewWriter(out)
	defer tw.Close()

	return filepath.Walk(sourcePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(sourcePath, path)
		if err != nil {
			return err
		}
		arcname := baseName
		if rel != "." {
			arcname = filepath.Join(baseName, rel)
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = arcname

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
}

// EffectiveChunkSize computes the chunk size used to split an archive of
// archiveSize bytes given minSize and maxFiles. It returns minSize unless
// archiveSize/minSize exceeds maxFiles, in which case it falls back to
// archiveSize/(maxFiles-1) (integer division). The remainder of that
// division is emitted as a short trailing chunk, so the chunk count can
// reach maxFiles: 123 KiB at maxFiles=6 gives five 25190-byte chunks and a
// 2-byte tail. Split's maxPackageFiles cap rejects anything beyond that.
// Returns 0 for a zero-length archive (caller must treat 0 as
// "emit nothing").
func EffectiveChunkSize(archiveSize, minSize int64, maxFiles int) int64 {
	if archiveSize == 0 {
		return 0
	}
	if minSize <= 0 || maxFiles <= 1 {
		return minSize
	}
	if archiveSize/minSize > int64(maxFiles) {
		return archiveSize / int64(maxFiles-1)
	}
	return minSize
}

// ErrTooManyChunks is returned when splitting would emit more than
// maxPackageFiles chunks — a safety cap, not a recoverable condition.
type ErrTooManyChunks struct {
	Max int
}

func (e *ErrTooManyChunks) Error() string {
	return fmt.Sprintf("archive: split would exceed max package file count %d", e.Max)
}

// Split reads archivePath sequentially in ioBlockSize blocks and emits
// fixed-size chunk files named "<baseName>.%04d" into outputDir, hashing
// each chunk incrementally as it is written. The final chunk may be
// shorter than chunkSize; if it would be exactly empty it is not emitted.
// Split aborts with ErrTooManyChunks if the count would exceed
// maxPackageFiles, and removes archivePath on success.
func Split(archivePath, outputDir, baseName string, chunkSize int64, maxPackageFiles int) ([]Chunk, error) {
	if chunkSize <= 0 {
		// Zero-byte archive (or degenerate chunk size): nothing to emit.
		os.Remove(archivePath)
		return nil, nil
	}

	in, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	var chunks []Chunk
	buf := make([]byte, ioBlockSize)
	part := 0
	var cur *os.File
	var curHash = sha256.New()
	var curSize int64

	closeCurrent := func() error {
		if cur == nil {
			return nil
		}
		name := cur.Name()
		if err := cur.Close(); err != nil {
			return err
		}
		if curSize == 0 {
			return os.Remove(name)
		}
		chunks = append(chunks, Chunk{
			Filename: filepath.Base(name),
			Filesize: curSize,
			SHA256:   hex.EncodeToString(curHash.Sum(nil)),
		})
		return nil
	}

	openNext := func() error {
		if len(chunks)+1 > maxPackageFiles {
			return &ErrTooManyChunks{Max: maxPackageFiles}
		}
		filename := fmt.Sprintf("%s.%04d", baseName, part)
		f, err := os.Create(filepath.Join(outputDir, filename))
		if err != nil {
			return err
		}
		cur = f
		curHash = sha256.New()
		curSize = 0
		part++
		return nil
	}

	if err := openNext(); err != nil {
		return nil, err
	}

	for {
		n, readErr := in.Read(buf)
		off := 0
		for off < n {
			if curSize >= chunkSize {
				if err := closeCurrent(); err != nil {
					return nil, err
				}
				if err := openNext(); err != nil {
					return nil, err
				}
			}
			want := chunkSize - curSize
			chunk := buf[off:n]
			if int64(len(chunk)) > want {
				chunk = chunk[:want]
			}
			if _, err := cur.Write(chunk); err != nil {
				return nil, err
			}
			curHash.Write(chunk)
			curSize += int64(len(chunk))
			off += len(chunk)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, readErr
		}
	}

	if err := closeCurrent(); err != nil {
		return nil, err
	}

	if len(chunks) > maxPackageFiles {
		return nil, &ErrTooManyChunks{Max: maxPackageFiles}
	}

	if err := in.Close(); err != nil {
		return nil, err
	}
	if err := os.Remove(archivePath); err != nil {
		return nil, err
	}
	return chunks, nil
}

// Join concatenates sourceDir/filenames, in the given order, into
// outputPath. Callers must pass filenames already sorted ascending (the
// chunk-ordering invariant for extraction).
func Join(outputPath, sourceDir string, filenames []string) error {
	out, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer out.Close()

	for _, name := range filenames {
		if err := appendFile(out, filepath.Join(sourceDir, name)); err != nil {
			return err
		}
	}
	return nil
}

func appendFile(out *os.File, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()
	_, err = io.Copy(out, in)
	return err
}

// ExtractTar unpacks the tar archive at tarPath into destDir, which must
// already exist. Directory entries are created with DirMode; regular
// files are created with their header mode.
func ExtractTar(tarPath, destDir string) error {
	f, err := os.Open(tarPath)
	if err != nil {
		return err
	}
	defer f.Close()

	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		target := filepath.Join(destDir, hdr.Name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, DirMode); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), DirMode); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		}
	}
	return nil
}

// VerifyFile confirms that the file at path has exactly size bytes and
// the given SHA-256 hex digest.
func VerifyFile(path string, size int64, sha256hex string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	if info.Size() != size {
		return false, nil
	}
	sum, err := hashutil.SHA256File(path)
	if err != nil {
		return false, err
	}
	return sum == sha256hex, nil
}
