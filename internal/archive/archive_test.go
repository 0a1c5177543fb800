package archive

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/arlowood/torrentship/internal/hashutil"
)

func TestEffectiveChunkSizeBoundaries(t *testing.T) {
	const mib = 1024 * 1024
	const kib = 1024
	const gib = 1024 * 1024 * 1024

	cases := []struct {
		name     string
		archive  int64
		min      int64
		max      int
		expected int64
	}{
		{"under threshold uses min", 123 * mib, 10 * mib, 1000, 10 * mib},
		{"270 GiB falls back", 270 * int64(gib), 10 * mib, 1000, 290200492},
		{"12GiB+34MiB+56KiB falls back", 12*int64(gib) + 34*mib + 56*kib, 10 * mib, 1000, 12933544},
		{"123KiB at max=1000 uses min", 123 * kib, 10 * kib, 1000, 10 * kib},
		{"123KiB at max=6 falls back", 123 * kib, 10 * kib, 6, 25190},
		{"zero archive", 0, 10 * mib, 1000, 0},
	}

	for _, c := range cases {
		got := EffectiveChunkSize(c.archive, c.min, c.max)
		if got != c.expected {
			t.Errorf("%s: EffectiveChunkSize(%d, %d, %d) = %d, want %d",
				c.name, c.archive, c.min, c.max, got, c.expected)
		}
	}
}

func TestSplitLastChunkShort(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "src.tar")
	total := 123 * 1024
	if err := os.WriteFile(archivePath, make([]byte, total), 0o664); err != nil {
		t.Fatal(err)
	}

	chunks, err := Split(archivePath, dir, "src.tar", 10*1024, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 13 {
		t.Fatalf("expected 13 chunks, got %d", len(chunks))
	}
	last := chunks[len(chunks)-1]
	if last.Filesize != 3*1024 {
		t.Fatalf("expected last chunk of 3KiB, got %d", last.Filesize)
	}
	if _, err := os.Stat(archivePath); !os.IsNotExist(err) {
		t.Fatal("expected archive to be removed after split")
	}
}

func TestSplitMaxSixProducesFiveChunksAndTail(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "src.tar")
	total := 123 * 1024
	if err := os.WriteFile(archivePath, make([]byte, total), 0o664); err != nil {
		t.Fatal(err)
	}

	chunkSize := EffectiveChunkSize(int64(total), 10*1024, 6)
	chunks, err := Split(archivePath, dir, "src.tar", chunkSize, 6)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 6 {
		t.Fatalf("expected 6 chunks (5 full + tail), got %d", len(chunks))
	}
	for i, c := range chunks[:5] {
		if c.Filesize != 25190 {
			t.Fatalf("chunk %d: expected 25190 bytes, got %d", i, c.Filesize)
		}
	}
	if chunks[5].Filesize != 2 {
		t.Fatalf("expected 2-byte tail, got %d", chunks[5].Filesize)
	}
}

func TestSplitAbortsOverMaxPackageFiles(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "src.tar")
	if err := os.WriteFile(archivePath, make([]byte, 100), 0o664); err != nil {
		t.Fatal(err)
	}

	_, err := Split(archivePath, dir, "src.tar", 10, 3)
	if err == nil {
		t.Fatal("expected ErrTooManyChunks")
	}
	if _, ok := err.(*ErrTooManyChunks); !ok {
		t.Fatalf("expected *ErrTooManyChunks, got %T", err)
	}
}

func TestSplitZeroByteArchiveEmitsNothing(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "src.tar")
	if err := os.WriteFile(archivePath, nil, 0o664); err != nil {
		t.Fatal(err)
	}

	chunkSize := EffectiveChunkSize(0, 10*1024, 1000)
	chunks, err := Split(archivePath, dir, "src.tar", chunkSize, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %d", len(chunks))
	}
}

func TestCreateTarSplitJoinRoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	content := make([]byte, 200*1024)
	for i := range content {
		content[i] = byte(i % 251)
	}
	srcFile := filepath.Join(srcDir, "payload.bin")
	if err := os.WriteFile(srcFile, content, 0o664); err != nil {
		t.Fatal(err)
	}
	wantSum, err := hashutil.SHA256File(srcFile)
	if err != nil {
		t.Fatal(err)
	}

	outDir := t.TempDir()
	archivePath := filepath.Join(outDir, "payload.tar")
	if err := CreateTar(archivePath, srcFile, "payload.bin"); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	chunkSize := EffectiveChunkSize(info.Size(), 50*1024, 1000)
	chunks, err := Split(archivePath, outDir, "payload.tar", chunkSize, 1000)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range chunks {
		ok, err := VerifyFile(filepath.Join(outDir, c.Filename), c.Filesize, c.SHA256)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatalf("chunk %s failed verification", c.Filename)
		}
	}

	joined := filepath.Join(outDir, "rejoined.tar")
	names := make([]string, len(chunks))
	for i, c := range chunks {
		names[i] = c.Filename
	}
	if err := Join(joined, outDir, names); err != nil {
		t.Fatal(err)
	}

	extractDir := t.TempDir()
	if err := extractTar(joined, extractDir); err != nil {
		t.Fatal(err)
	}
	gotSum, err := hashutil.SHA256File(filepath.Join(extractDir, "payload.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if gotSum != wantSum {
		t.Fatalf("extracted file sha256 %s != original %s", gotSum, wantSum)
	}
}

func extractTar(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		target := filepath.Join(destDir, hdr.Name)
		if hdr.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o775); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o775); err != nil {
			return err
		}
		out, err := os.Create(target)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return err
		}
		out.Close()
	}
}
