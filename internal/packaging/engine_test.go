package packaging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPackageThenListAndManifest(t *testing.T) {
	dir := t.TempDir()
	sourceDir := filepath.Join(dir, "source")
	outputDir := filepath.Join(dir, "output")
	if err := os.MkdirAll(sourceDir, 0o755); err != nil {
		t.Fatal(err)
	}

	content := make([]byte, 123*1024)
	for i := range content {
		content[i] = byte(i)
	}
	torrentDir := filepath.Join(sourceDir, "File1")
	if err := os.MkdirAll(torrentDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(torrentDir, "payload.bin"), content, 0o644); err != nil {
		t.Fatal(err)
	}

	e := &Engine{SourceDir: sourceDir, OutputDir: outputDir, MinChunkSize: 10 * 1024, MaxPackageFiles: 1000}
	chunks, err := e.Package("File1")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}

	names, err := e.Names()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "File1" {
		t.Fatalf("unexpected names: %v", names)
	}

	manifest, err := e.Manifest("File1")
	if err != nil {
		t.Fatal(err)
	}
	if len(manifest) != len(chunks) {
		t.Fatalf("manifest has %d chunks, expected %d", len(manifest), len(chunks))
	}
	for i := range manifest {
		if manifest[i] != chunks[i] {
			t.Fatalf("manifest chunk %d = %+v, expected %+v", i, manifest[i], chunks[i])
		}
	}
}

func TestPackageUnknownTorrentReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	e := &Engine{SourceDir: filepath.Join(dir, "source"), OutputDir: filepath.Join(dir, "output"), MinChunkSize: 1024, MaxPackageFiles: 10}
	_, err := e.Package("missing")
	if _, ok := err.(*ErrTorrentNotFound); !ok {
		t.Fatalf("expected ErrTorrentNotFound, got %v", err)
	}
}

func TestManifestUnknownTorrentReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	e := &Engine{SourceDir: dir, OutputDir: dir}
	_, err := e.Manifest("missing")
	if _, ok := err.(*ErrTorrentNotFound); !ok {
		t.Fatalf("expected ErrTorrentNotFound, got %v", err)
	}
}
