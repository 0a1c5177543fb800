package hashutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSHA256FileMatchesBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.bin")
	data := []byte("the quick brown fox jumps over the lazy dog")
	if err := os.WriteFile(path, data, 0o664); err != nil {
		t.Fatal(err)
	}

	fileSum, err := SHA256File(path)
	if err != nil {
		t.Fatal(err)
	}
	bytesSum := SHA256Bytes(data)
	if fileSum != bytesSum {
		t.Fatalf("file sum %s != bytes sum %s", fileSum, bytesSum)
	}
	if len(fileSum) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(fileSum))
	}
}

func TestSHA256FileMissing(t *testing.T) {
	if _, err := SHA256File("/nonexistent/path/to/file"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
