package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReportsSettledTopLevelEntry(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir)
	if err != nil {
		t.Fatal(err)
	}
	w.debounceTime = 100 * time.Millisecond
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "File1.bin"), []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case name := <-w.NewEntries:
		if name != "File1.bin" {
			t.Fatalf("expected File1.bin, got %q", name)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for settled entry")
	}
}

func TestFirstPathComponent(t *testing.T) {
	rel := filepath.Join("TorrentDir", "nested", "file.mxf")
	if got := firstPathComponent(rel); got != "TorrentDir" {
		t.Fatalf("expected TorrentDir, got %q", got)
	}
	if got := firstPathComponent("File1.bin"); got != "File1.bin" {
		t.Fatalf("expected File1.bin, got %q", got)
	}
}
