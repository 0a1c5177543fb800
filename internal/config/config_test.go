package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arlowood/torrentship/internal/pathmgr"
)

func TestLoadParsesWorkerSectionsAndPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "torrentship.conf")
	contents := `
db_user = svc
db_password = secret
PackageDownloader.num_workers = 8
PackageDownloader.sleep = 0s
CompletedTorrentMonitor.sleep = 15s
PathManager.package_files_dir = /data/chunks,root,root,0775,0664
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Workers["PackageDownloader"].NumWorkers != 8 {
		t.Fatalf("expected 8 downloader workers, got %d", cfg.Workers["PackageDownloader"].NumWorkers)
	}
	if cfg.Workers["CompletedTorrentMonitor"].Sleep != 15*time.Second {
		t.Fatalf("expected 15s sleep, got %v", cfg.Workers["CompletedTorrentMonitor"].Sleep)
	}
	if cfg.Paths.PackageFilesDir != "/data/chunks,root,root,0775,0664" {
		t.Fatalf("unexpected package files dir line: %q", cfg.Paths.PackageFilesDir)
	}

	dc, err := pathmgr.ParseDirConfig(cfg.Paths.PackageFilesDir)
	if err != nil {
		t.Fatal(err)
	}
	if dc.Path != "/data/chunks" || dc.DMode != 0o775 || dc.FMode != 0o664 {
		t.Fatalf("unexpected parsed dir config: %+v", dc)
	}
}

func TestLoadRejectsMalformedPathLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.conf")
	contents := `
db_user = svc
db_password = secret
PathManager.package_files_dir = /just/a/path
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed PathManager line")
	}
}

func TestLoadRequiresDBCredentials(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.conf")
	if err := os.WriteFile(path, []byte(""), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error when db_user/db_password are unset")
	}
}
