package pathmgr

import (
	"os"
	"path/filepath"
	"testing"
)

func testManager(t *testing.T, base string) *Manager {
	t.Helper()
	uid, gid := os.Getuid(), os.Getgid()
	return &Manager{
		PackageFilesDir: DirConfig{Path: filepath.Join(base, "files"), UID: uid, GID: gid, DMode: 0o775, FMode: 0o664},
		UnsortedDir:     DirConfig{Path: filepath.Join(base, "unsorted"), UID: uid, GID: gid, DMode: 0o775, FMode: 0o664},
	}
}

func TestParseDirConfig(t *testing.T) {
	u, err := userLookupSelf(t)
	if err != nil {
		t.Skip("no resolvable current user name:", err)
	}
	line := u.username + "," + u.groupname + ",0775,0664"
	cfg, err := ParseDirConfig("/some/path," + line)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Path != "/some/path" {
		t.Fatalf("unexpected path: %s", cfg.Path)
	}
	if cfg.DMode != 0o775 || cfg.FMode != 0o664 {
		t.Fatalf("unexpected modes: %o %o", cfg.DMode, cfg.FMode)
	}
}

func TestParseDirConfigMalformed(t *testing.T) {
	if _, err := ParseDirConfig("just,two"); err == nil {
		t.Fatal("expected error for malformed config line")
	}
}

func TestPackageFilesLayout(t *testing.T) {
	base := t.TempDir()
	m := testManager(t, base)

	dir, err := m.CreatePackageFilesDir("MyTorrent")
	if err != nil {
		t.Fatal(err)
	}
	if dir != filepath.Join(base, "files", "MyTorrent") {
		t.Fatalf("unexpected dir: %s", dir)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatal(err)
	}

	archivePath := m.PackageArchivePath("MyTorrent")
	if archivePath != filepath.Join(dir, "MyTorrent.tar") {
		t.Fatalf("unexpected archive path: %s", archivePath)
	}

	chunkPath := m.PackageFilePath("MyTorrent", "MyTorrent.tar.0000")
	if chunkPath != filepath.Join(dir, "MyTorrent.tar.0000") {
		t.Fatalf("unexpected chunk path: %s", chunkPath)
	}
}

func TestChownModPackageOutputDirRecursive(t *testing.T) {
	base := t.TempDir()
	m := testManager(t, base)

	outDir, err := m.CreatePackageOutputDir("MyTorrent")
	if err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(outDir, "sub")
	if err := os.MkdirAll(nested, 0o700); err != nil {
		t.Fatal(err)
	}
	filePath := filepath.Join(nested, "file.bin")
	if err := os.WriteFile(filePath, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := m.ChownModPackageOutputDir("MyTorrent"); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(filePath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o664 {
		t.Fatalf("expected file mode 0664, got %o", info.Mode().Perm())
	}
}

type selfUser struct {
	username  string
	groupname string
}

func userLookupSelf(t *testing.T) (selfUser, error) {
	t.Helper()
	name := os.Getenv("USER")
	if name == "" {
		return selfUser{}, os.ErrInvalid
	}
	return selfUser{username: name, groupname: name}, nil
}
