package workers

import (
	"context"
	"os"

	"github.com/arlowood/torrentship/internal/archive"
	"github.com/arlowood/torrentship/internal/db"
	"github.com/arlowood/torrentship/internal/pathmgr"
	"github.com/arlowood/torrentship/internal/stage"
)

// PackageExtractor consumes torrents at "Extracting": it joins a
// torrent's chunks back into an archive in filename order, extracts it
// into the unsorted output tree, normalizes ownership, and removes the
// chunk directory and the joined archive.
type PackageExtractor struct {
	DB    *db.DB
	Paths *pathmgr.Manager

	Torrents <-chan *db.Torrent
}

func (w *PackageExtractor) Prepare() error { return nil }

func (w *PackageExtractor) Work(ctx context.Context) error {
	t, err := recvTorrent(ctx, w.Torrents)
	if err != nil {
		return err
	}

	if extractErr := w.extract(t); extractErr != nil {
		setTorrentError(w.DB, t, "Extracting", extractErr)
		return nil
	}

	completed := mustNextName(stage.TorrentStages, "Extracting")
	if err := advanceTorrentStage(w.DB, t, completed); err != nil {
		setTorrentError(w.DB, t, "Extracting", err)
	}
	return nil
}

func (w *PackageExtractor) extract(t *db.Torrent) error {
	chunkDir := w.Paths.PackageFilesDirPath(t.Name)
	archivePath := w.Paths.PackageArchivePath(t.Name)

	chunks, err := w.DB.GetPackageFilesByTorrent(t.ID)
	if err != nil {
		return err
	}
	names := make([]string, len(chunks))
	for i, c := range chunks {
		names[i] = c.Filename
	}

	if err := archive.Join(archivePath, chunkDir, names); err != nil {
		return err
	}

	destDir, err := w.Paths.CreatePackageOutputDir(t.Name)
	if err != nil {
		return err
	}
	if err := archive.ExtractTar(archivePath, destDir); err != nil {
		return err
	}
	if err := w.Paths.ChownModPackageOutputDir(t.Name); err != nil {
		return err
	}

	return os.RemoveAll(chunkDir)
}

func (w *PackageExtractor) Stop() {}
