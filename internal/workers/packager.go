package workers

import (
	"context"

	"github.com/arlowood/torrentship/internal/db"
	"github.com/arlowood/torrentship/internal/httpclient"
	"github.com/arlowood/torrentship/internal/stage"
)

// CompletedTorrentPackagerReadyStage is the literal sentinel stage a
// newly-discovered torrent sits at before any consumer claims it. It sits
// below TorrentStages' first entry ("Packaging" has no previous stage in
// the list), so it is never looked up through stage.Torrent — only
// compared and written as a literal string.
const CompletedTorrentPackagerReadyStage = "Added"

type packageFileSpec struct {
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
	SHA256   string `json:"sha256"`
}

// CompletedTorrentPackager consumes torrents sitting at the "Added"
// sentinel stage, asks the producer to package (archive + split) the
// matching source directory, and records the resulting chunks.
type CompletedTorrentPackager struct {
	DB          *db.DB
	Client      *httpclient.Client
	PackagePath string // e.g. "/torrents/" (POST triggers synchronous packaging)

	Torrents <-chan *db.Torrent
}

func (w *CompletedTorrentPackager) Prepare() error { return nil }

func (w *CompletedTorrentPackager) Work(ctx context.Context) error {
	t, err := recvTorrent(ctx, w.Torrents)
	if err != nil {
		return err
	}

	var specs []packageFileSpec
	reqBody := map[string]string{"torrent": t.Name}
	if err := w.Client.PostJSON(w.PackagePath, reqBody, &specs); err != nil {
		setTorrentError(w.DB, t, "Packaging", err)
		return nil
	}

	for _, s := range specs {
		if _, err := w.DB.CreatePackageFile(t.ID, s.Filename, s.Filesize, s.SHA256, "Added"); err != nil {
			setTorrentError(w.DB, t, "Packaging", err)
			return nil
		}
	}

	completed := mustNextName(stage.TorrentStages, "Packaging")
	if err := w.DB.CompleteTorrentPackaging(t.ID, completed, len(specs)); err != nil {
		setTorrentError(w.DB, t, "Packaging", err)
	}
	return nil
}

func (w *CompletedTorrentPackager) Stop() {}

// CompletedTorrentPackagerRecovery reconciles torrents left stuck at
// "Packaging" by a crash: if none of its package files were ever
// recorded, the packaging attempt never committed, so the orphan rows (if
// any slipped through) are deleted and the torrent is returned to "Added"
// for the dispatcher to reclaim.
func CompletedTorrentPackagerRecovery(database *db.DB) func() error {
	return func() error {
		stuck, err := database.GetTorrentsByStage("Packaging")
		if err != nil {
			return err
		}
		for _, t := range stuck {
			count, err := database.CountPackageFilesByTorrentAndStage(t.ID, "Added")
			if err != nil {
				return err
			}
			if count > 0 {
				continue
			}
			if _, err := database.DeletePackageFilesByTorrent(t.ID); err != nil {
				return err
			}
			if err := database.SetTorrentStage(t.ID, CompletedTorrentPackagerReadyStage); err != nil {
				return err
			}
		}
		return nil
	}
}
