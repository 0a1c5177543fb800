package workers

import (
	"context"

	"github.com/arlowood/torrentship/internal/db"
	"github.com/arlowood/torrentship/internal/httpclient"
	"github.com/arlowood/torrentship/internal/stage"
)

// PackagedTorrentLister is the alternative path into listing: rather than
// triggering packaging, it asks the producer for the chunk listing of a
// torrent it already packaged out of band and records the same rows
// CompletedTorrentPackager would have.
type PackagedTorrentLister struct {
	DB       *db.DB
	Client   *httpclient.Client
	ListPath string // e.g. "/torrents/" (GET with a {torrent} body)

	Torrents <-chan *db.Torrent
}

func (w *PackagedTorrentLister) Prepare() error { return nil }

func (w *PackagedTorrentLister) Work(ctx context.Context) error {
	t, err := recvTorrent(ctx, w.Torrents)
	if err != nil {
		return err
	}

	var specs []packageFileSpec
	reqBody := map[string]string{"torrent": t.Name}
	if err := w.Client.GetJSONWithBody(w.ListPath, reqBody, &specs); err != nil {
		setTorrentError(w.DB, t, "Listing", err)
		return nil
	}

	for _, s := range specs {
		if _, err := w.DB.CreatePackageFile(t.ID, s.Filename, s.Filesize, s.SHA256, "Added"); err != nil {
			setTorrentError(w.DB, t, "Listing", err)
			return nil
		}
	}

	completed := mustNextName(stage.TorrentStages, "Listing")
	if err := w.DB.CompleteTorrentPackaging(t.ID, completed, len(specs)); err != nil {
		setTorrentError(w.DB, t, "Listing", err)
	}
	return nil
}

func (w *PackagedTorrentLister) Stop() {}

// PackagedTorrentListerRecovery is the lister's crash-recovery one-time
// query: a torrent stuck at "Listing" with no recorded chunks never
// finished its listing call, so its orphan rows (if any) are removed and
// it is returned to "Packaged" for the dispatcher to reclaim.
func PackagedTorrentListerRecovery(database *db.DB) func() error {
	return func() error {
		ready := mustPreviousName(stage.TorrentStages, "Listing")
		stuck, err := database.GetTorrentsByStage("Listing")
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
			if err := database.SetTorrentStage(t.ID, ready); err != nil {
				return err
			}
		}
		return nil
	}
}
