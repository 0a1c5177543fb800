package workers

import (
	"context"

	"github.com/arlowood/torrentship/internal/db"
	"github.com/arlowood/torrentship/internal/stage"
)

// TorrentDeleter consumes torrents at "Deleting", the last stage before a
// torrent leaves the pipeline. Sorting the extracted content into its
// final home is an external step (not owned by this pipeline); by the
// time a torrent reaches here there is nothing left for this process to
// do but mark the row Deleted.
type TorrentDeleter struct {
	DB *db.DB

	Torrents <-chan *db.Torrent
}

func (w *TorrentDeleter) Prepare() error { return nil }

func (w *TorrentDeleter) Work(ctx context.Context) error {
	t, err := recvTorrent(ctx, w.Torrents)
	if err != nil {
		return err
	}

	completed := mustNextName(stage.TorrentStages, "Deleting")
	if err := advanceTorrentStage(w.DB, t, completed); err != nil {
		setTorrentError(w.DB, t, "Deleting", err)
	}
	return nil
}

func (w *TorrentDeleter) Stop() {}
