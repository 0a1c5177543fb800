// Package workers implements the seven stage workers that move Torrents
// and PackageFiles through the consumer pipeline: two directory-style
// monitors that create new rows, four queue consumers that do the actual
// packaging/listing/downloading/extracting work, and a terminal deleter.
//
// Every queue consumer follows the same shape: receive from the channel
// the dispatcher fanned it out on, do the work, advance the stage on
// success or set_error on failure, loop until the channel yields the nil
// sentinel.
package workers

import (
	"context"
	"log"

	"github.com/arlowood/torrentship/internal/db"
	"github.com/arlowood/torrentship/internal/httpclient"
	"github.com/arlowood/torrentship/internal/stage"
	"github.com/arlowood/torrentship/internal/worker"
)

// errorType buckets an error for set_error's upsert-by-type key. These are
// coarse kinds, not one-per-Go-error-value, matching the original's
// hash-of-error-class approach closely enough to collapse retries of the
// same failure mode into one backed-off row.
type errorType int64

const (
	errTypeRequest errorType = iota + 1
	errTypeVerify
	errTypeExtract
	errTypeOther
)

func classify(err error) errorType {
	if herr, ok := err.(*httpclient.Error); ok {
		switch herr.Kind {
		case httpclient.ErrMalformedData:
			return errTypeVerify
		default:
			return errTypeRequest
		}
	}
	return errTypeOther
}

// setTorrentError records err against t and parks it at the Error stage.
func setTorrentError(database *db.DB, t *db.Torrent, currentStage string, err error) {
	if serr := database.SetTorrentError(t.ID, int64(classify(err)), err.Error(), currentStage); serr != nil {
		log.Printf("torrent %s: failed to record error (original error: %v): %v", t.Name, err, serr)
	}
}

// setPackageFileError is the PackageFile analogue of setTorrentError.
func setPackageFileError(database *db.DB, pf *db.PackageFile, currentStage string, err error) {
	if serr := database.SetPackageFileError(pf.ID, int64(classify(err)), err.Error(), currentStage); serr != nil {
		log.Printf("package file %s: failed to record error (original error: %v): %v", pf.Filename, err, serr)
	}
}

// recvTorrent waits for the next torrent or ctx cancellation, returning
// worker.ErrSentinel when the channel yields the nil sentinel.
func recvTorrent(ctx context.Context, ch <-chan *db.Torrent) (*db.Torrent, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case t, ok := <-ch:
		if !ok || t == nil {
			return nil, worker.ErrSentinel
		}
		return t, nil
	}
}

// recvPackageFile is the PackageFile analogue of recvTorrent.
func recvPackageFile(ctx context.Context, ch <-chan *db.PackageFile) (*db.PackageFile, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case pf, ok := <-ch:
		if !ok || pf == nil {
			return nil, worker.ErrSentinel
		}
		return pf, nil
	}
}

// advanceTorrentStage moves t to the named next stage in TorrentStages and
// persists it, used after a worker's step completes cleanly.
func advanceTorrentStage(database *db.DB, t *db.Torrent, to string) error {
	if err := database.SetTorrentStage(t.ID, to); err != nil {
		return err
	}
	t.Stage = to
	return nil
}

// mustNextName returns the name of the stage after name in list.
func mustNextName(list stage.List, name string) string {
	s, err := stage.At(list, name)
	if err != nil {
		panic(err)
	}
	next, err := s.Next()
	if err != nil {
		panic(err)
	}
	return next.Name()
}

// mustPreviousName returns the name of the stage before name in list.
func mustPreviousName(list stage.List, name string) string {
	s, err := stage.At(list, name)
	if err != nil {
		panic(err)
	}
	prev, err := s.Previous()
	if err != nil {
		panic(err)
	}
	return prev.Name()
}
