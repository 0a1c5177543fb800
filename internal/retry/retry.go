// Package retry implements the error handler / retry scheduler: the
// periodic query function that rolls entities parked at the Error stage
// back to their last known-good resting state once their backoff window
// has elapsed, so the next dispatcher tick re-enqueues them.
package retry

import (
	"database/sql"
	"log"
	"time"

	"github.com/arlowood/torrentship/internal/db"
	"github.com/arlowood/torrentship/internal/stage"
)

// previousCompletedTorrentStage mirrors stage.TorrentStages' navigation
// except at "Packaging", whose ready stage ("Added") sits below the
// list's first entry and so cannot be reached by PreviousCompleted.
func previousCompletedTorrentStage(errStage string) (string, error) {
	if errStage == "Packaging" {
		return "Added", nil
	}
	s, err := stage.Torrent(errStage)
	if err != nil {
		return "", err
	}
	prev, err := s.PreviousCompleted()
	if err != nil {
		return "", err
	}
	return prev.Name(), nil
}

func previousCompletedPackageFileStage(errStage string) (string, error) {
	s, err := stage.PackageFile(errStage)
	if err != nil {
		return "", err
	}
	prev, err := s.PreviousCompleted()
	if err != nil {
		return "", err
	}
	return prev.Name(), nil
}

// Handler is the Error periodic query function for both entity kinds.
func Handler(database *db.DB) func() error {
	return func() error {
		if err := handleTorrents(database); err != nil {
			return err
		}
		return handlePackageFiles(database)
	}
}

func handleTorrents(database *db.DB) error {
	torrents, err := database.GetTorrentsInErrorStage()
	if err != nil {
		return err
	}
	for _, t := range torrents {
		latest, err := database.GetLatestTorrentError(t.ID)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return err
		}
		if time.Since(latest.Time) <= time.Duration(latest.RetryDelay)*time.Second {
			continue
		}
		rollback, err := previousCompletedTorrentStage(latest.Stage)
		if err != nil {
			log.Printf("retry: torrent %s: cannot compute rollback stage from %q: %v", t.Name, latest.Stage, err)
			continue
		}
		if err := database.SetTorrentStage(t.ID, rollback); err != nil {
			return err
		}
	}
	return nil
}

func handlePackageFiles(database *db.DB) error {
	pfs, err := database.GetPackageFilesInErrorStage()
	if err != nil {
		return err
	}
	for _, pf := range pfs {
		latest, err := database.GetLatestPackageFileError(pf.ID)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return err
		}
		if time.Since(latest.Time) <= time.Duration(latest.RetryDelay)*time.Second {
			continue
		}
		rollback, err := previousCompletedPackageFileStage(latest.Stage)
		if err != nil {
			log.Printf("retry: package file %s: cannot compute rollback stage from %q: %v", pf.Filename, latest.Stage, err)
			continue
		}
		if err := database.SetPackageFileStage(pf.ID, rollback); err != nil {
			return err
		}
	}
	return nil
}
