package workers

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/arlowood/torrentship/internal/archive"
	"github.com/arlowood/torrentship/internal/db"
	"github.com/arlowood/torrentship/internal/httpclient"
	"github.com/arlowood/torrentship/internal/pathmgr"
	"github.com/arlowood/torrentship/internal/stage"
)

// downloadBlockSize is the streaming copy buffer used while saving a
// ranged response to disk.
const downloadBlockSize = 4 * 1024

// PackageDownloadError reports a downloaded chunk that failed size or
// checksum verification against its DB row.
type PackageDownloadError struct {
	Filename string
	Reason   string
}

func (e *PackageDownloadError) Error() string {
	return fmt.Sprintf("package file %s: verification failed: %s", e.Filename, e.Reason)
}

// PackageDownloader consumes PackageFiles at "Downloading", resuming a
// partial local file via HTTP Range requests and verifying filesize and
// sha256 against the DB row before advancing the chunk to "Downloaded".
type PackageDownloader struct {
	DB                 *db.DB
	Client             *httpclient.Client
	Paths              *pathmgr.Manager
	DownloadPathPrefix string // e.g. "/download/" — chunk path is prefix+filename+"/"

	PackageFiles <-chan *db.PackageFile
}

func (w *PackageDownloader) Prepare() error { return nil }

func (w *PackageDownloader) Work(ctx context.Context) error {
	pf, err := recvPackageFile(ctx, w.PackageFiles)
	if err != nil {
		return err
	}

	t, err := w.DB.GetTorrentByID(pf.TorrentID)
	if err != nil {
		setPackageFileError(w.DB, pf, "Downloading", err)
		return nil
	}

	if _, err := w.Paths.CreatePackageFilesDir(t.Name); err != nil {
		setPackageFileError(w.DB, pf, "Downloading", err)
		return nil
	}
	localPath := w.Paths.PackageFilePath(t.Name, pf.Filename)

	if err := w.download(t.Name, localPath, pf); err != nil {
		setPackageFileError(w.DB, pf, "Downloading", err)
		return nil
	}

	completed := mustNextName(stage.PackageFileStages, "Downloading")
	if err := w.DB.SetPackageFileStage(pf.ID, completed); err != nil {
		setPackageFileError(w.DB, pf, "Downloading", err)
		return nil
	}
	pf.Stage = completed
	return nil
}

// download resumes localPath from its current size (0 if absent),
// streams the remainder in downloadBlockSize blocks, then verifies the
// full file against pf's recorded size and checksum.
func (w *PackageDownloader) download(torrentName, localPath string, pf *db.PackageFile) error {
	var offset int64
	if info, err := os.Stat(localPath); err == nil {
		offset = info.Size()
	} else if !os.IsNotExist(err) {
		return err
	}

	if offset == pf.Filesize {
		return w.verify(localPath, pf)
	}

	body, err := w.Client.RangeStream(w.DownloadPathPrefix+pf.Filename+"/", offset, -1)
	if err != nil {
		return err
	}
	defer body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	if offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	out, err := os.OpenFile(localPath, flags, w.Paths.PackageFilesDir.FMode)
	if err != nil {
		return err
	}
	defer out.Close()

	buf := make([]byte, downloadBlockSize)
	if _, err := io.CopyBuffer(out, body, buf); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if err := w.Paths.ChownModPackageFile(torrentName, pf.Filename); err != nil {
		return err
	}

	return w.verify(localPath, pf)
}

func (w *PackageDownloader) verify(localPath string, pf *db.PackageFile) error {
	ok, err := archive.VerifyFile(localPath, pf.Filesize, pf.SHA256)
	if err != nil {
		return err
	}
	if !ok {
		os.Remove(localPath)
		return &PackageDownloadError{Filename: pf.Filename, Reason: "size or sha256 mismatch"}
	}
	return nil
}

func (w *PackageDownloader) Stop() {}

// PackageDownloaderAggregate is the downloader's companion periodic query
// function: it rolls a Torrent from "Listed" to "Downloading" once any of
// its chunks enters the processing stage, and from "Downloading" to
// "Downloaded" once every chunk has landed.
func PackageDownloaderAggregate(database *db.DB) func() error {
	ready := mustPreviousName(stage.TorrentStages, "Downloading")
	completed := mustNextName(stage.TorrentStages, "Downloading")

	return func() error {
		readyTorrents, err := database.GetTorrentsByStage(ready)
		if err != nil {
			return err
		}
		for _, t := range readyTorrents {
			n, err := database.CountPackageFilesByTorrentAndStage(t.ID, "Downloading")
			if err != nil {
				return err
			}
			if n > 0 {
				if err := database.SetTorrentStage(t.ID, "Downloading"); err != nil {
					return err
				}
			}
		}

		processing, err := database.GetTorrentsByStage("Downloading")
		if err != nil {
			return err
		}
		for _, t := range processing {
			n, err := database.CountPackageFilesByTorrentAndStage(t.ID, "Downloaded")
			if err != nil {
				return err
			}
			if n == t.PackageFilesCount {
				if err := database.SetTorrentStage(t.ID, completed); err != nil {
					return err
				}
			}
		}
		return nil
	}
}

// PackageDownloaderRecovery resets every chunk left at "Downloading" by a
// crash back to "Added" so the dispatcher reclaims it; a resumable
// partial file on disk is untouched and the next attempt picks up where
// it left off via download's offset check.
func PackageDownloaderRecovery(database *db.DB) func() error {
	ready := mustPreviousName(stage.PackageFileStages, "Downloading")
	return func() error {
		return database.ResetPackageFilesStage("Downloading", ready)
	}
}
