package workers

import (
	"context"
	"log"
	"sync"

	"github.com/arlowood/torrentship/internal/db"
	"github.com/arlowood/torrentship/internal/httpclient"
)

// CompletedTorrentMonitor polls the producer for torrents that have
// finished downloading (outside this pipeline) and are ready to be
// packaged, creating a Torrent row for each new name it sees.
//
// Like PackagedTorrentMonitor, and unlike the queue consumers in this
// package, it is not a dispatcher consumer: the stage it creates rows at ("Added") sits below the bottom
// of TorrentStages, so there is no (ready, processing) pair to register
// for it. It is a pure poller, driven by worker.Group's Sleep loop.
type CompletedTorrentMonitor struct {
	DB         *db.DB
	Client     *httpclient.Client
	ListPath   string // e.g. "/completed-torrents/"

	mu    sync.Mutex
	known map[string]bool
}

// Prepare rehydrates the known-names set from the Torrent rows still at
// "Added", so a restart doesn't re-announce those names. Rows that have
// moved past "Added" are not loaded; CreateTorrent is idempotent by name,
// so re-creating one of them adds no row.
func (m *CompletedTorrentMonitor) Prepare() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.known = make(map[string]bool)
	rows, err := m.DB.GetTorrentsByStage("Added")
	if err != nil {
		return err
	}
	for _, t := range rows {
		m.known[t.Name] = true
	}
	return nil
}

// Work fetches the remote name list, diffs it against the known set, and
// creates a Torrent for each new name. A request failure logs and leaves
// the cached set untouched so the next tick retries the full diff.
func (m *CompletedTorrentMonitor) Work(ctx context.Context) error {
	var names []string
	if err := m.Client.GetJSON(m.ListPath, &names); err != nil {
		log.Printf("completed torrent monitor: poll failed: %v", err)
		return nil
	}

	m.mu.Lock()
	var fresh []string
	for _, n := range names {
		if !m.known[n] {
			fresh = append(fresh, n)
			m.known[n] = true
		}
	}
	m.mu.Unlock()

	for _, name := range fresh {
		if _, err := m.DB.CreateTorrent(name, "Added"); err != nil {
			log.Printf("completed torrent monitor: create %q: %v", name, err)
		}
	}
	return nil
}

func (m *CompletedTorrentMonitor) Stop() {}

// PackagedTorrentMonitor is the consumer-side counterpart of
// CompletedTorrentMonitor: it polls the producer's packaged-torrent
// listing and creates a Torrent directly at "Packaged", the alternative
// entry path that skips the Packaging stage entirely for torrents the
// producer already packaged out of band.
type PackagedTorrentMonitor struct {
	DB       *db.DB
	Client   *httpclient.Client
	ListPath string // e.g. "/torrents/"

	mu    sync.Mutex
	known map[string]bool
}

func (m *PackagedTorrentMonitor) Prepare() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.known = make(map[string]bool)
	rows, err := m.DB.GetTorrentsByStage("Packaged")
	if err != nil {
		return err
	}
	for _, t := range rows {
		m.known[t.Name] = true
	}
	return nil
}

func (m *PackagedTorrentMonitor) Work(ctx context.Context) error {
	var names []string
	if err := m.Client.GetJSON(m.ListPath, &names); err != nil {
		log.Printf("packaged torrent monitor: poll failed: %v", err)
		return nil
	}

	m.mu.Lock()
	var fresh []string
	for _, n := range names {
		if !m.known[n] {
			fresh = append(fresh, n)
			m.known[n] = true
		}
	}
	m.mu.Unlock()

	for _, name := range fresh {
		if _, err := m.DB.CreateTorrent(name, "Packaged"); err != nil {
			log.Printf("packaged torrent monitor: create %q: %v", name, err)
		}
	}
	return nil
}

func (m *PackagedTorrentMonitor) Stop() {}
