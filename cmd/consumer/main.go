// Command consumer runs the staged pipeline that turns a completed torrent
// into sorted, extracted output: packaging/listing, downloading chunks,
// extracting them, and deleting transient state, driven by a database-
// resident dispatcher and one worker pool per stage.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/arlowood/torrentship/internal/config"
	"github.com/arlowood/torrentship/internal/db"
	"github.com/arlowood/torrentship/internal/dispatcher"
	"github.com/arlowood/torrentship/internal/httpclient"
	"github.com/arlowood/torrentship/internal/pathmgr"
	"github.com/arlowood/torrentship/internal/retry"
	"github.com/arlowood/torrentship/internal/worker"
	"github.com/arlowood/torrentship/internal/workers"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	log.Printf("Starting torrentship consumer v%s...", Version)

	workDir, _ := os.Getwd()
	configPath := filepath.Join(workDir, "torrentship.conf")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		configPath = filepath.Join(filepath.Dir(workDir), "torrentship.conf")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Configuration loaded:")
	log.Printf("  Database: %s@%s:%d/%s", cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName)
	log.Printf("  Producer: %s", cfg.ProducerBaseURL)
	log.Printf("  Dispatcher interval: %s", cfg.DispatcherInterval)

	database, err := db.Connect(cfg.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database); err != nil {
		log.Printf("Warning: migration errors occurred: %v", err)
	}

	paths, err := buildPathManager(cfg)
	if err != nil {
		log.Fatalf("Failed to build path manager: %v", err)
	}

	client := httpclient.New(cfg.ProducerBaseURL, cfg.ProducerUsername, cfg.ProducerPassword, cfg.TokenPath, cfg.TokenTTL, cfg.RequestTimeout)

	registry := &worker.Registry{}
	registry.OneTime = append(registry.OneTime,
		workers.CompletedTorrentPackagerRecovery(database),
		workers.PackagedTorrentListerRecovery(database),
		workers.PackageDownloaderRecovery(database),
	)
	registry.Periodic = append(registry.Periodic,
		workers.PackageDownloaderAggregate(database),
		retry.Handler(database),
	)

	disp := dispatcher.New(database, cfg.DispatcherInterval, registry)

	packagerCh := disp.RegisterTorrentConsumer("Added", "Packaging")
	listerCh := disp.RegisterTorrentConsumer("Packaged", "Listing")
	downloaderCh := disp.RegisterPackageFileConsumer("Added", "Downloading")
	extractorCh := disp.RegisterTorrentConsumer("Downloaded", "Extracting")
	deleterCh := disp.RegisterTorrentConsumer("Completed", "Deleting")

	groups := []*worker.Group{
		{
			Name:  "CompletedTorrentMonitor",
			Count: cfg.Workers["CompletedTorrentMonitor"].NumWorkers,
			Sleep: cfg.Workers["CompletedTorrentMonitor"].Sleep,
			NewInstance: func() worker.Worker {
				return &workers.CompletedTorrentMonitor{DB: database, Client: client, ListPath: cfg.CompletedTorrentsPath}
			},
		},
		{
			Name:  "PackagedTorrentMonitor",
			Count: cfg.Workers["PackagedTorrentMonitor"].NumWorkers,
			Sleep: cfg.Workers["PackagedTorrentMonitor"].Sleep,
			NewInstance: func() worker.Worker {
				return &workers.PackagedTorrentMonitor{DB: database, Client: client, ListPath: cfg.PackagedTorrentsPath}
			},
		},
		{
			Name:  "CompletedTorrentPackager",
			Count: cfg.Workers["CompletedTorrentPackager"].NumWorkers,
			Sleep: cfg.Workers["CompletedTorrentPackager"].Sleep,
			NewInstance: func() worker.Worker {
				return &workers.CompletedTorrentPackager{DB: database, Client: client, PackagePath: cfg.PackagePath, Torrents: packagerCh}
			},
		},
		{
			Name:  "PackagedTorrentLister",
			Count: cfg.Workers["PackagedTorrentLister"].NumWorkers,
			Sleep: cfg.Workers["PackagedTorrentLister"].Sleep,
			NewInstance: func() worker.Worker {
				return &workers.PackagedTorrentLister{DB: database, Client: client, ListPath: cfg.ListPath, Torrents: listerCh}
			},
		},
		{
			Name:  "PackageDownloader",
			Count: cfg.Workers["PackageDownloader"].NumWorkers,
			Sleep: cfg.Workers["PackageDownloader"].Sleep,
			NewInstance: func() worker.Worker {
				return &workers.PackageDownloader{
					DB:                 database,
					Client:             client,
					Paths:              paths,
					DownloadPathPrefix: cfg.DownloadPathPrefix,
					PackageFiles:       downloaderCh,
				}
			},
		},
		{
			Name:  "PackageExtractor",
			Count: cfg.Workers["PackageExtractor"].NumWorkers,
			Sleep: cfg.Workers["PackageExtractor"].Sleep,
			NewInstance: func() worker.Worker {
				return &workers.PackageExtractor{DB: database, Paths: paths, Torrents: extractorCh}
			},
		},
		{
			Name:  "TorrentDeleter",
			Count: cfg.Workers["TorrentDeleter"].NumWorkers,
			Sleep: cfg.Workers["TorrentDeleter"].Sleep,
			NewInstance: func() worker.Worker {
				return &workers.TorrentDeleter{DB: database, Torrents: deleterCh}
			},
		},
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	ctx := withSignalCancel(sigChan)

	for _, g := range groups {
		g.Start(ctx)
	}
	go disp.Run()

	log.Println("Consumer is running")
	log.Println("Press Ctrl+C to stop")
	<-ctx.Done()

	log.Println("Shutdown signal received, stopping consumer...")
	disp.Stop()
	for _, g := range groups {
		g.Stop()
	}
	for _, g := range groups {
		g.Join()
	}
	log.Println("Consumer stopped")
}

// buildPathManager parses and wires the two configured directory lines
// this pipeline actually exercises, package files and unsorted output (the
// other four are reserved for the sorting step, which lives outside this
// pipeline).
func buildPathManager(cfg *config.Config) (*pathmgr.Manager, error) {
	packageFilesDir, err := pathmgr.ParseDirConfig(cfg.Paths.PackageFilesDir)
	if err != nil {
		return nil, fmt.Errorf("package_files_dir: %w", err)
	}
	unsortedDir, err := pathmgr.ParseDirConfig(cfg.Paths.UnsortedPackageDir)
	if err != nil {
		return nil, fmt.Errorf("unsorted_package_dir: %w", err)
	}
	return &pathmgr.Manager{PackageFilesDir: packageFilesDir, UnsortedDir: unsortedDir}, nil
}

// withSignalCancel returns a context canceled the moment sigChan receives a
// signal, mirroring the group's own context.CancelFunc-based Stop so every
// subsystem sees one unified shutdown signal.
func withSignalCancel(sigChan <-chan os.Signal) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-sigChan
		cancel()
	}()
	return ctx
}
