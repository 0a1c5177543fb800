// Command producer runs the directory monitor and HTTP surface that let
// a consumer discover, request packaging of, and download completed
// torrents: it watches a scan directory for newly-arrived torrents,
// records them in its own database, and serves token-authenticated
// listing, packaging, and ranged chunk download/delete.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/arlowood/torrentship/internal/config"
	"github.com/arlowood/torrentship/internal/db"
	"github.com/arlowood/torrentship/internal/packaging"
	"github.com/arlowood/torrentship/internal/producerapi"
	"github.com/arlowood/torrentship/internal/watcher"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	log.Printf("Starting torrentship producer v%s...", Version)

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
	log.Printf("  Scan path: %s", cfg.ScanPath)
	log.Printf("  Output path: %s", cfg.OutputPath)
	log.Printf("  API port: %d", cfg.APIPort)

	database, err := db.Connect(cfg.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database); err != nil {
		log.Printf("Warning: migration errors occurred: %v", err)
	}

	if err := os.MkdirAll(cfg.ScanPath, 0o775); err != nil {
		log.Fatalf("Failed to create scan path: %v", err)
	}
	if err := os.MkdirAll(cfg.OutputPath, 0o775); err != nil {
		log.Fatalf("Failed to create output path: %v", err)
	}

	engine := &packaging.Engine{
		SourceDir:       cfg.ScanPath,
		OutputDir:       cfg.OutputPath,
		MinChunkSize:    cfg.MinPackageFileSize,
		MaxPackageFiles: cfg.MaxPackageFiles,
	}

	mon, err := watcher.NewWatcher(cfg.ScanPath)
	if err != nil {
		log.Fatalf("Failed to create directory monitor: %v", err)
	}
	if err := mon.Start(); err != nil {
		log.Fatalf("Failed to start directory monitor: %v", err)
	}

	api := producerapi.NewServer(cfg.APIPort, cfg.ProducerUsername, cfg.ProducerPassword, database, engine)

	ctx, cancel := context.WithCancel(context.Background())
	go recordNewTorrents(ctx, database, mon)
	go func() {
		if err := api.Start(); err != nil {
			log.Printf("producer API stopped: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Println("Producer is running")
	log.Println("Press Ctrl+C to stop")
	<-sigChan

	log.Println("Shutdown signal received, stopping producer...")
	cancel()
	mon.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer shutdownCancel()
	if err := api.Shutdown(shutdownCtx); err != nil {
		log.Printf("producer API shutdown error: %v", err)
	}
	log.Println("Producer stopped")
}

// recordNewTorrents drains the monitor's settled-entry channel, creating
// a Torrent row at "Added" for each. CreateTorrent is itself idempotent
// by name, so a name reported twice (e.g. after a restart mid-debounce)
// never creates a duplicate row.
func recordNewTorrents(ctx context.Context, database *db.DB, mon *watcher.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case name, ok := <-mon.NewEntries:
			if !ok {
				return
			}
			if _, err := database.CreateTorrent(name, "Added"); err != nil {
				log.Printf("directory monitor: record %q: %v", name, err)
			}
		}
	}
}
