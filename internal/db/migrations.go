package db

import "log"

// embeddedMigrationSQL is compiled into the binary so migrations work on
// deployed hosts that don't have the source tree on disk.
var embeddedMigrationSQL = map[string]string{

	"000_enable_extensions": `
CREATE EXTENSION IF NOT EXISTS "uuid-ossp";
`,

	"001_create_torrents": `
CREATE TABLE IF NOT EXISTS torrents (
    id UUID PRIMARY KEY,
    name VARCHAR(255) NOT NULL UNIQUE,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
    last_modified_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
    stage VARCHAR(32) NOT NULL,
    package_files_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_torrents_created_at ON torrents(created_at ASC);
CREATE INDEX IF NOT EXISTS idx_torrents_stage ON torrents(stage);
`,

	"002_create_package_files": `
CREATE TABLE IF NOT EXISTS package_files (
    id UUID PRIMARY KEY,
    torrent_id UUID NOT NULL REFERENCES torrents(id) ON DELETE CASCADE,
    filename VARCHAR(255) NOT NULL,
    filesize BIGINT NOT NULL DEFAULT 0,
    sha256 VARCHAR(64) NOT NULL DEFAULT '',
    stage VARCHAR(32) NOT NULL,
    UNIQUE(torrent_id, filename)
);
CREATE INDEX IF NOT EXISTS idx_package_files_torrent_id ON package_files(torrent_id);
CREATE INDEX IF NOT EXISTS idx_package_files_stage ON package_files(stage);
`,

	"003_create_torrent_errors": `
CREATE TABLE IF NOT EXISTS torrent_errors (
    id UUID PRIMARY KEY,
    torrent_id UUID NOT NULL REFERENCES torrents(id) ON DELETE CASCADE,
    type BIGINT NOT NULL,
    message VARCHAR(1024) NOT NULL,
    time TIMESTAMP WITH TIME ZONE NOT NULL,
    stage VARCHAR(32) NOT NULL,
    count INTEGER NOT NULL DEFAULT 0,
    retry_delay BIGINT NOT NULL DEFAULT 2,
    UNIQUE(torrent_id, type)
);
CREATE INDEX IF NOT EXISTS idx_torrent_errors_time ON torrent_errors(time DESC);
`,

	"004_create_package_file_errors": `
CREATE TABLE IF NOT EXISTS package_file_errors (
    id UUID PRIMARY KEY,
    package_file_id UUID NOT NULL REFERENCES package_files(id) ON DELETE CASCADE,
    type BIGINT NOT NULL,
    message VARCHAR(1024) NOT NULL,
    time TIMESTAMP WITH TIME ZONE NOT NULL,
    stage VARCHAR(32) NOT NULL,
    count INTEGER NOT NULL DEFAULT 0,
    retry_delay BIGINT NOT NULL DEFAULT 2,
    UNIQUE(package_file_id, type)
);
CREATE INDEX IF NOT EXISTS idx_package_file_errors_time ON package_file_errors(time DESC);
`,
}

// migrationOrder defines the execution order for migrations.
var migrationOrder = []string{
	"000_enable_extensions",
	"001_create_torrents",
	"002_create_package_files",
	"003_create_torrent_errors",
	"004_create_package_file_errors",
}

// RunMigrations applies every embedded migration in order. Individual
// statement failures are logged and skipped rather than aborting the
// whole run: every migration is idempotent (IF NOT EXISTS), so a
// previous partial run or a concurrently-starting peer is not fatal.
func RunMigrations(database *DB) error {
	log.Println("Running database migrations (embedded in binary)...")

	for _, name := range migrationOrder {
		sql, ok := embeddedMigrationSQL[name]
		if !ok {
			log.Printf("  Warning: migration %q not found in embedded SQL, skipping", name)
			continue
		}

		log.Printf("  Running migration: %s", name)
		if _, err := database.Exec(sql); err != nil {
			log.Printf("  Warning: %s: %v", name, err)
			continue
		}
		log.Printf("  %s completed", name)
	}

	log.Println("Migrations complete")
	return nil
}
