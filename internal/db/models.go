package db

import (
	"time"

	"github.com/google/uuid"
)

// Torrent is a logical unit of shipped content identified by a unique
// name. Mutated only by the worker that currently owns it, as enforced
// by Stage (the stage discriminates ownership).
type Torrent struct {
	ID                uuid.UUID
	Name              string
	CreatedAt         time.Time
	LastModifiedAt    time.Time
	Stage             string
	PackageFilesCount int
}

// PackageFile is one checksummed chunk of a Torrent's split archive.
type PackageFile struct {
	ID       uuid.UUID
	TorrentID uuid.UUID
	Filename string
	Filesize int64
	SHA256   string
	Stage    string
}

// TorrentError is the newest-first error log for a Torrent, upserted by
// (TorrentID, Type).
type TorrentError struct {
	ID         uuid.UUID
	TorrentID  uuid.UUID
	Type       int64
	Message    string
	Time       time.Time
	Stage      string
	Count      int
	RetryDelay int64
}

// PackageFileError is the newest-first error log for a PackageFile,
// upserted by (PackageFileID, Type).
type PackageFileError struct {
	ID            uuid.UUID
	PackageFileID uuid.UUID
	Type          int64
	Message       string
	Time          time.Time
	Stage         string
	Count         int
	RetryDelay    int64
}
