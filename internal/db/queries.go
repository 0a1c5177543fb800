package db

import (
	"database/sql"

	"github.com/google/uuid"
)

// MaxRetryDelaySeconds bounds the exponentially-growing retry_delay
// column. The first failure stores 2 and each repeat squares it
// (2, 4, 16, 256, 65536), so unbounded squaring reaches 65536 on the fifth
// failure and overflows a 32-bit counter on the sixth; clamp well below
// that (24h, per the retry-scheduler design notes).
const MaxRetryDelaySeconds = 24 * 60 * 60

// CreateTorrent inserts a new torrent row with the given stage. If a
// torrent with this name already exists, the insert is a no-op and the
// existing row is returned (directory-monitor dedup: re-reporting an
// existing name must not create a duplicate row).
func (db *DB) CreateTorrent(name, stage string) (*Torrent, error) {
	id := uuid.New()
	_, err := db.Exec(`
		INSERT INTO torrents (id, name, stage, package_files_count)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (name) DO NOTHING
	`, id, name, stage)
	if err != nil {
		return nil, err
	}
	return db.GetTorrentByName(name)
}

// GetTorrentByName returns the torrent named name, or sql.ErrNoRows.
func (db *DB) GetTorrentByName(name string) (*Torrent, error) {
	row := db.QueryRow(`
		SELECT id, name, created_at, last_modified_at, stage, package_files_count
		FROM torrents WHERE name = $1
	`, name)
	return scanTorrent(row)
}

// GetTorrentByID returns the torrent with id, or sql.ErrNoRows.
func (db *DB) GetTorrentByID(id uuid.UUID) (*Torrent, error) {
	row := db.QueryRow(`
		SELECT id, name, created_at, last_modified_at, stage, package_files_count
		FROM torrents WHERE id = $1
	`, id)
	return scanTorrent(row)
}

// GetTorrentsByStage returns every torrent currently at stage, ordered by
// creation time ascending.
func (db *DB) GetTorrentsByStage(stage string) ([]*Torrent, error) {
	rows, err := db.Query(`
		SELECT id, name, created_at, last_modified_at, stage, package_files_count
		FROM torrents WHERE stage = $1 ORDER BY created_at ASC
	`, stage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Torrent
	for rows.Next() {
		t, err := scanTorrentRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ClaimTorrentsForProcessing atomically moves every torrent at readyStage
// to processingStage and returns the moved rows. Uses SELECT ... FOR
// UPDATE SKIP LOCKED so a concurrently-running dispatcher pass (or a peer
// process) cannot double-claim the same row; this is the fanout pass's
// move-then-publish single-writer invariant.
func (db *DB) ClaimTorrentsForProcessing(readyStage, processingStage string) ([]*Torrent, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.Query(`
		SELECT id, name, created_at, last_modified_at, stage, package_files_count
		FROM torrents WHERE stage = $1
		ORDER BY created_at ASC
		FOR UPDATE SKIP LOCKED
	`, readyStage)
	if err != nil {
		return nil, err
	}
	var claimed []*Torrent
	for rows.Next() {
		t, err := scanTorrentRows(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		claimed = append(claimed, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, t := range claimed {
		if _, err := tx.Exec(`
			UPDATE torrents SET stage = $1, last_modified_at = now() WHERE id = $2
		`, processingStage, t.ID); err != nil {
			return nil, err
		}
		t.Stage = processingStage
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return claimed, nil
}

// SetTorrentStage advances a torrent to a new stage without touching its
// package_files_count.
func (db *DB) SetTorrentStage(id uuid.UUID, stage string) error {
	_, err := db.Exec(`
		UPDATE torrents SET stage = $1, last_modified_at = now() WHERE id = $2
	`, stage, id)
	return err
}

// CompleteTorrentPackaging records the discovered package file count and
// advances the torrent to stage in one write, used after packaging or
// listing finishes enumerating a torrent's chunks.
func (db *DB) CompleteTorrentPackaging(id uuid.UUID, stage string, packageFilesCount int) error {
	_, err := db.Exec(`
		UPDATE torrents SET stage = $1, package_files_count = $2, last_modified_at = now()
		WHERE id = $3
	`, stage, packageFilesCount, id)
	return err
}

// CreatePackageFile inserts a package file row owned by torrentID.
func (db *DB) CreatePackageFile(torrentID uuid.UUID, filename string, filesize int64, sha256, stage string) (*PackageFile, error) {
	id := uuid.New()
	_, err := db.Exec(`
		INSERT INTO package_files (id, torrent_id, filename, filesize, sha256, stage)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (torrent_id, filename) DO NOTHING
	`, id, torrentID, filename, filesize, sha256, stage)
	if err != nil {
		return nil, err
	}
	return &PackageFile{ID: id, TorrentID: torrentID, Filename: filename, Filesize: filesize, SHA256: sha256, Stage: stage}, nil
}

// GetPackageFilesByTorrent returns a torrent's chunks ordered by filename
// ascending — the required consumption order during extraction.
func (db *DB) GetPackageFilesByTorrent(torrentID uuid.UUID) ([]*PackageFile, error) {
	rows, err := db.Query(`
		SELECT id, torrent_id, filename, filesize, sha256, stage
		FROM package_files WHERE torrent_id = $1 ORDER BY filename ASC
	`, torrentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PackageFile
	for rows.Next() {
		pf, err := scanPackageFileRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pf)
	}
	return out, rows.Err()
}

// CountPackageFilesByTorrentAndStage counts a torrent's chunks currently
// at stage.
func (db *DB) CountPackageFilesByTorrentAndStage(torrentID uuid.UUID, stage string) (int, error) {
	var n int
	err := db.QueryRow(`
		SELECT count(*) FROM package_files WHERE torrent_id = $1 AND stage = $2
	`, torrentID, stage).Scan(&n)
	return n, err
}

// DeletePackageFilesByTorrent deletes every chunk row owned by torrentID,
// returning the number removed. Used by the one-time crash-recovery query
// that cleans up a torrent stuck mid-packaging with no chunks recorded.
func (db *DB) DeletePackageFilesByTorrent(torrentID uuid.UUID) (int64, error) {
	res, err := db.Exec(`DELETE FROM package_files WHERE torrent_id = $1`, torrentID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ClaimPackageFilesForProcessing is the package-file analogue of
// ClaimTorrentsForProcessing.
func (db *DB) ClaimPackageFilesForProcessing(readyStage, processingStage string) ([]*PackageFile, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.Query(`
		SELECT id, torrent_id, filename, filesize, sha256, stage
		FROM package_files WHERE stage = $1
		ORDER BY filename ASC
		FOR UPDATE SKIP LOCKED
	`, readyStage)
	if err != nil {
		return nil, err
	}
	var claimed []*PackageFile
	for rows.Next() {
		pf, err := scanPackageFileRows(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		claimed = append(claimed, pf)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, pf := range claimed {
		if _, err := tx.Exec(`UPDATE package_files SET stage = $1 WHERE id = $2`, processingStage, pf.ID); err != nil {
			return nil, err
		}
		pf.Stage = processingStage
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return claimed, nil
}

// ResetPackageFilesStage bulk-moves every chunk currently at from back to
// to, used by crash-recovery one-time query functions that reclaim rows
// a prior process left mid-processing.
func (db *DB) ResetPackageFilesStage(from, to string) error {
	_, err := db.Exec(`UPDATE package_files SET stage = $1 WHERE stage = $2`, to, from)
	return err
}

// SetPackageFileStage moves a single chunk to a new stage.
func (db *DB) SetPackageFileStage(id uuid.UUID, stage string) error {
	_, err := db.Exec(`UPDATE package_files SET stage = $1 WHERE id = $2`, stage, id)
	return err
}

// SetTorrentError upserts the error row for (torrentID, errType): a fresh
// row starts at count=1, retry_delay=2; an existing row advances time,
// increments count, and squares retry_delay (clamped to
// MaxRetryDelaySeconds). Either way the torrent moves to the Error stage.
func (db *DB) SetTorrentError(torrentID uuid.UUID, errType int64, message, stage string) error {
	_, err := db.Exec(`
		INSERT INTO torrent_errors (id, torrent_id, type, message, time, stage, count, retry_delay)
		VALUES ($1, $2, $3, $4, now(), $5, 1, 2)
		ON CONFLICT (torrent_id, type) DO UPDATE SET
			message = EXCLUDED.message,
			time = now(),
			stage = EXCLUDED.stage,
			count = torrent_errors.count + 1,
			retry_delay = LEAST(torrent_errors.retry_delay * torrent_errors.retry_delay, $6)
	`, uuid.New(), torrentID, errType, message, stage, MaxRetryDelaySeconds)
	if err != nil {
		return err
	}
	return db.SetTorrentStage(torrentID, "Error")
}

// SetPackageFileError is the package-file analogue of SetTorrentError.
func (db *DB) SetPackageFileError(packageFileID uuid.UUID, errType int64, message, stage string) error {
	_, err := db.Exec(`
		INSERT INTO package_file_errors (id, package_file_id, type, message, time, stage, count, retry_delay)
		VALUES ($1, $2, $3, $4, now(), $5, 1, 2)
		ON CONFLICT (package_file_id, type) DO UPDATE SET
			message = EXCLUDED.message,
			time = now(),
			stage = EXCLUDED.stage,
			count = package_file_errors.count + 1,
			retry_delay = LEAST(package_file_errors.retry_delay * package_file_errors.retry_delay, $6)
	`, uuid.New(), packageFileID, errType, message, stage, MaxRetryDelaySeconds)
	if err != nil {
		return err
	}
	return db.SetPackageFileStage(packageFileID, "Error")
}

// GetLatestTorrentError returns the newest error row for torrentID, or
// sql.ErrNoRows if it has none.
func (db *DB) GetLatestTorrentError(torrentID uuid.UUID) (*TorrentError, error) {
	row := db.QueryRow(`
		SELECT id, torrent_id, type, message, time, stage, count, retry_delay
		FROM torrent_errors WHERE torrent_id = $1 ORDER BY time DESC LIMIT 1
	`, torrentID)
	e := &TorrentError{}
	err := row.Scan(&e.ID, &e.TorrentID, &e.Type, &e.Message, &e.Time, &e.Stage, &e.Count, &e.RetryDelay)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetLatestPackageFileError returns the newest error row for
// packageFileID, or sql.ErrNoRows if it has none.
func (db *DB) GetLatestPackageFileError(packageFileID uuid.UUID) (*PackageFileError, error) {
	row := db.QueryRow(`
		SELECT id, package_file_id, type, message, time, stage, count, retry_delay
		FROM package_file_errors WHERE package_file_id = $1 ORDER BY time DESC LIMIT 1
	`, packageFileID)
	e := &PackageFileError{}
	err := row.Scan(&e.ID, &e.PackageFileID, &e.Type, &e.Message, &e.Time, &e.Stage, &e.Count, &e.RetryDelay)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetTorrentsInErrorStage returns every torrent parked at the Error
// stage, for the periodic retry scheduler to inspect.
func (db *DB) GetTorrentsInErrorStage() ([]*Torrent, error) {
	return db.GetTorrentsByStage("Error")
}

// GetPackageFilesInErrorStage returns every package file parked at the
// Error stage.
func (db *DB) GetPackageFilesInErrorStage() ([]*PackageFile, error) {
	rows, err := db.Query(`
		SELECT id, torrent_id, filename, filesize, sha256, stage
		FROM package_files WHERE stage = 'Error'
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PackageFile
	for rows.Next() {
		pf, err := scanPackageFileRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pf)
	}
	return out, rows.Err()
}

func scanTorrent(row *sql.Row) (*Torrent, error) {
	t := &Torrent{}
	err := row.Scan(&t.ID, &t.Name, &t.CreatedAt, &t.LastModifiedAt, &t.Stage, &t.PackageFilesCount)
	if err != nil {
		return nil, err
	}
	return t, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTorrentRows(rows rowScanner) (*Torrent, error) {
	t := &Torrent{}
	err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt, &t.LastModifiedAt, &t.Stage, &t.PackageFilesCount)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func scanPackageFileRows(rows rowScanner) (*PackageFile, error) {
	pf := &PackageFile{}
	err := rows.Scan(&pf.ID, &pf.TorrentID, &pf.Filename, &pf.Filesize, &pf.SHA256, &pf.Stage)
	if err != nil {
		return nil, err
	}
	return pf, nil
}
