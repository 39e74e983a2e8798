// Package db is the persistent session store: sync sessions, per-file
// transfer records, and errors, in a local SQLite file.
package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"ncsync/pkg/models"
)

// DB wraps the SQLite connection.
type DB struct {
	*sql.DB
}

// New opens (creating if needed) the sync database at path.
func New(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	db := &DB{sqlDB}
	if err := db.initialize(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) initialize() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sync_reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sync_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			files_transferred INTEGER DEFAULT 0,
			duplicates_found INTEGER DEFAULT 0,
			duplicates_renamed INTEGER DEFAULT 0,
			errors_count INTEGER DEFAULT 0,
			skipped_files INTEGER DEFAULT 0,
			already_processed INTEGER DEFAULT 0,
			total_size_bytes INTEGER DEFAULT 0,
			duration_seconds REAL,
			source_path TEXT,
			dest_path TEXT,
			status TEXT,
			resumed_from_id INTEGER
		);
		CREATE TABLE IF NOT EXISTS transferred_files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sync_id INTEGER,
			source_file TEXT,
			dest_file TEXT,
			file_hash TEXT,
			file_size INTEGER,
			transfer_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			is_duplicate BOOLEAN DEFAULT FALSE,
			processing_status TEXT DEFAULT 'COMPLETED',
			FOREIGN KEY (sync_id) REFERENCES sync_reports (id)
		);
		CREATE TABLE IF NOT EXISTS sync_errors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sync_id INTEGER,
			error_message TEXT,
			file_path TEXT,
			error_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (sync_id) REFERENCES sync_reports (id)
		);
		CREATE INDEX IF NOT EXISTS idx_transferred_sync ON transferred_files(sync_id, processing_status);
		CREATE INDEX IF NOT EXISTS idx_transferred_source ON transferred_files(source_file);
		CREATE INDEX IF NOT EXISTS idx_reports_paths ON sync_reports(source_path, dest_path, status);
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
	`)
	return err
}

// StartSession opens a new RUNNING session row and returns its id.
// resumedFrom is the prior session id, or zero for a fresh run.
func (db *DB) StartSession(sourcePath, destPath string, resumedFrom int64) (int64, error) {
	var resumed sql.NullInt64
	if resumedFrom > 0 {
		resumed = sql.NullInt64{Int64: resumedFrom, Valid: true}
	}
	res, err := db.Exec(`
		INSERT INTO sync_reports (source_path, dest_path, status, resumed_from_id)
		VALUES (?, ?, ?, ?)
	`, sourcePath, destPath, models.StatusRunning, resumed)
	if err != nil {
		return 0, fmt.Errorf("start session: %w", err)
	}
	return res.LastInsertId()
}

// UpdateSession writes the final counters, duration and status of a session.
func (db *DB) UpdateSession(syncID int64, c models.Counters, durationSeconds float64, status string) error {
	_, err := db.Exec(`
		UPDATE sync_reports SET
			files_transferred = ?,
			duplicates_found = ?,
			duplicates_renamed = ?,
			errors_count = ?,
			skipped_files = ?,
			already_processed = ?,
			total_size_bytes = ?,
			duration_seconds = ?,
			status = ?
		WHERE id = ?
	`, c.FilesTransferred, c.DuplicatesFound, c.DuplicatesRenamed, c.ErrorsCount,
		c.SkippedFiles, c.AlreadyProcessed, c.TotalSizeBytes, durationSeconds, status, syncID)
	if err != nil {
		return fmt.Errorf("update session %d: %w", syncID, err)
	}
	return nil
}

// LogTransfer appends one transfer record.
func (db *DB) LogTransfer(syncID int64, sourceFile, destFile, fileHash string, fileSize int64, isDuplicate bool, status string) error {
	_, err := db.Exec(`
		INSERT INTO transferred_files
		(sync_id, source_file, dest_file, file_hash, file_size, is_duplicate, processing_status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, syncID, sourceFile, destFile, fileHash, fileSize, isDuplicate, status)
	if err != nil {
		return fmt.Errorf("log transfer %s: %w", sourceFile, err)
	}
	return nil
}

// LogError appends one error record. filePath may be empty.
func (db *DB) LogError(syncID int64, message, filePath string) error {
	var path sql.NullString
	if filePath != "" {
		path = sql.NullString{String: filePath, Valid: true}
	}
	_, err := db.Exec(`
		INSERT INTO sync_errors (sync_id, error_message, file_path)
		VALUES (?, ?, ?)
	`, syncID, message, path)
	if err != nil {
		return fmt.Errorf("log error: %w", err)
	}
	return nil
}

// FindIncompleteSession returns the most recent RUNNING or INTERRUPTED
// session for the (source, dest) pair, or zero when there is none.
func (db *DB) FindIncompleteSession(sourcePath, destPath string) (int64, error) {
	var id int64
	err := db.QueryRow(`
		SELECT id FROM sync_reports
		WHERE source_path = ? AND dest_path = ? AND status IN (?, ?)
		ORDER BY sync_date DESC LIMIT 1
	`, sourcePath, destPath, models.StatusRunning, models.StatusInterrupted).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("find incomplete session: %w", err)
	}
	return id, nil
}

// MarkInterrupted moves a session to INTERRUPTED.
func (db *DB) MarkInterrupted(syncID int64) error {
	_, err := db.Exec(`UPDATE sync_reports SET status = ? WHERE id = ?`,
		models.StatusInterrupted, syncID)
	if err != nil {
		return fmt.Errorf("mark session %d interrupted: %w", syncID, err)
	}
	return nil
}

// ProcessedFiles returns the distinct source paths with COMPLETED records in
// the given sessions.
func (db *DB) ProcessedFiles(syncIDs []int64) (map[string]struct{}, error) {
	processed := make(map[string]struct{})
	if len(syncIDs) == 0 {
		return processed, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(syncIDs)), ",")
	args := make([]interface{}, 0, len(syncIDs)+1)
	for _, id := range syncIDs {
		args = append(args, id)
	}
	args = append(args, models.TransferCompleted)

	rows, err := db.Query(fmt.Sprintf(`
		SELECT DISTINCT source_file FROM transferred_files
		WHERE sync_id IN (%s) AND processing_status = ?
	`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("load processed files: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		processed[path] = struct{}{}
	}
	return processed, rows.Err()
}

// AllProcessedFilesForPath returns every COMPLETED transfer from prior
// sessions on the same (source, dest) pair, optionally excluding one session.
// The destination path and hash are included so resume can seed the
// duplicate registry without re-scanning the remote tree.
func (db *DB) AllProcessedFilesForPath(sourcePath, destPath string, excludeSyncID int64) ([]models.ProcessedFile, error) {
	query := `
		SELECT DISTINCT tf.source_file, tf.dest_file, tf.file_hash
		FROM transferred_files tf
		JOIN sync_reports sr ON tf.sync_id = sr.id
		WHERE sr.source_path = ? AND sr.dest_path = ?
		AND tf.processing_status = ?
	`
	args := []interface{}{sourcePath, destPath, models.TransferCompleted}
	if excludeSyncID > 0 {
		query += ` AND tf.sync_id != ?`
		args = append(args, excludeSyncID)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("load prior transfers: %w", err)
	}
	defer rows.Close()

	var files []models.ProcessedFile
	for rows.Next() {
		var f models.ProcessedFile
		if err := rows.Scan(&f.SourceFile, &f.DestFile, &f.FileHash); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// RecentSessions returns the newest sessions, most recent first.
func (db *DB) RecentSessions(limit int) ([]models.SyncSession, error) {
	rows, err := db.Query(`
		SELECT id, sync_date, files_transferred, duplicates_found, duplicates_renamed,
			errors_count, skipped_files, already_processed, total_size_bytes,
			COALESCE(duration_seconds, 0), source_path, dest_path, status,
			COALESCE(resumed_from_id, 0)
		FROM sync_reports
		ORDER BY sync_date DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("load recent sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.SyncSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// SessionDetail returns one session with its file totals and error list.
func (db *DB) SessionDetail(syncID int64) (*models.SessionDetail, error) {
	row := db.QueryRow(`
		SELECT id, sync_date, files_transferred, duplicates_found, duplicates_renamed,
			errors_count, skipped_files, already_processed, total_size_bytes,
			COALESCE(duration_seconds, 0), source_path, dest_path, status,
			COALESCE(resumed_from_id, 0)
		FROM sync_reports WHERE id = ?
	`, syncID)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %d not found", syncID)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %d: %w", syncID, err)
	}

	detail := &models.SessionDetail{Session: session}
	err = db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(file_size), 0) FROM transferred_files
		WHERE sync_id = ? AND processing_status = ?
	`, syncID, models.TransferCompleted).Scan(&detail.FileCount, &detail.TotalBytes)
	if err != nil {
		return nil, fmt.Errorf("load session %d file totals: %w", syncID, err)
	}

	rows, err := db.Query(`
		SELECT id, sync_id, error_message, COALESCE(file_path, ''), error_date
		FROM sync_errors WHERE sync_id = ? ORDER BY error_date
	`, syncID)
	if err != nil {
		return nil, fmt.Errorf("load session %d errors: %w", syncID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var e models.SyncError
		if err := rows.Scan(&e.ID, &e.SyncID, &e.Message, &e.FilePath, &e.ErrorDate); err != nil {
			return nil, err
		}
		detail.Errors = append(detail.Errors, e)
	}
	return detail, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (models.SyncSession, error) {
	var s models.SyncSession
	err := row.Scan(
		&s.ID, &s.SyncDate, &s.FilesTransferred, &s.DuplicatesFound, &s.DuplicatesRenamed,
		&s.ErrorsCount, &s.SkippedFiles, &s.AlreadyProcessed, &s.TotalSizeBytes,
		&s.DurationSeconds, &s.SourcePath, &s.DestPath, &s.Status, &s.ResumedFromID,
	)
	return s, err
}
