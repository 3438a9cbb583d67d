package fetchlib

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the persistent row store behind tasks, cached archive
// metadata, and verified identifiers. Every write is a single
// statement (or one transaction), so a crash never leaves a
// half-written status/partial_bytes pair visible to a resuming
// process.
type Store struct {
	db *sql.DB
}

const storeSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	id                  TEXT PRIMARY KEY,
	archive_id          TEXT NOT NULL DEFAULT '',
	url                 TEXT NOT NULL,
	destination         TEXT NOT NULL,
	headers             TEXT NOT NULL DEFAULT '[]',
	partial_bytes       INTEGER NOT NULL DEFAULT 0,
	total_bytes         INTEGER NOT NULL DEFAULT 0,
	etag                TEXT NOT NULL DEFAULT '',
	last_modified       TEXT NOT NULL DEFAULT '',
	checksum            TEXT NOT NULL DEFAULT '',
	priority            INTEGER NOT NULL DEFAULT 1,
	network_requirement TEXT NOT NULL DEFAULT 'any',
	not_before          INTEGER NOT NULL DEFAULT 0,
	status              TEXT NOT NULL,
	retry_count         INTEGER NOT NULL DEFAULT 0,
	error_message       TEXT NOT NULL DEFAULT '',
	reason              TEXT NOT NULL DEFAULT '',
	date_added          INTEGER NOT NULL,
	seq                 INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);

CREATE TABLE IF NOT EXISTS archives (
	identifier    TEXT PRIMARY KEY,
	payload       BLOB NOT NULL,
	etag          TEXT NOT NULL DEFAULT '',
	version       INTEGER NOT NULL DEFAULT 1,
	pinned        INTEGER NOT NULL DEFAULT 0,
	file_count    INTEGER NOT NULL DEFAULT 0,
	total_size    INTEGER NOT NULL DEFAULT 0,
	cached_at     INTEGER NOT NULL,
	last_accessed INTEGER NOT NULL,
	last_synced   INTEGER
);

CREATE TABLE IF NOT EXISTS identifiers (
	key         TEXT PRIMARY KEY,
	canonical   TEXT NOT NULL,
	strategy    TEXT NOT NULL,
	verified_at INTEGER NOT NULL
);
`

// OpenStore opens (creating if necessary) the state database at the
// given path.
func OpenStore(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// unixOrZero converts a time to unix nanoseconds, preserving the zero
// value as 0.
func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func timeOrZero(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// SaveTask inserts or overwrites the task row in one statement.
func (s *Store) SaveTask(t *Task) error {
	headers, err := json.Marshal(t.Headers)
	if err != nil {
		return fmt.Errorf("encode headers: %w", err)
	}
	reason := ""
	if t.Reason != nil {
		b, err := json.Marshal(t.Reason)
		if err != nil {
			return fmt.Errorf("encode reason: %w", err)
		}
		reason = string(b)
	}
	_, err = s.db.Exec(`
		INSERT INTO tasks (
			id, archive_id, url, destination, headers,
			partial_bytes, total_bytes, etag, last_modified, checksum,
			priority, network_requirement, not_before, status,
			retry_count, error_message, reason, date_added, seq
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			archive_id = excluded.archive_id,
			url = excluded.url,
			destination = excluded.destination,
			headers = excluded.headers,
			partial_bytes = excluded.partial_bytes,
			total_bytes = excluded.total_bytes,
			etag = excluded.etag,
			last_modified = excluded.last_modified,
			checksum = excluded.checksum,
			priority = excluded.priority,
			network_requirement = excluded.network_requirement,
			not_before = excluded.not_before,
			status = excluded.status,
			retry_count = excluded.retry_count,
			error_message = excluded.error_message,
			reason = excluded.reason,
			date_added = excluded.date_added,
			seq = excluded.seq
	`,
		t.ID, t.ArchiveID, t.URL, t.Destination, string(headers),
		t.PartialBytes, t.TotalBytes, t.ETag, t.LastModified, t.Checksum,
		int(t.Priority), string(t.NetworkRequirement), unixOrZero(t.NotBefore), string(t.Status),
		t.RetryCount, t.ErrorMessage, reason, unixOrZero(t.DateAdded), t.Seq,
	)
	if err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}
	return nil
}

func scanTask(row interface{ Scan(...any) error }) (*Task, error) {
	var (
		t                    Task
		headers, reason      string
		priority             int
		netReq, status       string
		notBefore, dateAdded int64
	)
	err := row.Scan(
		&t.ID, &t.ArchiveID, &t.URL, &t.Destination, &headers,
		&t.PartialBytes, &t.TotalBytes, &t.ETag, &t.LastModified, &t.Checksum,
		&priority, &netReq, &notBefore, &status,
		&t.RetryCount, &t.ErrorMessage, &reason, &dateAdded, &t.Seq,
	)
	if err != nil {
		return nil, err
	}
	t.Priority = Priority(priority)
	t.NetworkRequirement = NetworkRequirement(netReq)
	t.Status = Status(status)
	t.NotBefore = timeOrZero(notBefore)
	t.DateAdded = timeOrZero(dateAdded)
	if headers != "" && headers != "[]" {
		if err := json.Unmarshal([]byte(headers), &t.Headers); err != nil {
			return nil, fmt.Errorf("decode headers: %w", err)
		}
	}
	if reason != "" {
		var r FailureReason
		if err := json.Unmarshal([]byte(reason), &r); err != nil {
			return nil, fmt.Errorf("decode reason: %w", err)
		}
		t.Reason = &r
	}
	return &t, nil
}

const taskColumns = `id, archive_id, url, destination, headers,
	partial_bytes, total_bytes, etag, last_modified, checksum,
	priority, network_requirement, not_before, status,
	retry_count, error_message, reason, date_added, seq`

// GetTask returns the task row or ErrTaskNotFound.
func (s *Store) GetTask(id string) (*Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, ErrTaskNotFound
	}
	return t, err
}

// ListTasks returns all task rows in enqueue order.
func (s *Store) ListTasks() ([]*Task, error) {
	rows, err := s.db.Query(`SELECT ` + taskColumns + ` FROM tasks ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// DeleteTask removes the task row. Deleting a missing row is a no-op.
func (s *Store) DeleteTask(id string) error {
	_, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	return err
}

// MaxSeq returns the highest enqueue sequence number seen so far.
func (s *Store) MaxSeq() (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(seq) FROM tasks`).Scan(&seq); err != nil {
		return 0, err
	}
	return seq.Int64, nil
}

// PutArchive inserts or overwrites the archive metadata row.
func (s *Store) PutArchive(e *CachedMetadata) error {
	var lastSynced sql.NullInt64
	if e.LastSynced != nil {
		lastSynced = sql.NullInt64{Int64: e.LastSynced.UnixNano(), Valid: true}
	}
	_, err := s.db.Exec(`
		INSERT INTO archives (
			identifier, payload, etag, version, pinned,
			file_count, total_size, cached_at, last_accessed, last_synced
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identifier) DO UPDATE SET
			payload = excluded.payload,
			etag = excluded.etag,
			version = excluded.version,
			pinned = excluded.pinned,
			file_count = excluded.file_count,
			total_size = excluded.total_size,
			cached_at = excluded.cached_at,
			last_accessed = excluded.last_accessed,
			last_synced = excluded.last_synced
	`,
		e.Identifier, []byte(e.Payload), e.ETag, e.Version, e.Pinned,
		e.FileCount, e.TotalSize, unixOrZero(e.CachedAt), unixOrZero(e.LastAccessed), lastSynced,
	)
	if err != nil {
		return fmt.Errorf("put archive %s: %w", e.Identifier, err)
	}
	return nil
}

// GetArchive returns the archive row or ErrCacheMiss.
func (s *Store) GetArchive(identifier string) (*CachedMetadata, error) {
	var (
		e                      CachedMetadata
		payload                []byte
		cachedAt, lastAccessed int64
		lastSynced             sql.NullInt64
	)
	err := s.db.QueryRow(`
		SELECT identifier, payload, etag, version, pinned,
			file_count, total_size, cached_at, last_accessed, last_synced
		FROM archives WHERE identifier = ?
	`, identifier).Scan(
		&e.Identifier, &payload, &e.ETag, &e.Version, &e.Pinned,
		&e.FileCount, &e.TotalSize, &cachedAt, &lastAccessed, &lastSynced,
	)
	if err == sql.ErrNoRows {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("get archive %s: %w", identifier, err)
	}
	e.Payload = payload
	e.CachedAt = timeOrZero(cachedAt)
	e.LastAccessed = timeOrZero(lastAccessed)
	if lastSynced.Valid {
		t := time.Unix(0, lastSynced.Int64)
		e.LastSynced = &t
	}
	return &e, nil
}

// TouchArchiveAccess bumps last_accessed for the identifier.
func (s *Store) TouchArchiveAccess(identifier string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE archives SET last_accessed = ? WHERE identifier = ?`,
		at.UnixNano(), identifier)
	return err
}

// TouchArchiveSynced bumps last_synced (and last_accessed) for the
// identifier.
func (s *Store) TouchArchiveSynced(identifier string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE archives SET last_synced = ?, last_accessed = ? WHERE identifier = ?`,
		at.UnixNano(), at.UnixNano(), identifier)
	return err
}

// TogglePin flips the pin flag and returns the new state. Timestamps
// are untouched.
func (s *Store) TogglePin(identifier string) (bool, error) {
	res, err := s.db.Exec(`UPDATE archives SET pinned = NOT pinned WHERE identifier = ?`, identifier)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, ErrCacheMiss
	}
	var pinned bool
	err = s.db.QueryRow(`SELECT pinned FROM archives WHERE identifier = ?`, identifier).Scan(&pinned)
	return pinned, err
}

// PurgeArchives deletes unpinned rows whose last access is older than
// the cutoff, returning the number removed. The staleness re-check and
// the delete are one statement, so a concurrent access bump cannot be
// lost between check and delete.
func (s *Store) PurgeArchives(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM archives WHERE pinned = 0 AND last_accessed < ?`,
		cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("purge archives: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// PinnedIdentifiers lists the identifiers of pinned archives.
func (s *Store) PinnedIdentifiers() ([]string, error) {
	rows, err := s.db.Query(`SELECT identifier FROM archives WHERE pinned = 1 ORDER BY identifier`)
	if err != nil {
		return nil, fmt.Errorf("list pinned: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteArchive removes one archive row regardless of age or pin.
func (s *Store) DeleteArchive(identifier string) error {
	_, err := s.db.Exec(`DELETE FROM archives WHERE identifier = ?`, identifier)
	return err
}

// ArchiveStats summarizes the archives table for reporting.
type ArchiveStats struct {
	Entries    int   `json:"entries"`
	Pinned     int   `json:"pinned"`
	TotalFiles int64 `json:"total_files"`
	TotalSize  int64 `json:"total_size"`
}

// Stats returns denormalized archive cache counters.
func (s *Store) Stats() (ArchiveStats, error) {
	var st ArchiveStats
	err := s.db.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(pinned), 0),
			COALESCE(SUM(file_count), 0),
			COALESCE(SUM(total_size), 0)
		FROM archives
	`).Scan(&st.Entries, &st.Pinned, &st.TotalFiles, &st.TotalSize)
	return st, err
}

// GetIdentifier returns the canonical form a key was verified to, and
// the strategy that verified it.
func (s *Store) GetIdentifier(key string) (canonical, strategy string, ok bool, err error) {
	err = s.db.QueryRow(`SELECT canonical, strategy FROM identifiers WHERE key = ?`, key).
		Scan(&canonical, &strategy)
	if err == sql.ErrNoRows {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}
	return canonical, strategy, true, nil
}

// PutIdentifiers records every attempted key against the canonical
// identifier in one transaction, so later lookups for any variant hit
// directly.
func (s *Store) PutIdentifiers(keys map[string]string, canonical string, at time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for key, strategy := range keys {
		if _, err := tx.Exec(`
			INSERT INTO identifiers (key, canonical, strategy, verified_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				canonical = excluded.canonical,
				strategy = excluded.strategy,
				verified_at = excluded.verified_at
		`, key, canonical, strategy, at.UnixNano()); err != nil {
			tx.Rollback()
			return fmt.Errorf("put identifier %s: %w", key, err)
		}
	}
	return tx.Commit()
}
