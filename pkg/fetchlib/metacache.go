package fetchlib

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/archfetch/archfetch/pkg/logger"
)

// ArchiveDescription is the payload cached per archive identifier: the
// archive's file listing as returned by the upstream metadata endpoint.
type ArchiveDescription struct {
	Identifier string      `json:"identifier"`
	Title      string      `json:"title,omitempty"`
	Files      []FileEntry `json:"files"`
}

// FileEntry is one downloadable file within an archive description.
type FileEntry struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
	Checksum string `json:"checksum,omitempty"`
}

// CachedMetadata is one cached archive description with its lifecycle
// stamps. Pinned entries are never auto-purged.
type CachedMetadata struct {
	Identifier string          `json:"identifier"`
	Payload    json.RawMessage `json:"payload"`
	// ETag enables conditional re-fetch of the description.
	ETag    string `json:"etag,omitempty"`
	Version int    `json:"version"`
	Pinned  bool   `json:"pinned"`
	// FileCount and TotalSize are denormalized from the payload for
	// fast listing.
	FileCount int64     `json:"file_count"`
	TotalSize int64     `json:"total_size"`
	CachedAt  time.Time `json:"cached_at"`
	// LastAccessed is bumped on every read and drives purging.
	LastAccessed time.Time `json:"last_accessed"`
	// LastSynced is the last successful upstream re-validation.
	// Nil means never synced.
	LastSynced *time.Time `json:"last_synced,omitempty"`
}

// Description decodes the cached payload.
func (e *CachedMetadata) Description() (*ArchiveDescription, error) {
	var d ArchiveDescription
	if err := json.Unmarshal(e.Payload, &d); err != nil {
		return nil, fmt.Errorf("decode archive description: %w", err)
	}
	return &d, nil
}

// MetadataURLFunc maps an archive identifier to its upstream
// description endpoint.
type MetadataURLFunc func(identifier string) string

// MetadataCache stores archive descriptions keyed by identifier with
// staleness and pinning semantics. It is an optimization, not a source
// of truth: store and serialization failures on the read path degrade
// to cache-miss behavior instead of failing the caller.
type MetadataCache struct {
	store       *Store
	client      *http.Client
	metadataURL MetadataURLFunc
	l           logger.Logger
	now         func() time.Time
}

// NewMetadataCache creates a cache over the given store. metadataURL
// may be nil if Refresh is never used.
func NewMetadataCache(store *Store, client *http.Client, metadataURL MetadataURLFunc, l logger.Logger) *MetadataCache {
	if client == nil {
		client = http.DefaultClient
	}
	if l == nil {
		l = logger.NewNopLogger()
	}
	return &MetadataCache{
		store:       store,
		client:      client,
		metadataURL: metadataURL,
		l:           l,
		now:         time.Now,
	}
}

// Get returns the cached entry, transparently bumping LastAccessed.
// A missing identifier returns ErrCacheMiss; callers should treat that
// as an ordinary outcome, not an exceptional one.
func (c *MetadataCache) Get(identifier string) (*CachedMetadata, error) {
	e, err := c.store.GetArchive(identifier)
	if err == ErrCacheMiss {
		return nil, ErrCacheMiss
	}
	if err != nil {
		c.l.Warning("metadata cache read for %s degraded to miss: %s", identifier, err.Error())
		return nil, ErrCacheMiss
	}
	now := c.now()
	if err := c.store.TouchArchiveAccess(identifier, now); err != nil {
		c.l.Warning("failed to bump access time for %s: %s", identifier, err.Error())
	}
	e.LastAccessed = now
	return e, nil
}

// Put inserts or overwrites the description for the identifier,
// stamping CachedAt, LastSynced and LastAccessed to now. The file
// count and total size are denormalized from the payload.
func (c *MetadataCache) Put(identifier string, description *ArchiveDescription, etag string) error {
	payload, err := json.Marshal(description)
	if err != nil {
		return fmt.Errorf("encode archive description: %w", err)
	}
	now := c.now()
	version := 1
	pinned := false
	if prev, err := c.store.GetArchive(identifier); err == nil {
		version = prev.Version + 1
		pinned = prev.Pinned
	}
	var totalSize int64
	for _, f := range description.Files {
		totalSize += f.Size
	}
	return c.store.PutArchive(&CachedMetadata{
		Identifier:   identifier,
		Payload:      payload,
		ETag:         etag,
		Version:      version,
		Pinned:       pinned,
		FileCount:    int64(len(description.Files)),
		TotalSize:    totalSize,
		CachedAt:     now,
		LastAccessed: now,
		LastSynced:   &now,
	})
}

// IsStale reports whether the entry needs upstream re-validation:
// never synced, or synced longer than maxAge ago.
func (c *MetadataCache) IsStale(e *CachedMetadata, maxAge time.Duration) bool {
	if e.LastSynced == nil {
		return true
	}
	return c.now().Sub(*e.LastSynced) > maxAge
}

// ShouldPurge reports whether a sweep may remove the entry: not pinned
// and not accessed within maxAge.
func (c *MetadataCache) ShouldPurge(e *CachedMetadata, maxAge time.Duration) bool {
	if e.Pinned {
		return false
	}
	return c.now().Sub(e.LastAccessed) > maxAge
}

// PurgeStale deletes every entry satisfying ShouldPurge and returns
// the count removed. Pinned entries are exempt independent of age.
// The staleness check runs inside the store's delete statement, so an
// entry accessed concurrently is not swept.
func (c *MetadataCache) PurgeStale(maxAge time.Duration) (int, error) {
	return c.store.PurgeArchives(c.now().Add(-maxAge))
}

// TogglePin flips the entry's pin state without touching timestamps,
// returning the new state.
func (c *MetadataCache) TogglePin(identifier string) (bool, error) {
	return c.store.TogglePin(identifier)
}

// Stats returns cache counters for reporting.
func (c *MetadataCache) Stats() (ArchiveStats, error) {
	return c.store.Stats()
}

// PinnedIdentifiers lists the pinned archives, the set kept fresh by
// the recurring refresh job.
func (c *MetadataCache) PinnedIdentifiers() []string {
	ids, err := c.store.PinnedIdentifiers()
	if err != nil {
		c.l.Warning("failed to list pinned archives: %s", err.Error())
		return nil
	}
	return ids
}

// RecordCompletion marks the archive's cached entry as freshly synced
// after a download task belonging to it finished. Archives that were
// never fetched are left alone.
func (c *MetadataCache) RecordCompletion(identifier string) {
	if identifier == "" {
		return
	}
	if err := c.store.TouchArchiveSynced(identifier, c.now()); err != nil {
		c.l.Warning("failed to record completion for %s: %s", identifier, err.Error())
	}
}

// Refresh re-validates the cached description with a conditional
// request using the stored ETag. A "not modified" response only bumps
// LastSynced; a changed response overwrites the entry with the fresh
// payload and new ETag.
func (c *MetadataCache) Refresh(ctx context.Context, identifier string) error {
	if c.metadataURL == nil {
		return fmt.Errorf("no metadata endpoint configured")
	}
	entry, err := c.store.GetArchive(identifier)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.metadataURL(identifier), nil)
	if err != nil {
		return err
	}
	req.Header.Set(USER_AGENT_KEY, DEF_USER_AGENT)
	if entry.ETag != "" {
		req.Header.Set(IF_NONE_MATCH_KEY, entry.ETag)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return NewTransferError(CategoryNetwork, "refresh", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return c.store.TouchArchiveSynced(identifier, c.now())
	case resp.StatusCode == http.StatusOK:
		var d ArchiveDescription
		if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
			return fmt.Errorf("decode refreshed description: %w", err)
		}
		return c.Put(identifier, &d, resp.Header.Get("Etag"))
	default:
		return classifyStatus(resp, "refresh")
	}
}
