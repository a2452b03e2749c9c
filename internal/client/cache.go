package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/NevessSt/Trading-bots-sub000/pkg/contracts/domain"
)

// ErrCacheCorrupt means the cache file exists but cannot be read or
// parsed. Callers treat it as "no cache": it forces a remote check and
// is logged, never fatal.
var ErrCacheCorrupt = errors.New("client: cache corrupt")

// Verdict is the persisted outcome of the last successful issuer check.
type Verdict struct {
	Valid       bool            `json:"valid"`
	Reason      string          `json:"reason,omitempty"`
	LicenseData *domain.License `json:"license_data,omitempty"`
}

// CacheEntry is the client-local durable cache document: the last
// verdict, the revocation snapshot current at fetch time, and the
// freshness metadata. The issuer has no visibility into it.
type CacheEntry struct {
	LastVerdict        Verdict   `json:"last_verdict"`
	MachineID          string    `json:"machine_id"`
	RevocationSnapshot []string  `json:"revocation_snapshot"`
	FetchedAt          time.Time `json:"fetched_at"`
	TTLSeconds         int64     `json:"ttl_seconds"`
}

// TTL returns the entry's freshness window as a duration.
func (e *CacheEntry) TTL() time.Duration {
	return time.Duration(e.TTLSeconds) * time.Second
}

// Age returns how old the entry is at now.
func (e *CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}

// IsFresh reports whether the entry is within its TTL at now. An
// expired entry is still usable as the bounded degraded-mode fallback
// but is never equivalent to a fresh verdict.
func (e *CacheEntry) IsFresh(now time.Time) bool {
	return e.Age(now) < e.TTL()
}

// SnapshotContains reports whether the cached revocation snapshot
// already lists the key, letting an offline client honor a revocation
// it learned about before losing connectivity.
func (e *CacheEntry) SnapshotContains(licenseKey string) bool {
	for _, k := range e.RevocationSnapshot {
		if k == licenseKey {
			return true
		}
	}
	return false
}

// staleLockAge is how old a leftover lock file must be before another
// process may take it over.
const staleLockAge = 30 * time.Second

// Cache persists CacheEntry documents to a single JSON file with
// write-to-temp-then-rename discipline, so a crash mid-write never
// leaves a half-written document. A sidecar lock file guards against
// concurrent short-lived processes checking the license at once.
type Cache struct {
	path   string
	logger *slog.Logger
}

// NewCache creates a cache persisting to path.
func NewCache(path string, logger *slog.Logger) *Cache {
	return &Cache{
		path:   path,
		logger: logger.With(slog.String("component", "license_cache")),
	}
}

// Load reads the last persisted entry. Returns (nil, nil) on first run
// and ErrCacheCorrupt when the file exists but cannot be parsed.
func (c *Cache) Load() (*CacheEntry, error) {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheCorrupt, err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheCorrupt, err)
	}
	if entry.FetchedAt.IsZero() || entry.TTLSeconds <= 0 {
		return nil, fmt.Errorf("%w: missing freshness metadata", ErrCacheCorrupt)
	}

	return &entry, nil
}

// Store atomically overwrites the persisted entry.
func (c *Cache) Store(entry *CacheEntry) error {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	unlock, err := c.lock()
	if err != nil {
		return err
	}
	defer unlock()

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp cache file: %w", err)
	}

	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod cache file: %w", err)
	}

	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace cache file: %w", err)
	}

	c.logger.Debug("cache entry stored",
		slog.String("path", c.path),
		slog.Time("fetched_at", entry.FetchedAt),
		slog.Int("snapshot_size", len(entry.RevocationSnapshot)))

	return nil
}

// Remove deletes the persisted entry if present. Used when the cache
// is corrupt beyond recovery.
func (c *Cache) Remove() error {
	err := os.Remove(c.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// lock takes the sidecar lock file, stealing it when it is older than
// staleLockAge (a crashed process never unlocks).
func (c *Cache) lock() (func(), error) {
	lockPath := c.path + ".lock"

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return func() { os.Remove(lockPath) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create cache lock: %w", err)
		}

		info, statErr := os.Stat(lockPath)
		if statErr == nil && time.Since(info.ModTime()) > staleLockAge {
			c.logger.Warn("removing stale cache lock",
				slog.String("path", lockPath),
				slog.Time("mod_time", info.ModTime()))
			os.Remove(lockPath)
			continue
		}

		return nil, fmt.Errorf("cache is locked by another process")
	}

	return nil, fmt.Errorf("cache is locked by another process")
}
