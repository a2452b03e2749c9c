package client

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NevessSt/Trading-bots-sub000/pkg/contracts/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	return NewCache(filepath.Join(t.TempDir(), "license-cache.json"), discardLogger())
}

func testEntry(fetchedAt time.Time) *CacheEntry {
	return &CacheEntry{
		LastVerdict: Verdict{
			Valid:  true,
			Reason: domain.ReasonOK,
		},
		MachineID:          "machine-1",
		RevocationSnapshot: []string{"TBOT-DEAD-DEAD-DEAD-DEAD"},
		FetchedAt:          fetchedAt.UTC(),
		TTLSeconds:         3600,
	}
}

func TestCacheFirstRun(t *testing.T) {
	c := newTestCache(t)

	entry, err := c.Load()
	require.NoError(t, err)
	assert.Nil(t, entry, "a missing cache file is not an error")
}

func TestCacheStoreAndLoad(t *testing.T) {
	c := newTestCache(t)

	want := testEntry(time.Now())
	require.NoError(t, c.Store(want))

	got, err := c.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.LastVerdict, got.LastVerdict)
	assert.Equal(t, want.MachineID, got.MachineID)
	assert.Equal(t, want.RevocationSnapshot, got.RevocationSnapshot)
	assert.Equal(t, want.TTLSeconds, got.TTLSeconds)
	assert.True(t, want.FetchedAt.Equal(got.FetchedAt))
}

func TestCacheStoreOverwrites(t *testing.T) {
	c := newTestCache(t)

	first := testEntry(time.Now().Add(-2 * time.Hour))
	require.NoError(t, c.Store(first))

	second := testEntry(time.Now())
	second.RevocationSnapshot = nil
	require.NoError(t, c.Store(second))

	got, err := c.Load()
	require.NoError(t, err)
	assert.True(t, second.FetchedAt.Equal(got.FetchedAt))
	assert.Empty(t, got.RevocationSnapshot)
}

func TestCacheCorruption(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"garbage bytes", "\x00\x01not json at all"},
		{"truncated json", `{"last_verdict": {"valid": tru`},
		{"missing freshness metadata", `{"last_verdict": {"valid": true}, "machine_id": "m"}`},
		{"zero ttl", `{"last_verdict": {"valid": true}, "fetched_at": "2026-01-15T10:00:00Z", "ttl_seconds": 0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCache(t)
			require.NoError(t, os.WriteFile(c.path, []byte(tt.content), 0600))

			_, err := c.Load()
			assert.ErrorIs(t, err, ErrCacheCorrupt)
		})
	}
}

func TestCacheRemove(t *testing.T) {
	c := newTestCache(t)

	assert.NoError(t, c.Remove(), "removing a missing cache is fine")

	require.NoError(t, c.Store(testEntry(time.Now())))
	require.NoError(t, c.Remove())

	entry, err := c.Load()
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestCacheLock(t *testing.T) {
	t.Run("held lock blocks store", func(t *testing.T) {
		c := newTestCache(t)
		require.NoError(t, os.MkdirAll(filepath.Dir(c.path), 0755))
		require.NoError(t, os.WriteFile(c.path+".lock", []byte("12345\n"), 0600))

		assert.Error(t, c.Store(testEntry(time.Now())))
	})

	t.Run("stale lock is taken over", func(t *testing.T) {
		c := newTestCache(t)
		lockPath := c.path + ".lock"
		require.NoError(t, os.MkdirAll(filepath.Dir(c.path), 0755))
		require.NoError(t, os.WriteFile(lockPath, []byte("12345\n"), 0600))

		old := time.Now().Add(-2 * staleLockAge)
		require.NoError(t, os.Chtimes(lockPath, old, old))

		assert.NoError(t, c.Store(testEntry(time.Now())))

		_, err := os.Stat(lockPath)
		assert.True(t, os.IsNotExist(err), "lock must be released after store")
	})
}

func TestCacheEntryFreshness(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	entry := testEntry(now)

	assert.True(t, entry.IsFresh(now))
	assert.True(t, entry.IsFresh(now.Add(59*time.Minute)))
	assert.False(t, entry.IsFresh(now.Add(time.Hour)), "ttl boundary is exclusive")
	assert.False(t, entry.IsFresh(now.Add(24*time.Hour)))

	assert.Equal(t, time.Hour, entry.TTL())
	assert.Equal(t, 30*time.Minute, entry.Age(now.Add(30*time.Minute)))
}

func TestSnapshotContains(t *testing.T) {
	entry := testEntry(time.Now())

	assert.True(t, entry.SnapshotContains("TBOT-DEAD-DEAD-DEAD-DEAD"))
	assert.False(t, entry.SnapshotContains("TBOT-AAAA-AAAA-AAAA-AAAA"))

	entry.RevocationSnapshot = nil
	assert.False(t, entry.SnapshotContains("TBOT-DEAD-DEAD-DEAD-DEAD"))
}
