package metrics

import (
	"path/filepath"
	"testing"
	"time"

	"anycoder/assert"
)

func openTestHistory(t *testing.T) *History {
	t.Helper()
	h, err := OpenHistory(filepath.Join(t.TempDir(), "nested", "history.db"))
	assert.NoError(t, err, "OpenHistory")
	t.Cleanup(func() { h.Close() })
	return h
}

func TestHistory_RecordAndRecent(t *testing.T) {
	h := openTestHistory(t)
	base := time.Unix(1_700_000_000, 0)

	assert.NoError(t, h.Record(Entry{Path: "a.go", StartedAt: base, Duration: 1500 * time.Millisecond, Outcome: OutcomeApplied, Edits: 2}), "record a")
	assert.NoError(t, h.Record(Entry{Path: "b.rs", StartedAt: base.Add(time.Second), Duration: 20 * time.Millisecond, Outcome: OutcomeParseError}), "record b")

	entries, err := h.Recent(10)
	assert.NoError(t, err, "Recent")
	assert.Equal(t, 2, len(entries), "entry count")

	assert.Equal(t, "b.rs", entries[0].Path, "newest first")
	assert.Equal(t, OutcomeParseError, entries[0].Outcome, "outcome")
	assert.Equal(t, "a.go", entries[1].Path, "oldest last")
	assert.Equal(t, 2, entries[1].Edits, "edits")
	assert.Equal(t, 1500*time.Millisecond, entries[1].Duration, "duration")
	assert.True(t, entries[1].StartedAt.Equal(base), "started_at round trip")
}

func TestHistory_RecentLimit(t *testing.T) {
	h := openTestHistory(t)
	for i := range 5 {
		h.Record(Entry{Path: "x", StartedAt: time.Unix(int64(i), 0), Outcome: OutcomeApplied})
	}

	entries, err := h.Recent(3)
	assert.NoError(t, err, "Recent")
	assert.Equal(t, 3, len(entries), "limited")
	assert.Equal(t, int64(4), entries[0].StartedAt.Unix(), "newest first")
}

func TestHistory_Summary(t *testing.T) {
	h := openTestHistory(t)
	now := time.Now()
	outcomes := []Outcome{OutcomeApplied, OutcomeApplied, OutcomeDegraded, OutcomeTransportError, OutcomeApplied}
	for _, o := range outcomes {
		assert.NoError(t, h.Record(Entry{Path: "f", StartedAt: now, Outcome: o}), "record")
	}

	summary, err := h.Summary()
	assert.NoError(t, err, "Summary")
	assert.Equal(t, 3, summary[OutcomeApplied], "applied")
	assert.Equal(t, 1, summary[OutcomeDegraded], "degraded")
	assert.Equal(t, 1, summary[OutcomeTransportError], "transport")
	assert.Equal(t, 0, summary[OutcomeBoundsError], "bounds")
}

func TestHistory_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	h, err := OpenHistory(path)
	assert.NoError(t, err, "first open")
	assert.NoError(t, h.Record(Entry{Path: "keep.go", StartedAt: time.Now(), Outcome: OutcomeApplied}), "record")
	assert.NoError(t, h.Close(), "close")

	h, err = OpenHistory(path)
	assert.NoError(t, err, "second open")
	defer h.Close()

	entries, err := h.Recent(1)
	assert.NoError(t, err, "Recent")
	assert.Equal(t, 1, len(entries), "entry survives reopen")
	assert.Equal(t, "keep.go", entries[0].Path, "path")
}

func TestHistory_RecordAfterClose(t *testing.T) {
	h := openTestHistory(t)
	assert.NoError(t, h.Close(), "close")
	assert.NoError(t, h.Close(), "second close is a no-op")

	err := h.Record(Entry{Path: "late", StartedAt: time.Now(), Outcome: OutcomeApplied})
	assert.Error(t, err, "record after close")
}
