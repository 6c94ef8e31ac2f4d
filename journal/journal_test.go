package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/chazu/hotswap/reload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndEntries(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := j.Record(ctx, reload.Event{Scope: "app", Type: "demo/T", Tag: "aaa", Seq: 1, Outcome: reload.Applied, At: at})
	require.NoError(t, err)
	_, err = j.Record(ctx, reload.Event{
		Scope:   "app",
		Type:    "demo/T",
		Tag:     "bbb",
		Outcome: reload.Rejected,
		Record:  &reload.ChangeRecord{Reasons: []string{"supertype changed", "interfaces changed"}},
		Err:     errors.New("rejected"),
		At:      at.Add(time.Second),
	})
	require.NoError(t, err)
	_, err = j.Record(ctx, reload.Event{Scope: "app", Type: "demo/U", Tag: "ccc", Seq: 1, Outcome: reload.Applied})
	require.NoError(t, err)

	entries, err := j.Entries(ctx, "app", "demo/T")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "aaa", entries[0].Tag)
	assert.Equal(t, 1, entries[0].Seq)
	assert.Equal(t, "applied", entries[0].Outcome)
	assert.True(t, entries[0].At.Equal(at))
	assert.Empty(t, entries[0].Reasons)

	assert.Equal(t, "rejected", entries[1].Outcome)
	assert.Equal(t, []string{"supertype changed", "interfaces changed"}, entries[1].Reasons)
	assert.Equal(t, "rejected", entries[1].Error)

	all, err := j.Entries(ctx, "app", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := j.Entries(ctx, "other", "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLastApplied(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()

	_, err := j.LastApplied(ctx, "app", "demo/T")
	assert.ErrorIs(t, err, ErrNotFound)

	j.Reloaded(reload.Event{Scope: "app", Type: "demo/T", Tag: "v1", Seq: 1, Outcome: reload.Applied})
	j.Reloaded(reload.Event{Scope: "app", Type: "demo/T", Tag: "v2", Seq: 2, Outcome: reload.Applied})
	j.Reloaded(reload.Event{Scope: "app", Type: "demo/T", Tag: "bad", Outcome: reload.InternalError})

	e, err := j.LastApplied(ctx, "app", "demo/T")
	require.NoError(t, err)
	assert.Equal(t, "v2", e.Tag)
	assert.Equal(t, 2, e.Seq)
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reloads.db")
	j, err := Open(path)
	require.NoError(t, err)
	_, err = j.Record(context.Background(), reload.Event{Scope: "app", Type: "demo/T", Tag: "x", Outcome: reload.Applied})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()
	assert.Equal(t, path, j.Path())

	entries, err := j.Entries(context.Background(), "app", "demo/T")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
