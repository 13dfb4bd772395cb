package logitem

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/witnz/rowdiff/internal/results"
)

var at = time.Date(2014, time.September, 16, 2, 44, 4, 0, time.UTC)

func TestBuild_Diff(t *testing.T) {
	row := results.MustRow(map[string]string{"pid": "3", "name": "c"})
	d := results.Diff{Added: results.NewTable(row), Removed: results.Table{}}

	item, err := Build("processes", "host-1", DiffPayload(d), at)
	require.NoError(t, err)

	assert.Equal(t, "processes", item.Name())
	assert.Equal(t, "host-1", item.HostIdentifier())
	assert.Equal(t, int64(1410835444), item.UnixTime())
	assert.Equal(t, "Tue Sep 16 02:44:04 2014 UTC", item.CalendarTime())
	assert.Equal(t, KindDiff, item.Kind())

	got, ok := item.Diff()
	require.True(t, ok)
	assert.True(t, got.Equal(d))

	_, ok = item.Snapshot()
	assert.False(t, ok, "diff item must not carry a snapshot")
}

func TestBuild_Snapshot(t *testing.T) {
	table := results.NewTable(results.MustRow(map[string]string{"x": "1"}))

	item, err := Build("q", "h", SnapshotPayload(table), at)
	require.NoError(t, err)
	assert.Equal(t, KindSnapshot, item.Kind())

	got, ok := item.Snapshot()
	require.True(t, ok)
	assert.True(t, got.SequenceEqual(table))

	_, ok = item.Diff()
	assert.False(t, ok)
}

func TestBuild_CalendarTimeIsUTC(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*60*60)
	item, err := Build("q", "h", SnapshotPayload(nil), at.In(loc))
	require.NoError(t, err)
	assert.Equal(t, "Tue Sep 16 02:44:04 2014 UTC", item.CalendarTime())
	assert.Equal(t, int64(1410835444), item.UnixTime())
}

func TestBuild_Rejects(t *testing.T) {
	_, err := Build("q", "h", Payload{}, at)
	assert.ErrorIs(t, err, ErrNoPayload)

	_, err = Build("", "h", SnapshotPayload(nil), at)
	assert.Error(t, err)
}

func TestBuild_IsolatedFromCaller(t *testing.T) {
	table := results.NewTable(results.MustRow(map[string]string{"x": "1"}))
	item, err := Build("q", "h", SnapshotPayload(table), at)
	require.NoError(t, err)

	table[0] = results.MustRow(map[string]string{"x": "2"})

	got, _ := item.Snapshot()
	v, _ := got[0].Get("x")
	assert.Equal(t, "1", v)
}

func TestFixedClock(t *testing.T) {
	c := FixedClock(at)
	assert.True(t, c.Now().Equal(at))
}
