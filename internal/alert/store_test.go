package alert

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whdcks5588-jpg/chanyview/internal/model"
)

// openTestStore creates a store backed by a throwaway database file.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "alerts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func alertSet(prices ...float64) []model.Alert {
	out := make([]model.Alert, 0, len(prices))
	for i, p := range prices {
		out = append(out, model.Alert{
			ID:    string(rune('a' + i)),
			Price: decimal.NewFromFloat(p),
		})
	}
	return out
}

// assertSameAlerts compares two alert sets as {id, price} pairs,
// order-insensitively.
func assertSameAlerts(t *testing.T, expected, actual []model.Alert) {
	t.Helper()
	require.Len(t, actual, len(expected))
	byID := make(map[string]model.Alert, len(actual))
	for _, a := range actual {
		byID[a.ID] = a
	}
	for _, want := range expected {
		got, ok := byID[want.ID]
		require.True(t, ok, "missing alert %s", want.ID)
		assert.True(t, want.Price.Equal(got.Price))
	}
}

// Test_Store_RoundTrip verifies save-then-load returns the same pairs, also
// across a reopened database.
func Test_Store_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.db")
	s, err := OpenStore(path)
	require.NoError(t, err)

	alerts := alertSet(50000, 61250.5)
	require.NoError(t, s.Save("3m", alerts))
	assertSameAlerts(t, alerts, s.Load("3m"))
	require.NoError(t, s.Close())

	reopened, err := OpenStore(path)
	require.NoError(t, err)
	defer reopened.Close()
	assertSameAlerts(t, alerts, reopened.Load("3m"))
}

// Test_Store_LoadMissing verifies an absent partition resolves to empty.
func Test_Store_LoadMissing(t *testing.T) {
	s := openTestStore(t)
	assert.Empty(t, s.Load("1h"))
}

// Test_Store_LoadMalformed verifies a corrupted payload resolves to empty
// instead of propagating a decode error.
func Test_Store_LoadMalformed(t *testing.T) {
	s := openTestStore(t)

	_, err := s.db.Exec(
		`INSERT INTO alert_sets (key, value) VALUES (?, ?);`,
		partitionKey("3m"), []byte("{not json"))
	require.NoError(t, err)

	assert.Empty(t, s.Load("3m"))
}

// Test_Store_AddRemove covers id uniqueness, persistence of adds, and the
// no-op removal of an absent id.
func Test_Store_AddRemove(t *testing.T) {
	s := openTestStore(t)
	s.Load("3m")

	first, err := s.Add("3m", decimal.NewFromInt(50000))
	require.NoError(t, err)
	second, err := s.Add("3m", decimal.NewFromInt(50000))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID, "ids must be unique within the partition")
	assert.Len(t, s.List("3m"), 2)

	require.NoError(t, s.Remove("3m", first.ID))
	remaining := s.List("3m")
	require.Len(t, remaining, 1)
	assert.Equal(t, second.ID, remaining[0].ID)

	require.NoError(t, s.Remove("3m", "no-such-id"), "removing an absent id is a no-op")
	assert.Len(t, s.List("3m"), 1)
}

// Test_Store_PartitionIsolation verifies timeframes never share alert state.
func Test_Store_PartitionIsolation(t *testing.T) {
	s := openTestStore(t)
	s.Load("3m")
	s.Load("1h")

	a3m, err := s.Add("3m", decimal.NewFromInt(50000))
	require.NoError(t, err)
	_, err = s.Add("1h", decimal.NewFromInt(70000))
	require.NoError(t, err)

	require.NoError(t, s.Remove("1h", a3m.ID), "ids are never compared across partitions")
	assert.Len(t, s.List("3m"), 1)
	assert.Len(t, s.List("1h"), 1)

	require.NoError(t, s.Remove("3m", a3m.ID))
	assert.Empty(t, s.List("3m"))
	assert.Len(t, s.List("1h"), 1)
}
