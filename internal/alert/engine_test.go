package alert

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whdcks5588-jpg/chanyview/internal/model"
)

func priceTick(price float64, at int64) model.Tick {
	return model.Tick{Price: decimal.NewFromFloat(price), Time: at}
}

// newTestEngine builds an engine over a fresh store with the given thresholds
// already placed on the "3m" partition.
func newTestEngine(t *testing.T, thresholds ...float64) (*Engine, *Store) {
	t.Helper()
	store := openTestStore(t)
	store.Load("3m")
	for _, p := range thresholds {
		_, err := store.Add("3m", decimal.NewFromFloat(p))
		require.NoError(t, err)
	}
	return NewEngine("3m", store), store
}

// Test_Check_UpwardCross verifies prev < p <= cur fires exactly once and the
// alert leaves the store.
func Test_Check_UpwardCross(t *testing.T) {
	engine, store := newTestEngine(t, 50000)

	assert.Empty(t, engine.Check(priceTick(49990, 1)), "approaching from below must not fire")

	fired := engine.Check(priceTick(50010, 2))
	require.Len(t, fired, 1)
	assert.True(t, fired[0].Price.Equal(decimal.NewFromInt(50000)))
	assert.Empty(t, store.List("3m"), "fired alert must be removed from the store")

	assert.Empty(t, engine.Check(priceTick(50010, 3)), "a second tick past the threshold must not re-fire")
}

// Test_Check_DownwardCross verifies prev > p >= cur fires.
func Test_Check_DownwardCross(t *testing.T) {
	engine, store := newTestEngine(t, 50000)

	assert.Empty(t, engine.Check(priceTick(50100, 1)))
	fired := engine.Check(priceTick(49900, 2))
	require.Len(t, fired, 1)
	assert.Empty(t, store.List("3m"))
}

// Test_Check_ExactTouchFirstTick verifies the exact-touch clause works with
// no previous price, i.e. on the very first tick after restoration.
func Test_Check_ExactTouchFirstTick(t *testing.T) {
	engine, store := newTestEngine(t, 50000)

	fired := engine.Check(priceTick(50000, 1))
	require.Len(t, fired, 1)
	assert.Empty(t, store.List("3m"))
}

// Test_Check_NoCrossWithoutPrev verifies the crossing clauses stay inert on
// the first tick: jumping straight past a threshold without a previous price
// is not a crossing.
func Test_Check_NoCrossWithoutPrev(t *testing.T) {
	engine, store := newTestEngine(t, 50000)

	assert.Empty(t, engine.Check(priceTick(51000, 1)), "first tick beyond the threshold is not a cross")
	assert.Len(t, store.List("3m"), 1)

	// The first tick still became the previous price.
	fired := engine.Check(priceTick(49000, 2))
	require.Len(t, fired, 1, "second tick crosses downward from the recorded first price")
}

// Test_Check_LingeringTouch verifies a price parked exactly on the threshold
// cannot re-trigger across consecutive ticks.
func Test_Check_LingeringTouch(t *testing.T) {
	engine, _ := newTestEngine(t, 50000)

	require.Len(t, engine.Check(priceTick(50000, 1)), 1)
	for i := int64(2); i < 5; i++ {
		assert.Empty(t, engine.Check(priceTick(50000, i)))
	}
}

// Test_Check_MultipleAlertsOneTick verifies one sweep can fire several
// thresholds in a single batch, each exactly once.
func Test_Check_MultipleAlertsOneTick(t *testing.T) {
	engine, store := newTestEngine(t, 50010, 50020, 50500)

	assert.Empty(t, engine.Check(priceTick(50000, 1)))
	fired := engine.Check(priceTick(50100, 2))
	assert.Len(t, fired, 2, "both thresholds inside the gap fire in one batch")

	remaining := store.List("3m")
	require.Len(t, remaining, 1)
	assert.True(t, remaining[0].Price.Equal(decimal.NewFromInt(50500)))
}

// Test_Check_RemovalPersisted verifies a fired alert is gone from the
// persisted partition, not just the working set.
func Test_Check_RemovalPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.db")
	store, err := OpenStore(path)
	require.NoError(t, err)
	store.Load("3m")
	_, err = store.Add("3m", decimal.NewFromInt(50000))
	require.NoError(t, err)

	engine := NewEngine("3m", store)
	engine.Check(priceTick(49000, 1))
	require.Len(t, engine.Check(priceTick(51000, 2)), 1)
	require.NoError(t, store.Close())

	reopened, err := OpenStore(path)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Empty(t, reopened.Load("3m"), "triggered alert must not come back after restart")
}
