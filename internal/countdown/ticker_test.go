package countdown

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whdcks5588-jpg/chanyview/internal/model"
)

// runOnce runs a ticker with a frozen clock and a fast cadence and returns
// the first emitted event.
func runOnce(t *testing.T, timeframe model.Timeframe, frozenNow int64) model.Event {
	t.Helper()

	ticker := NewTicker(timeframe)
	ticker.cadence = time.Millisecond
	ticker.now = func() time.Time { return time.Unix(frozenNow, 0) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan model.Event, 1)
	go ticker.Run(ctx, out)

	select {
	case ev := <-out:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for countdown event")
		return model.Event{}
	}
}

// Test_Ticker_Remaining verifies the countdown payload mid-bucket.
func Test_Ticker_Remaining(t *testing.T) {
	// 3m buckets are 180s; 1030 is 70s into the bucket opening at 900.
	ev := runOnce(t, "3m", 1030)

	assert.Equal(t, model.EventCountdown, ev.Kind)
	assert.Equal(t, model.Timeframe("3m"), ev.Timeframe)
	require.NotNil(t, ev.Countdown)
	assert.Equal(t, int64(50), ev.Countdown.Remaining)
	assert.Equal(t, "00:50", ev.Countdown.Display)
}

// Test_Ticker_AtBoundary verifies a wall clock sitting exactly on a candle
// boundary reports zero remaining, not a full period.
func Test_Ticker_AtBoundary(t *testing.T) {
	ev := runOnce(t, "3m", 1080)

	require.NotNil(t, ev.Countdown)
	assert.Equal(t, int64(0), ev.Countdown.Remaining)
	assert.Equal(t, "00:00", ev.Countdown.Display)
}

// Test_Ticker_HourDisplay verifies the H:MM:SS layout for long timeframes.
func Test_Ticker_HourDisplay(t *testing.T) {
	// 4h bucket starting at 0: one second in leaves 3:59:59.
	ev := runOnce(t, "4h", 1)

	require.NotNil(t, ev.Countdown)
	assert.Equal(t, int64(14399), ev.Countdown.Remaining)
	assert.Equal(t, "3:59:59", ev.Countdown.Display)
}

// Test_Ticker_StopsOnCancel verifies cancellation ends the run loop.
func Test_Ticker_StopsOnCancel(t *testing.T) {
	ticker := NewTicker("3m")
	ticker.cadence = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan model.Event, 16)

	done := make(chan struct{})
	go func() {
		ticker.Run(ctx, out)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ticker did not stop after cancellation")
	}
}
