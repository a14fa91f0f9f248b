package plan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// go test -v --run TestDailyNext
func TestDailyNext(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Taipei")
	require.NoError(t, err)
	d := &Daily{Loc: loc, Hour: 0}

	// 2025-01-10 15:30 UTC is 23:30 in Taipei
	next := d.Next(time.Date(2025, 1, 10, 15, 30, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 1, 11, 0, 0, 0, 0, loc), next)

	// exactly on schedule moves to the next day
	next = d.Next(time.Date(2025, 1, 11, 0, 0, 0, 0, loc))
	assert.Equal(t, time.Date(2025, 1, 12, 0, 0, 0, 0, loc), next)

	d.Hour = 9
	next = d.Next(time.Date(2025, 1, 11, 0, 0, 0, 0, loc))
	assert.Equal(t, time.Date(2025, 1, 11, 9, 0, 0, 0, loc), next)
}

// go test -v --run TestDailyRunStopsOnCancel
func TestDailyRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Daily{Loc: time.UTC, Logger: zap.NewNop()}

	calls := 0
	err := d.Run(ctx, func(context.Context) {
		calls++
		cancel()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

// go test -v --run TestDailyRunFires
func TestDailyRunFires(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// a clock sitting just before 00:00 makes the next run due almost immediately
	base := time.Date(2025, 1, 10, 23, 59, 59, 990_000_000, time.UTC)
	start := time.Now()
	d := &Daily{
		Loc:    time.UTC,
		Logger: zap.NewNop(),
		Now:    func() time.Time { return base.Add(time.Since(start)) },
	}

	calls := 0
	err := d.Run(ctx, func(context.Context) {
		calls++
		if calls == 2 {
			cancel()
		}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, calls)
}
