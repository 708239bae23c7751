package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVirtualAdvance(t *testing.T) {
	clk := NewVirtual(100)
	assert.Equal(t, int64(100), clk.Now())

	clk.AdvanceTo(150)
	assert.Equal(t, int64(150), clk.Now())

	clk.AdvanceTo(150)
	assert.Equal(t, int64(150), clk.Now())
}

func TestVirtualAdvanceBackwardPanics(t *testing.T) {
	clk := NewVirtual(100)
	require.Panics(t, func() {
		clk.AdvanceTo(99)
	})
}

func TestWallNeverGoesBackward(t *testing.T) {
	clk := NewWall()
	prev := clk.Now()
	for i := 0; i < 1000; i++ {
		now := clk.Now()
		require.GreaterOrEqual(t, now, prev)
		prev = now
	}
}

func TestWallSetTimeRatchets(t *testing.T) {
	clk := NewWall()
	future := time.Now().UTC().Add(time.Hour).UnixNano()
	clk.SetTime(future)
	assert.GreaterOrEqual(t, clk.Now(), future)

	clk.SetTime(future - int64(time.Minute))
	assert.GreaterOrEqual(t, clk.Now(), future)
}
