package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalculateRetryDelay_Grows(t *testing.T) {
	base := 100 * time.Millisecond
	max := time.Second

	d1 := calculateRetryDelay(1, base, 2.0, max)
	d2 := calculateRetryDelay(2, base, 2.0, max)
	d3 := calculateRetryDelay(3, base, 2.0, max)

	assert.InDelta(t, float64(base), float64(d1), float64(base)*0.2)
	assert.Greater(t, d2, d1/2)
	assert.Greater(t, d3, d2/2)
}

func TestCalculateRetryDelay_CapsAtMax(t *testing.T) {
	d := calculateRetryDelay(20, 100*time.Millisecond, 2.0, 500*time.Millisecond)
	assert.LessOrEqual(t, d, 500*time.Millisecond)
}

func TestCalculateRetryDelay_ZeroRetryCountReturnsBase(t *testing.T) {
	d := calculateRetryDelay(0, 250*time.Millisecond, 2.0, time.Second)
	assert.Equal(t, 250*time.Millisecond, d)
}
