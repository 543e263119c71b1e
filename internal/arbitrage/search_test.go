package arbitrage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func window(lower, upper float64) func(float64) Trial {
	return func(x float64) Trial {
		switch {
		case x > upper:
			return TrialTooLarge
		case x <= lower:
			return TrialTooSmall
		default:
			return TrialAccepted
		}
	}
}

func TestBisectMin(t *testing.T) {
	t.Run("finds threshold", func(t *testing.T) {
		x, ok := BisectMin(100, 2e-5, window(37.5, 100))
		assert.True(t, ok)
		assert.InDelta(t, 37.5, x, 37.5*1e-4)
		assert.Greater(t, x, 37.5)
	})

	t.Run("too large trials move down", func(t *testing.T) {
		x, ok := BisectMin(100, 2e-5, window(1, 4))
		assert.True(t, ok)
		assert.InDelta(t, 1.0, x, 1e-4)
		assert.Greater(t, x, 1.0)
	})

	t.Run("nothing accepted", func(t *testing.T) {
		_, ok := BisectMin(100, 2e-5, func(float64) Trial { return TrialTooSmall })
		assert.False(t, ok)
	})

	t.Run("everything too large", func(t *testing.T) {
		_, ok := BisectMin(100, 2e-5, func(float64) Trial { return TrialTooLarge })
		assert.False(t, ok)
	})

	t.Run("everything accepted terminates", func(t *testing.T) {
		calls := 0
		x, ok := BisectMin(100, 2e-5, func(float64) Trial { calls++; return TrialAccepted })
		assert.True(t, ok)
		assert.Less(t, x, 1e-6)
		assert.LessOrEqual(t, calls, maxSearchIterations)
	})

	t.Run("empty interval", func(t *testing.T) {
		calls := 0
		_, ok := BisectMin(0, 2e-5, func(float64) Trial { calls++; return TrialAccepted })
		assert.False(t, ok)
		assert.Zero(t, calls)
	})
}

func TestMaximize(t *testing.T) {
	t.Run("concave peak", func(t *testing.T) {
		f := func(x float64) (float64, bool) { return -(x - 3) * (x - 3), true }
		x := Maximize(0, 10, 2e-5, f)
		assert.InDelta(t, 3.0, x, 1e-3)

		best, _ := f(x)
		lo, _ := f(0)
		hi, _ := f(10)
		assert.GreaterOrEqual(t, best, lo)
		assert.GreaterOrEqual(t, best, hi)
	})

	t.Run("unvalued center moves towards lower bound", func(t *testing.T) {
		// Only amounts below 2 can be filled; profit grows with size.
		f := func(x float64) (float64, bool) {
			if x > 2 {
				return 0, false
			}
			return x, true
		}
		x := Maximize(1, 20, 2e-5, f)
		assert.InDelta(t, 2.0, x, 1e-3)
		_, ok := f(x)
		assert.True(t, ok)
	})

	t.Run("monotone increasing", func(t *testing.T) {
		x := Maximize(0, 8, 2e-5, func(x float64) (float64, bool) { return x, true })
		assert.InDelta(t, 8.0, x, 1e-3)
	})
}
