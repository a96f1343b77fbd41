package guardian

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_DelayGrowsAndCaps(t *testing.T) {
	p := RetryPolicy{
		Base:        100 * time.Millisecond,
		Max:         time.Second,
		MaxAttempts: 8,
	}

	assert.Equal(t, time.Duration(0), p.Delay("entry-1", 0))
	assert.Equal(t, 100*time.Millisecond, p.Delay("entry-1", 1))
	assert.Equal(t, 200*time.Millisecond, p.Delay("entry-1", 2))
	assert.Equal(t, 400*time.Millisecond, p.Delay("entry-1", 3))
	assert.Equal(t, 800*time.Millisecond, p.Delay("entry-1", 4))
	assert.Equal(t, time.Second, p.Delay("entry-1", 5))
	assert.Equal(t, time.Second, p.Delay("entry-1", 64), "deep attempts stay capped")
}

func TestRetryPolicy_JitterIsDeterministicAndBounded(t *testing.T) {
	p := RetryPolicy{
		Base:        100 * time.Millisecond,
		Max:         time.Second,
		MaxJitter:   50 * time.Millisecond,
		MaxAttempts: 5,
	}

	first := p.Delay("entry-a", 2)
	assert.Equal(t, first, p.Delay("entry-a", 2), "same entry and attempt, same delay")

	assert.GreaterOrEqual(t, first, 200*time.Millisecond)
	assert.Less(t, first, 250*time.Millisecond)

	spread := map[time.Duration]bool{
		p.Delay("entry-a", 2): true,
		p.Delay("entry-b", 2): true,
		p.Delay("entry-c", 2): true,
		p.Delay("entry-d", 2): true,
	}
	assert.Greater(t, len(spread), 1, "distinct entries should spread")
}
