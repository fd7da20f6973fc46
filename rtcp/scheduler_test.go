package rtcp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchedulerDefaultsToFiveSecondMinimum(t *testing.T) {
	s := NewScheduler(0, 1)
	assert.Equal(t, 5*time.Second, s.Interval(1))
}

func TestSchedulerNeverGoesBelowAbsoluteMinimum(t *testing.T) {
	s := NewScheduler(100000, 1)
	s.MinInterval = 0
	assert.GreaterOrEqual(t, s.Interval(1), absoluteMinInterval)
}

func TestSchedulerGrowsWithMembersAndSize(t *testing.T) {
	s := NewScheduler(8, 1) // tiny bandwidth forces the bandwidth term above the 5s floor
	s.AverageCompoundSize = 1000
	small := s.Interval(2)
	large := s.Interval(20)
	assert.Greater(t, large, small)
}

func TestSchedulerNextRandomizesWithinBounds(t *testing.T) {
	s := NewScheduler(0, 42)
	base := s.Interval(1)
	for i := 0; i < 20; i++ {
		n := s.Next(1)
		assert.GreaterOrEqual(t, n, time.Duration(float64(base)*0.5))
		assert.LessOrEqual(t, n, time.Duration(float64(base)*1.5))
	}
}

func TestSchedulerObserveUpdatesAverage(t *testing.T) {
	s := NewScheduler(0, 1)
	s.AverageCompoundSize = 100
	s.Observe(200)
	assert.Equal(t, 150.0, s.AverageCompoundSize)
}
