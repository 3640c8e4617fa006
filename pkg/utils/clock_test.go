package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClock_Now(t *testing.T) {
	clock := NewRealClock()

	before := time.Now()
	actual := clock.Now()
	after := time.Now()

	assert.True(t, actual.After(before) || actual.Equal(before))
	assert.True(t, actual.Before(after) || actual.Equal(after))
}

func TestRealClock_Since(t *testing.T) {
	clock := NewRealClock()

	past := time.Now().Add(-1 * time.Second)
	assert.True(t, clock.Since(past) >= 1*time.Second)
}

func TestMockClock_AdvanceAndSet(t *testing.T) {
	startTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(startTime)
	assert.Equal(t, startTime, clock.Now())

	clock.Advance(5 * time.Minute)
	assert.Equal(t, startTime.Add(5*time.Minute), clock.Now())
	assert.Equal(t, 5*time.Minute, clock.Since(startTime))

	later := startTime.Add(time.Hour)
	clock.Set(later)
	assert.Equal(t, later, clock.Now())
}

func TestMockClock_Step(t *testing.T) {
	startTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(startTime)
	clock.SetStep(3 * time.Millisecond)

	begin := clock.Now()
	assert.Equal(t, startTime, begin)
	assert.Equal(t, 3*time.Millisecond, clock.Since(begin))
	assert.Equal(t, startTime.Add(6*time.Millisecond), clock.Now())
}
