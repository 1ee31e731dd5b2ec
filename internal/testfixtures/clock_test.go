package testfixtures

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock(t *testing.T) {
	c := NewClock(time.Time{})
	assert.Equal(t, ReferenceTime(), c.Now())
	assert.Equal(t, ReferenceTime().Add(time.Minute), c.Advance(time.Minute))

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Set(at)
	assert.Equal(t, at, c.Now())
}
