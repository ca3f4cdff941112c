package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCooldownElapsed(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	z := &GeofenceZone{}
	assert.True(t, z.CooldownElapsed(now, 30*time.Minute), "unset last alert is always eligible")

	last := now.Add(-29 * time.Minute)
	z.LastAlertAt = &last
	assert.False(t, z.CooldownElapsed(now, 30*time.Minute))

	last = now.Add(-30 * time.Minute)
	assert.True(t, z.CooldownElapsed(now, 30*time.Minute), "boundary is inclusive")
}
