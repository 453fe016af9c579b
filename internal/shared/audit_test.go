package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOccurredAtStampsUnsetTime(t *testing.T) {
	stamped := occurredAt(time.Time{})
	require.False(t, stamped.IsZero())
	assert.WithinDuration(t, time.Now().UTC(), stamped, time.Second)
}

func TestOccurredAtKeepsExplicitTime(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	assert.Equal(t, at, occurredAt(at))
}
