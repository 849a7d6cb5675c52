package dedupe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreClaim(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	ok, err := s.Claim(ctx, "evt_1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = s.Claim(ctx, "evt_1", time.Hour)
	assert.False(t, ok, "second delivery within ttl")

	now = now.Add(2 * time.Hour)
	ok, _ = s.Claim(ctx, "evt_1", time.Hour)
	assert.True(t, ok, "claim expires")

	require.NoError(t, s.Release(ctx, "evt_1"))
	ok, _ = s.Claim(ctx, "evt_1", time.Hour)
	assert.True(t, ok, "released key can be claimed again")
}
