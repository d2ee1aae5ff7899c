package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockout_Window(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	m := NewMemoryLockout()
	m.now = func() time.Time { return now }

	for i := 1; i <= 3; i++ {
		n, err := m.RecordFailure(ctx, "ALICE", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(i), n)
	}

	n, err := m.Failures(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	now = now.Add(time.Minute)
	n, err = m.Failures(ctx, "ALICE")
	require.NoError(t, err)
	assert.Zero(t, n, "window elapsed")

	n, err = m.RecordFailure(ctx, "ALICE", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "a new window starts")

	require.NoError(t, m.ResetFailures(ctx, "ALICE"))
	n, err = m.Failures(ctx, "ALICE")
	require.NoError(t, err)
	assert.Zero(t, n)
}
