package sessions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeperRejectsBadSchedule(t *testing.T) {
	m, _ := newTestManager(t, &staticSource{})
	s := NewSweeper(m, "not a schedule", time.Minute)

	err := s.Start()
	require.Error(t, err)
	assert.False(t, s.IsRunning())
}

func TestSweeperStartStop(t *testing.T) {
	m, _ := newTestManager(t, &staticSource{})
	s := NewSweeper(m, "@every 1h", time.Minute)

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	require.NoError(t, s.Start())

	s.Stop()
	assert.False(t, s.IsRunning())
	assert.True(t, s.NextRun().IsZero())
	s.Stop()
}

func TestSweeperRestartKeepsOneJob(t *testing.T) {
	m, _ := newTestManager(t, &staticSource{})
	s := NewSweeper(m, "@every 1h", time.Minute)

	for i := 0; i < 4; i++ {
		require.NoError(t, s.Start())
		assert.Len(t, s.cron.Entries(), 1, "start %d", i+1)
		s.Stop()
		assert.Empty(t, s.cron.Entries(), "stop %d", i+1)
	}
}

func TestSweeperSweep(t *testing.T) {
	m, rec := newTestManager(t, &staticSource{})
	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	now := start
	m.now = func() time.Time { return now }

	_, err := m.Create()
	require.NoError(t, err)

	now = start.Add(2 * time.Minute)
	NewSweeper(m, "@every 1m", time.Minute).Sweep()

	assert.Equal(t, 0, m.Len())
	assert.Equal(t, 1, rec.evicted)
}
