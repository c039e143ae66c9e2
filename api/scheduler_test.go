package api_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pos-ledger/api"
	"github.com/warp/pos-ledger/ledger"
)

func TestSweeper_RunsOnStartAndStops(t *testing.T) {
	// GIVEN: A sweeper with an interval far longer than the test
	// WHEN: It is started
	// THEN: It sweeps once immediately as the sweeper actor, and Stop returns

	runner := &fakeRunner{}
	s := api.NewSweeper(runner, nil)
	s.Interval = time.Hour

	s.Start()
	s.Start() // no second goroutine
	assert.Eventually(t, func() bool { return s.Runs() == 1 }, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()

	calls := runner.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, ledger.SweeperActor, calls[0])
}

func TestSweeper_Disabled(t *testing.T) {
	runner := &fakeRunner{}
	s := api.NewSweeper(runner, nil)
	s.Enabled = false

	s.Start()
	s.Stop()

	assert.Zero(t, s.Runs())
	assert.Empty(t, runner.calls())
}

func TestSweeper_RunNowReturnsFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("database is locked")}
	s := api.NewSweeper(runner, nil)

	_, err := s.RunNow(context.Background())
	assert.EqualError(t, err, "database is locked")
	assert.Equal(t, int64(1), s.Runs(), "failed sweeps still count")
}
