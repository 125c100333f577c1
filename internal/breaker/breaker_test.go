package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"rental_dashboard/internal/clock"
)

func TestBreakerOpensAndRecovers(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	var transitions []string
	b := New(Config{
		FailureRatePercent: 50,
		MinimumRequests:    4,
		OpenFor:            time.Second,
		Clock:              clk,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+">"+to.String())
		},
	})

	for _, ok := range []bool{true, false, true} {
		assert.True(t, b.Allow())
		b.Report(ok)
	}
	assert.Equal(t, StateClosed, b.State())

	assert.True(t, b.Allow())
	b.Report(false)
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())

	clk.Advance(time.Second)
	assert.True(t, b.Allow(), "one probe after the open period")
	assert.False(t, b.Allow(), "only one probe at a time")
	b.Report(true)
	assert.Equal(t, StateClosed, b.State())

	assert.Equal(t, []string{"closed>open", "open>half_open", "half_open>closed"}, transitions)
}

func TestFailedProbeReopens(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	b := New(Config{MinimumRequests: 1, OpenFor: time.Second, Clock: clk})

	assert.True(t, b.Allow())
	b.Report(false)
	assert.Equal(t, StateOpen, b.State())

	clk.Advance(time.Second)
	assert.True(t, b.Allow())
	b.Report(false)
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
}

func TestWindowResetsCounts(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	b := New(Config{MinimumRequests: 2, Window: time.Second, Clock: clk})

	b.Allow()
	b.Report(false)
	clk.Advance(2 * time.Second)
	b.Allow()
	b.Report(true)
	b.Allow()
	b.Report(true)
	assert.Equal(t, StateClosed, b.State())
}

func TestNilBreakerAllows(t *testing.T) {
	var b *Breaker
	assert.True(t, b.Allow())
	b.Report(false)
	assert.Equal(t, StateClosed, b.State())
}
