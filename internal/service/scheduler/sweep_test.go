// internal/service/scheduler/sweep_test.go
package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

type countingSweepable struct {
	expired   atomic.Int32
	completed atomic.Int32
	done      chan struct{}
}

func (c *countingSweepable) SweepExpiredOrders(context.Context, int) (int, error) {
	c.expired.Add(1)
	return 1, nil
}

func (c *countingSweepable) SweepAutoComplete(context.Context, int) (int, error) {
	c.completed.Add(1)
	select {
	case c.done <- struct{}{}:
	default:
	}
	return 0, nil
}

type fixedLeader bool

func (l fixedLeader) IsLeader() bool { return bool(l) }

func TestSweeperRunsBothScansOnTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc := &countingSweepable{done: make(chan struct{}, 1)}
	sweeper := NewSweeper(svc, fixedLeader(true), clock, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweeper.Run(ctx)

	clock.BlockUntil(1)
	clock.Advance(time.Minute)

	select {
	case <-svc.done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep did not run after tick")
	}
	assert.Equal(t, int32(1), svc.expired.Load())
	assert.Equal(t, int32(1), svc.completed.Load())
}

func TestSweeperSkipsWhenNotLeader(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc := &countingSweepable{done: make(chan struct{}, 1)}
	sweeper := NewSweeper(svc, fixedLeader(false), clock, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweeper.Run(ctx)

	clock.BlockUntil(1)
	clock.Advance(3 * time.Minute)

	select {
	case <-svc.done:
		t.Fatal("non-leader must not sweep")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Zero(t, svc.expired.Load())
}
