package application

import (
	"bytes"
	"context"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	calls chan struct{}
	err   error
}

func (s *countingSweeper) AutoPredict(context.Context) (*SweepResult, error) {
	s.calls <- struct{}{}
	if s.err != nil {
		return nil, s.err
	}
	return &SweepResult{RunID: "run-1", StationsAnalyzed: 2, AlertsCreated: 1}, nil
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitCall(t *testing.T, calls <-chan struct{}) {
	t.Helper()
	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep was not triggered")
	}
}

func TestSchedulerRunsOnEveryTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sweeper := &countingSweeper{calls: make(chan struct{}, 4)}
	out := &syncBuffer{}
	scheduler := NewScheduler(sweeper, time.Minute, clock, log.New(out, "", 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		scheduler.Start(ctx)
		close(done)
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))

	clock.Advance(time.Minute)
	waitCall(t, sweeper.calls)
	clock.Advance(time.Minute)
	waitCall(t, sweeper.calls)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Contains(t, out.String(), "sweep schedule: run=run-1 stations=2 created=1")
}

func TestSchedulerLogsSweepErrors(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sweeper := &countingSweeper{calls: make(chan struct{}, 1), err: errors.New("db down")}
	out := &syncBuffer{}
	scheduler := NewScheduler(sweeper, time.Second, clock, log.New(out, "", 0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go scheduler.Start(ctx)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	clock.Advance(time.Second)
	waitCall(t, sweeper.calls)

	assert.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("sweep schedule error: db down"))
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerDisabledWithoutInterval(t *testing.T) {
	sweeper := &countingSweeper{calls: make(chan struct{}, 1)}
	scheduler := NewScheduler(sweeper, 0, clockwork.NewFakeClock(), nil)

	done := make(chan struct{})
	go func() {
		scheduler.Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("disabled scheduler should return immediately")
	}
	assert.Empty(t, sweeper.calls)
}
