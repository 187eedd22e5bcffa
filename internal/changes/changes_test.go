package changes_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/locus/internal/changes"
)

func newTestBus(t *testing.T) *changes.Bus {
	return changes.NewBus(zaptest.NewLogger(t))
}

func TestBus_SubscribeNotifyUnsubscribe(t *testing.T) {
	defer goleak.VerifyNone(t)
	b := newTestBus(t)

	ch, unsubscribe := b.Subscribe()
	assert.Equal(t, 1, b.Subscribers())

	b.Notify("mutation")
	select {
	case ev := <-ch:
		assert.Equal(t, "mutation", ev.Reason)
		assert.NotEmpty(t, ev.ID)
	case <-time.After(time.Second):
		t.Fatal("expected a change event")
	}

	// Coalescing: a full buffer never blocks the notifier.
	b.Notify("a")
	b.Notify("b")

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, b.Subscribers())
}

func TestBus_Close(t *testing.T) {
	b := newTestBus(t)
	ch, _ := b.Subscribe()
	b.Close()

	_, open := <-ch
	assert.False(t, open)

	late, unsubscribe := b.Subscribe()
	defer unsubscribe()
	_, open = <-late
	assert.False(t, open)
	b.Notify("ignored")
}

func TestWaitFor_ImmediateResolve(t *testing.T) {
	defer goleak.VerifyNone(t)
	b := newTestBus(t)

	err := changes.WaitFor(context.Background(), b, time.Second, func(context.Context) (bool, error) {
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, b.Subscribers())
}

func TestWaitFor_ResolvesOnChange(t *testing.T) {
	defer goleak.VerifyNone(t)
	b := newTestBus(t)

	var ready atomic.Bool
	go func() {
		for b.Subscribers() == 0 {
			time.Sleep(time.Millisecond)
		}
		ready.Store(true)
		b.Notify("inserted")
	}()

	err := changes.WaitFor(context.Background(), b, 2*time.Second, func(context.Context) (bool, error) {
		return ready.Load(), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, b.Subscribers(), "subscription must be released")
}

func TestWaitFor_Timeout(t *testing.T) {
	defer goleak.VerifyNone(t)
	b := newTestBus(t)

	start := time.Now()
	err := changes.WaitFor(context.Background(), b, 30*time.Millisecond, func(context.Context) (bool, error) {
		return false, nil
	})
	assert.ErrorIs(t, err, changes.ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, 0, b.Subscribers())
}

func TestWaitFor_Cancelled(t *testing.T) {
	defer goleak.VerifyNone(t)
	b := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := changes.WaitFor(ctx, b, time.Second, func(context.Context) (bool, error) {
		return false, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
