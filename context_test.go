package serial

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeDeadline unblocks a simulated blocking op when a past deadline is set.
type fakeDeadline struct {
	mu      sync.Mutex
	set     []time.Time
	expired chan struct{}
}

func newFakeDeadline() *fakeDeadline {
	return &fakeDeadline{expired: make(chan struct{})}
}

func (f *fakeDeadline) SetDeadline(t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.set = append(f.set, t)
	if !t.IsZero() && t.Before(time.Now()) {
		close(f.expired)
	}
	return nil
}

func (f *fakeDeadline) calls() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.set...)
}

var errTimeout = errors.New("i/o timeout")

func TestInterruptible_Completes(t *testing.T) {
	d := newFakeDeadline()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n, err := interruptible(ctx, newDeadline(d.SetDeadline), func() (int, error) { return 3, nil })
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Empty(t, d.calls())
}

func TestInterruptible_BackgroundSkipsWatcher(t *testing.T) {
	d := newFakeDeadline()
	_, err := interruptible(context.Background(), newDeadline(d.SetDeadline), func() (int, error) { return 0, errTimeout })
	require.ErrorIs(t, err, errTimeout)
	require.Empty(t, d.calls())
}

func TestInterruptible_CancelKicksOpAndDisarms(t *testing.T) {
	d := newFakeDeadline()
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	n, err := interruptible(ctx, newDeadline(d.SetDeadline), func() (int, error) {
		<-d.expired
		return 0, errTimeout
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, n)

	calls := d.calls()
	require.Len(t, calls, 2)
	require.Equal(t, aLongTimeAgo, calls[0])
	require.True(t, calls[1].IsZero(), "deadline must be cleared after cancellation")
}

func TestInterruptible_AlreadyCancelled(t *testing.T) {
	d := newFakeDeadline()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	_, err := interruptible(ctx, newDeadline(d.SetDeadline), func() (int, error) {
		ran = true
		return 0, nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, ran)
}

func TestInterruptible_SuccessRacingCancel(t *testing.T) {
	d := newFakeDeadline()
	ctx, cancel := context.WithCancel(context.Background())

	n, err := interruptible(ctx, newDeadline(d.SetDeadline), func() (int, error) {
		cancel()
		<-d.expired
		return 4, nil
	})
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.True(t, d.calls()[1].IsZero())
}

func TestInterruptible_RestoresCallerDeadline(t *testing.T) {
	d := newFakeDeadline()
	dl := newDeadline(d.SetDeadline)
	want := time.Now().Add(time.Hour)
	require.NoError(t, dl.Set(want))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := interruptible(ctx, dl, func() (int, error) {
		<-d.expired
		return 0, errTimeout
	})
	require.ErrorIs(t, err, context.Canceled)

	calls := d.calls()
	require.Len(t, calls, 3)
	require.Equal(t, want, calls[0])
	require.Equal(t, aLongTimeAgo, calls[1])
	require.Equal(t, want, calls[2], "caller's deadline must survive a cancelled call")
}
