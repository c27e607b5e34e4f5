package serial

import (
	"context"
	"sync/atomic"
	"time"
)

// aLongTimeAgo is a non-zero time in the past, used to force pending
// operations to return immediately.
var aLongTimeAgo = time.Unix(0, 1)

// deadline is one direction's deadline setter together with the last
// deadline the caller asked for, so an interrupted call can put it back.
type deadline struct {
	set func(time.Time) error
	at  atomic.Pointer[time.Time]
}

func newDeadline(set func(time.Time) error) *deadline {
	return &deadline{set: set}
}

// Set records t as the caller's deadline and applies it.
func (d *deadline) Set(t time.Time) error {
	d.at.Store(&t)
	return d.set(t)
}

func (d *deadline) kick() error { return d.set(aLongTimeAgo) }

// restore reapplies the caller's deadline, or none if it never set one.
func (d *deadline) restore() error {
	if t := d.at.Load(); t != nil {
		return d.set(*t)
	}
	return d.set(time.Time{})
}

// interruptible runs op, a blocking operation, until it completes or ctx is
// done. On cancellation the pending op is kicked out through d and the
// caller's own deadline is put back before returning, so later calls are not
// affected. Bytes op moved before it was interrupted are not reported.
func interruptible(ctx context.Context, d *deadline, op func() (int, error)) (int, error) {
	if ctx.Done() == nil {
		return op()
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		_ = d.kick()
	})

	n, err := op()
	if stop() {
		return n, err
	}

	// The deadline was (or is being) kicked; wait for it, then restore.
	<-fired
	_ = d.restore()
	if err != nil {
		return n, ctx.Err()
	}
	return n, nil
}
