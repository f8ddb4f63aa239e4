package helpers

import (
	"sync/atomic"
	"time"

	"github.com/temoto/atomic_clock"
)

// Backoff is limited exponential delay between retries.
// Zero K means 2. Safe for concurrent use.
//
// Use scenario:
// for {
//   if err := op(); err == nil {
//     backoff.Reset()
//     break
//   }
//   time.Sleep(backoff.Failure())
// }
type Backoff struct {
	next int64 // atomic align
	last atomic_clock.Clock

	Min time.Duration
	Max time.Duration
	K   float32
}

// Failure returns delay to wait before next attempt and grows following one.
func (b *Backoff) Failure() time.Duration {
	atomic.CompareAndSwapInt64(&b.next, 0, int64(b.Min))
	d := b.limit(time.Duration(atomic.LoadInt64(&b.next)))
	k := b.K
	if k == 0 {
		k = 2
	}
	atomic.StoreInt64(&b.next, int64(b.limit(time.Duration(float32(d)*k))))
	b.last.SetNow()
	return d
}

func (b *Backoff) Reset() {
	atomic.StoreInt64(&b.next, 0)
}

// SinceFailure returns 0 if there was no failure yet.
func (b *Backoff) SinceFailure() time.Duration {
	if b.last.IsZero() {
		return 0
	}
	return atomic_clock.Since(&b.last)
}

func (b *Backoff) limit(d time.Duration) time.Duration {
	if d < b.Min {
		d = b.Min
	}
	if b.Max != 0 && d > b.Max {
		d = b.Max
	}
	return d
}
