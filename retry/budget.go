package retry

import "sync/atomic"

// Budget is a session-wide count of retries shared by every test.
type Budget struct {
	remaining atomic.Int64
}

func NewBudget(retries int) *Budget {
	b := &Budget{}
	b.remaining.Store(int64(retries))
	return b
}

// Take consumes one retry and reports whether one was available.
func (b *Budget) Take() bool {
	for {
		cur := b.remaining.Load()
		if cur <= 0 {
			return false
		}
		if b.remaining.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

func (b *Budget) Remaining() int {
	return int(b.remaining.Load())
}
