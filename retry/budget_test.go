package retry

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBudgetConcurrentTake(t *testing.T) {
	budget := NewBudget(100)

	var taken atomic.Int64
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				if budget.Take() {
					taken.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), taken.Load())
	assert.Equal(t, 0, budget.Remaining())
	assert.False(t, budget.Take())
}
