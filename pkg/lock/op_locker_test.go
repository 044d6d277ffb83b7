package lock

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	l := NewOpLocker()

	require.True(t, l.Acquire("chan-1"))
	assert.False(t, l.Acquire("chan-1"))
	assert.True(t, l.Held("chan-1"))

	// Independent keys do not contend.
	assert.True(t, l.Acquire("chan-2"))

	l.Release("chan-1")
	assert.False(t, l.Held("chan-1"))
	assert.True(t, l.Acquire("chan-1"))
}

func TestReleaseUnheldKeyDoesNotPanic(t *testing.T) {
	l := NewOpLocker()
	l.Release("never-acquired")
	assert.False(t, l.Held("never-acquired"))
}

func TestConcurrentAcquireExactlyOneWinner(t *testing.T) {
	l := NewOpLocker()

	var (
		wg  sync.WaitGroup
		won int64
	)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Acquire("contested") {
				atomic.AddInt64(&won, 1)
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, int64(1), won)
}
