// ABOUTME: Tests for the push-event id dedupe cache
// ABOUTME: Covers first-delivery vs duplicate, TTL expiry, size-bounded eviction

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeen_FirstDeliveryThenDuplicate(t *testing.T) {
	c := New(time.Minute, 100)
	defer c.Close()

	assert.False(t, c.Seen("evt-1"), "first delivery should not be a duplicate")
	assert.True(t, c.Seen("evt-1"), "second delivery should be a duplicate")
	assert.False(t, c.Seen("evt-2"), "different id should not be a duplicate")
}

func TestSeen_ExpiredIDIsNotDuplicate(t *testing.T) {
	c := New(30*time.Millisecond, 100)
	defer c.Close()

	assert.False(t, c.Seen("evt-1"))
	time.Sleep(60 * time.Millisecond)
	assert.False(t, c.Seen("evt-1"), "expired id should be treated as new")
}

func TestSeen_EvictsOldestAtCapacity(t *testing.T) {
	c := New(time.Minute, 3)
	defer c.Close()

	c.Seen("evt-1")
	c.Seen("evt-2")
	c.Seen("evt-3")
	c.Seen("evt-4") // evicts evt-1

	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Seen("evt-1"), "evicted id should be treated as new")
	assert.True(t, c.Seen("evt-4"))
}

func TestSeen_DuplicateRefreshesOrder(t *testing.T) {
	c := New(time.Minute, 2)
	defer c.Close()

	c.Seen("evt-1")
	c.Seen("evt-2")
	c.Seen("evt-1") // refresh: evt-2 is now oldest
	c.Seen("evt-3") // evicts evt-2

	assert.True(t, c.Seen("evt-1"), "refreshed id should survive eviction")
	assert.False(t, c.Seen("evt-2"), "stale id should have been evicted")
}

func TestSeen_ConcurrentAccess(t *testing.T) {
	c := New(time.Minute, 1000)
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Seen(fmt.Sprintf("evt-%d-%d", i, j))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000, c.Len())
}

func TestClose_SafeToCallTwice(t *testing.T) {
	c := New(time.Minute, 10)
	c.Close()
	c.Close()
}
