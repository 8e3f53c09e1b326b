package sharing

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntityLocks_MutualExclusion(t *testing.T) {
	locks := newEntityLocks()

	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("tenant-a", "p1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestEntityLocks_IndependentKeys(t *testing.T) {
	locks := newEntityLocks()

	unlock := locks.Lock("tenant-a", "p1")
	defer unlock()

	done := make(chan struct{})
	go func() {
		// Other entities and other tenants are not blocked
		u1 := locks.Lock("tenant-a", "p2")
		u1()
		u2 := locks.Lock("tenant-b", "p1")
		u2()
		close(done)
	}()
	<-done
}

func TestEntityLocks_EntriesReleased(t *testing.T) {
	locks := newEntityLocks()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("tenant-a", "p1")
			unlock()
		}()
	}
	wg.Wait()

	locks.mu.Lock()
	defer locks.mu.Unlock()
	assert.Empty(t, locks.locks)
}
