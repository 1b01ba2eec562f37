package economy

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlayerLocks_SerializesSameID(t *testing.T) {
	locks := newPlayerLocks()
	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("alice")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, locks.size())
}

func TestPlayerLocks_DistinctIDsDoNotBlock(t *testing.T) {
	locks := newPlayerLocks()
	unlockA := locks.Lock("alice")
	unlockB := locks.Lock("bob")
	assert.Equal(t, 2, locks.size())
	unlockB()
	unlockA()
	assert.Equal(t, 0, locks.size())
}
