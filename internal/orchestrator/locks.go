package orchestrator

import "sync"

// conversationLocks serializes submissions per conversation so history reads
// and appends for one conversation never interleave. An entry lives only while
// someone holds or waits for it.
type conversationLocks struct {
	mu    sync.Mutex
	locks map[int64]*conversationLock
}

type conversationLock struct {
	sync.Mutex
	refs int
}

// Lock blocks until the conversation's lock is held and returns its release func.
func (c *conversationLocks) Lock(conversationID int64) func() {
	c.mu.Lock()
	if c.locks == nil {
		c.locks = make(map[int64]*conversationLock)
	}
	lock, ok := c.locks[conversationID]
	if !ok {
		lock = &conversationLock{}
		c.locks[conversationID] = lock
	}
	lock.refs++
	c.mu.Unlock()

	lock.Lock()
	return func() {
		lock.Unlock()

		c.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(c.locks, conversationID)
		}
		c.mu.Unlock()
	}
}

func (c *conversationLocks) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.locks)
}

func (c *conversationLocks) refs(conversationID int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lock, ok := c.locks[conversationID]; ok {
		return lock.refs
	}
	return 0
}
