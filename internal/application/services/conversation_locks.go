package services

import "sync"

// ConversationLocks serializes work per conversation. Entries are reference
// counted and removed once the last holder or waiter releases them.
type ConversationLocks struct {
	mu    sync.Mutex
	locks map[string]*conversationLock
}

type conversationLock struct {
	mu   sync.Mutex
	refs int
}

func NewConversationLocks() *ConversationLocks {
	return &ConversationLocks{locks: make(map[string]*conversationLock)}
}

// Lock blocks until the caller holds the lock for id and returns its release func.
func (l *ConversationLocks) Lock(id string) func() {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &conversationLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.mu.Unlock()

			l.mu.Lock()
			entry.refs--
			if entry.refs == 0 {
				delete(l.locks, id)
			}
			l.mu.Unlock()
		})
	}
}

// Len returns the number of conversations currently locked or awaited.
func (l *ConversationLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
