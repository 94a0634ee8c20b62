package seen

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Memory is an in-process ledger: a bounded LRU of keys, each valid for a TTL.
type Memory struct {
	maxEntries int
	ttl        time.Duration
	clock      clockwork.Clock

	mu      sync.Mutex
	entries map[string]*entry
	head    *entry // most recently marked
	tail    *entry // least recently marked
}

type entry struct {
	key     string
	expires time.Time
	prev    *entry
	next    *entry
}

// NewMemory creates a ledger holding at most maxEntries keys. A nil clock
// uses real time.
func NewMemory(maxEntries int, ttl time.Duration, clock clockwork.Clock) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{
		maxEntries: maxEntries,
		ttl:        ttl,
		clock:      clock,
		entries:    make(map[string]*entry),
	}
}

// Seen reports whether key was marked within the TTL. Expired keys are dropped.
func (m *Memory) Seen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	if !m.clock.Now().Before(e.expires) {
		delete(m.entries, key)
		m.remove(e)
		return false, nil
	}
	return true, nil
}

// Mark records key, refreshing its TTL and recency.
func (m *Memory) Mark(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	expires := m.clock.Now().Add(m.ttl)
	if e, ok := m.entries[key]; ok {
		e.expires = expires
		m.moveToFront(e)
		return nil
	}

	e := &entry{key: key, expires: expires}
	m.entries[key] = e
	m.addToFront(e)

	if len(m.entries) > m.maxEntries {
		m.evictTail()
	}
	return nil
}

// Len returns the number of keys held, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) Close() error { return nil }

func (m *Memory) moveToFront(e *entry) {
	if e == m.head {
		return
	}
	m.remove(e)
	m.addToFront(e)
}

func (m *Memory) addToFront(e *entry) {
	e.next = m.head
	e.prev = nil
	if m.head != nil {
		m.head.prev = e
	}
	m.head = e
	if m.tail == nil {
		m.tail = e
	}
}

func (m *Memory) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		m.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		m.tail = e.prev
	}
}

func (m *Memory) evictTail() {
	if m.tail == nil {
		return
	}
	delete(m.entries, m.tail.key)
	m.remove(m.tail)
}
