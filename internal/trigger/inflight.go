package trigger

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Inflight tracks activations currently being handed to the agent.
type Inflight interface {
	// Acquire returns false when key is already held and not expired.
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// MemoryInflight is a bounded, TTL-scoped in-process registry. When full,
// the least recently acquired key is evicted.
type MemoryInflight struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time

	mu    sync.Mutex
	items map[string]*list.Element
	lru   *list.List
}

type inflightEntry struct {
	key     string
	expires time.Time
}

func NewMemoryInflight(capacity int, ttl time.Duration) *MemoryInflight {
	if capacity < 1 {
		capacity = 1
	}
	return &MemoryInflight{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		items:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

func (m *MemoryInflight) Acquire(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if elem, exists := m.items[key]; exists {
		entry := elem.Value.(*inflightEntry)
		if now.Before(entry.expires) {
			return false, nil
		}
		entry.expires = now.Add(m.ttl)
		m.lru.MoveToFront(elem)
		return true, nil
	}

	if m.lru.Len() >= m.capacity {
		if oldest := m.lru.Back(); oldest != nil {
			m.lru.Remove(oldest)
			delete(m.items, oldest.Value.(*inflightEntry).key)
		}
	}

	m.items[key] = m.lru.PushFront(&inflightEntry{key: key, expires: now.Add(m.ttl)})
	return true, nil
}

func (m *MemoryInflight) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, exists := m.items[key]; exists {
		m.lru.Remove(elem)
		delete(m.items, key)
	}
	return nil
}

// Len returns the number of tracked keys, expired ones included.
func (m *MemoryInflight) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len()
}
