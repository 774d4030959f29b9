// internal/lock/memory.go
package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryManager 是进程内实现，语义与 RedisManager 一致（含 TTL 过期）。
// 用于测试和单副本本地运行。
type MemoryManager struct {
	mu     sync.Mutex
	leases map[string]*memoryLease
	now    func() time.Time
}

func NewMemoryManager() *MemoryManager {
	return &MemoryManager{leases: make(map[string]*memoryLease), now: time.Now}
}

func (m *MemoryManager) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.leases[key]; ok && m.now().Before(cur.expiresAt) {
		return nil, ErrNotAcquired
	}
	l := &memoryLease{mgr: m, key: key, expiresAt: m.now().Add(ttl)}
	m.leases[key] = l
	return l, nil
}

type memoryLease struct {
	mgr       *MemoryManager
	key       string
	expiresAt time.Time
}

func (l *memoryLease) valid() bool {
	cur, ok := l.mgr.leases[l.key]
	return ok && cur == l && l.mgr.now().Before(l.expiresAt)
}

func (l *memoryLease) Release(context.Context) error {
	l.mgr.mu.Lock()
	defer l.mgr.mu.Unlock()
	if !l.valid() {
		return ErrLockLost
	}
	delete(l.mgr.leases, l.key)
	return nil
}

func (l *memoryLease) Extend(_ context.Context, ttl time.Duration) error {
	l.mgr.mu.Lock()
	defer l.mgr.mu.Unlock()
	if !l.valid() {
		return ErrLockLost
	}
	l.expiresAt = l.mgr.now().Add(ttl)
	return nil
}

func (l *memoryLease) KeepAlive(ctx context.Context, ttl time.Duration) <-chan struct{} {
	lost := make(chan struct{})
	go func() {
		ticker := time.NewTicker(ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := l.Extend(ctx, ttl); err != nil {
					close(lost)
					return
				}
			}
		}
	}()
	return lost
}
