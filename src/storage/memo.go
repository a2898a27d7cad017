package storage

import "sync"

// Memo 按键缓存计算结果，失败的计算不缓存
// 超过容量时按插入顺序淘汰最早的条目
type Memo[K comparable, V any] struct {
	mu      sync.Mutex
	max     int
	order   []K
	entries map[K]V
}

// NewMemo 创建容量为 max 的缓存，max <= 0 时取 1
func NewMemo[K comparable, V any](max int) *Memo[K, V] {
	if max <= 0 {
		max = 1
	}
	return &Memo[K, V]{
		max:     max,
		entries: make(map[K]V),
	}
}

// Get 返回 key 对应的值，未命中时调用 compute 计算并保存
// 第二个返回值表示是否命中缓存
// 计算期间持有锁，同一时刻只有一个计算在进行
func (m *Memo[K, V]) Get(key K, compute func() (V, error)) (V, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.entries[key]; ok {
		return v, true, nil
	}

	v, err := compute()
	if err != nil {
		var zero V
		return zero, false, err
	}

	if len(m.order) >= m.max {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.entries, oldest)
	}
	m.order = append(m.order, key)
	m.entries[key] = v
	return v, false, nil
}

// Invalidate 清空缓存
func (m *Memo[K, V]) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.order = nil
	m.entries = make(map[K]V)
}

// Len 返回缓存条目数
func (m *Memo[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
