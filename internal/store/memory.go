package store

import (
	"context"
	"sort"
	"sync"

	"rental_dashboard/internal/domain"
)

type Memory[T domain.Entity] struct {
	mu    sync.RWMutex
	items map[string]T
}

func NewMemory[T domain.Entity]() *Memory[T] {
	return &Memory[T]{items: make(map[string]T)}
}

func (m *Memory[T]) List(_ context.Context, filter Filter) ([]T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]T, 0, len(m.items))
	for _, item := range m.items {
		if filter.match(item.PropertyRef()) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EntityID() < out[j].EntityID()
	})
	return out, nil
}

func (m *Memory[T]) Get(_ context.Context, id string) (T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[id]
	if !ok {
		var zero T
		return zero, ErrNotFound
	}
	return item, nil
}

func (m *Memory[T]) Create(_ context.Context, item T) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[item.EntityID()]; ok {
		return ErrConflict
	}
	m.items[item.EntityID()] = item
	return nil
}

func (m *Memory[T]) Put(_ context.Context, item T) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[item.EntityID()]; !ok {
		return ErrNotFound
	}
	m.items[item.EntityID()] = item
	return nil
}

func (m *Memory[T]) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}
