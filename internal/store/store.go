// Package store persists dashboard entities. Each entity kind lives in its
// own Collection; memory and Postgres implementations share the interface.
package store

import (
	"context"
	"errors"

	"rental_dashboard/internal/domain"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

type Filter struct {
	PropertyID string
}

func (f Filter) match(propertyRef string) bool {
	return f.PropertyID == "" || f.PropertyID == propertyRef
}

type Collection[T domain.Entity] interface {
	List(ctx context.Context, filter Filter) ([]T, error)
	Get(ctx context.Context, id string) (T, error)
	Create(ctx context.Context, item T) error
	Put(ctx context.Context, item T) error
	Delete(ctx context.Context, id string) error
}

// Repositories groups one collection per entity kind.
type Repositories struct {
	Properties   Collection[domain.Property]
	Bookings     Collection[domain.Booking]
	Transactions Collection[domain.Transaction]
	Tasks        Collection[domain.Task]
	Utilities    Collection[domain.Utility]
	Documents    Collection[domain.Document]
	Users        Collection[domain.User]
}

func NewMemoryRepositories() Repositories {
	return Repositories{
		Properties:   NewMemory[domain.Property](),
		Bookings:     NewMemory[domain.Booking](),
		Transactions: NewMemory[domain.Transaction](),
		Tasks:        NewMemory[domain.Task](),
		Utilities:    NewMemory[domain.Utility](),
		Documents:    NewMemory[domain.Document](),
		Users:        NewMemory[domain.User](),
	}
}
