// Package domain holds the dashboard entities and the aggregates computed
// from them.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalid = errors.New("invalid entity")

// Entity is implemented by every stored record.
type Entity interface {
	EntityID() string
	PropertyRef() string
	Validate() error
}

// Meta is embedded in every entity.
type Meta struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (m Meta) EntityID() string {
	return m.ID
}

func (m Meta) Created() time.Time {
	return m.CreatedAt
}

func (m *Meta) Stamp(id string, created time.Time, now time.Time) {
	m.ID = id
	if created.IsZero() {
		created = now
	}
	m.CreatedAt = created
	m.UpdatedAt = now
}

type Property struct {
	Meta
	Name        string  `json:"name"`
	Address     string  `json:"address"`
	City        string  `json:"city"`
	Bedrooms    int     `json:"bedrooms"`
	NightlyRate float64 `json:"nightlyRate"`
	OwnerID     string  `json:"ownerId,omitempty"`
}

func (p Property) PropertyRef() string { return p.ID }

func (p Property) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return invalid("property name is required")
	}
	if p.Bedrooms < 0 || p.NightlyRate < 0 {
		return invalid("property bedrooms and nightly rate must be non-negative")
	}
	return nil
}

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

type Booking struct {
	Meta
	PropertyID  string        `json:"propertyId"`
	GuestName   string        `json:"guestName"`
	CheckIn     time.Time     `json:"checkIn"`
	CheckOut    time.Time     `json:"checkOut"`
	TotalAmount float64       `json:"totalAmount"`
	Status      BookingStatus `json:"status"`
}

func (b Booking) PropertyRef() string { return b.PropertyID }

func (b Booking) Validate() error {
	if b.PropertyID == "" || strings.TrimSpace(b.GuestName) == "" {
		return invalid("booking needs a property and a guest")
	}
	if !b.CheckOut.After(b.CheckIn) {
		return invalid("booking check-out must be after check-in")
	}
	if b.TotalAmount < 0 {
		return invalid("booking amount must be non-negative")
	}
	switch b.Status {
	case BookingPending, BookingConfirmed, BookingCancelled:
	default:
		return invalid(fmt.Sprintf("unknown booking status %q", b.Status))
	}
	return nil
}

// Active reports whether the booking overlaps now and is not cancelled.
func (b Booking) Active(now time.Time) bool {
	return b.Status != BookingCancelled && !now.Before(b.CheckIn) && now.Before(b.CheckOut)
}

type TransactionKind string

const (
	Income  TransactionKind = "income"
	Expense TransactionKind = "expense"
)

type Transaction struct {
	Meta
	PropertyID  string          `json:"propertyId"`
	Kind        TransactionKind `json:"kind"`
	Category    string          `json:"category"`
	Amount      float64         `json:"amount"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description,omitempty"`
}

func (t Transaction) PropertyRef() string { return t.PropertyID }

func (t Transaction) Validate() error {
	if t.Kind != Income && t.Kind != Expense {
		return invalid(fmt.Sprintf("unknown transaction kind %q", t.Kind))
	}
	if t.Amount <= 0 {
		return invalid("transaction amount must be positive")
	}
	return nil
}

type TaskStatus string

const (
	TaskOpen       TaskStatus = "open"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
)

type Task struct {
	Meta
	PropertyID string     `json:"propertyId"`
	Title      string     `json:"title"`
	AssigneeID string     `json:"assigneeId,omitempty"`
	Status     TaskStatus `json:"status"`
	Priority   string     `json:"priority,omitempty"`
	DueDate    *time.Time `json:"dueDate,omitempty"`
}

func (t Task) PropertyRef() string { return t.PropertyID }

func (t Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return invalid("task title is required")
	}
	switch t.Status {
	case TaskOpen, TaskInProgress, TaskDone:
	default:
		return invalid(fmt.Sprintf("unknown task status %q", t.Status))
	}
	return nil
}

type Utility struct {
	Meta
	PropertyID string    `json:"propertyId"`
	Provider   string    `json:"provider"`
	Kind       string    `json:"kind"`
	Amount     float64   `json:"amount"`
	Period     time.Time `json:"period"`
	Paid       bool      `json:"paid"`
}

func (u Utility) PropertyRef() string { return u.PropertyID }

func (u Utility) Validate() error {
	if u.PropertyID == "" || u.Kind == "" {
		return invalid("utility needs a property and a kind")
	}
	if u.Amount < 0 {
		return invalid("utility amount must be non-negative")
	}
	return nil
}

type Document struct {
	Meta
	PropertyID string     `json:"propertyId"`
	Title      string     `json:"title"`
	Kind       string     `json:"kind"`
	URL        string     `json:"url,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

func (d Document) PropertyRef() string { return d.PropertyID }

func (d Document) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return invalid("document title is required")
	}
	return nil
}

type User struct {
	Meta
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (u User) PropertyRef() string { return "" }

func (u User) Validate() error {
	if strings.TrimSpace(u.Name) == "" || !strings.Contains(u.Email, "@") {
		return invalid("user needs a name and an email")
	}
	return nil
}

func invalid(message string) error {
	return fmt.Errorf("%w: %s", ErrInvalid, message)
}
