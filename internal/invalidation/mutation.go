package invalidation

import (
	"net/http"
	"strings"
)

// Mutation names one state-changing operation, "<entity>.<action>".
type Mutation string

const (
	PropertyCreated Mutation = "property.created"
	PropertyUpdated Mutation = "property.updated"
	PropertyDeleted Mutation = "property.deleted"

	BookingCreated Mutation = "booking.created"
	BookingUpdated Mutation = "booking.updated"
	BookingDeleted Mutation = "booking.deleted"

	TransactionCreated Mutation = "transaction.created"
	TransactionUpdated Mutation = "transaction.updated"
	TransactionDeleted Mutation = "transaction.deleted"

	UtilityCreated Mutation = "utility.created"
	UtilityUpdated Mutation = "utility.updated"
	UtilityDeleted Mutation = "utility.deleted"

	TaskCreated Mutation = "task.created"
	TaskUpdated Mutation = "task.updated"
	TaskDeleted Mutation = "task.deleted"

	DocumentCreated Mutation = "document.created"
	DocumentUpdated Mutation = "document.updated"
	DocumentDeleted Mutation = "document.deleted"

	UserCreated Mutation = "user.created"
	UserUpdated Mutation = "user.updated"
	UserDeleted Mutation = "user.deleted"
)

// Known lists every mutation the API emits.
var Known = []Mutation{
	PropertyCreated, PropertyUpdated, PropertyDeleted,
	BookingCreated, BookingUpdated, BookingDeleted,
	TransactionCreated, TransactionUpdated, TransactionDeleted,
	UtilityCreated, UtilityUpdated, UtilityDeleted,
	TaskCreated, TaskUpdated, TaskDeleted,
	DocumentCreated, DocumentUpdated, DocumentDeleted,
	UserCreated, UserUpdated, UserDeleted,
}

// For builds the mutation name for an entity and action.
func For(entity string, action string) Mutation {
	return Mutation(entity + "." + action)
}

// entityByDomain maps an API collection segment to its entity name.
var entityByDomain = map[string]string{
	"properties": "property",
	"bookings":   "booking",
	"finance":    "transaction",
	"utilities":  "utility",
	"tasks":      "task",
	"documents":  "document",
	"users":      "user",
}

// FromRequest derives the mutation for a write to an /api/<domain> path.
func FromRequest(method string, path string) (Mutation, bool) {
	var action string
	switch strings.ToUpper(method) {
	case http.MethodPost:
		action = "created"
	case http.MethodPut, http.MethodPatch:
		action = "updated"
	case http.MethodDelete:
		action = "deleted"
	default:
		return "", false
	}
	rest, ok := strings.CutPrefix(path, "/api/")
	if !ok {
		return "", false
	}
	segment, _, _ := strings.Cut(rest, "/")
	segment, _, _ = strings.Cut(segment, "?")
	entity, ok := entityByDomain[segment]
	if !ok {
		return "", false
	}
	return For(entity, action), true
}
