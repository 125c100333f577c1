package api

import (
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"rental_dashboard/internal/auth"
	"rental_dashboard/internal/domain"
	"rental_dashboard/internal/invalidation"
	"rental_dashboard/internal/store"
)

// record lets generic handlers stamp ids and timestamps on a decoded value.
type record[T any] interface {
	*T
	domain.Entity
	Stamp(id string, created time.Time, now time.Time)
	Created() time.Time
}

// resource is one CRUD collection mounted under path. Reads need any
// authenticated principal unless public or restricted by read roles.
type resource[T domain.Entity, P record[T]] struct {
	s       *Server
	path    string
	entity  string
	coll    store.Collection[T]
	public  bool
	read    []auth.Role
	write   []auth.Role
	visible func(auth.Principal, T) bool
	filter  func(url.Values, T) bool
}

func register[T domain.Entity, P record[T]](s *Server, res resource[T, P]) {
	res.s = s
	readGuard := auth.Require(res.read...)
	if res.public {
		readGuard = func(next http.Handler) http.Handler { return next }
	}
	writeGuard := auth.Require(res.write...)

	s.mux.Handle("GET "+res.path, readGuard(http.HandlerFunc(res.list)))
	s.mux.Handle("GET "+res.path+"/{id}", readGuard(http.HandlerFunc(res.get)))
	s.mux.Handle("POST "+res.path, writeGuard(http.HandlerFunc(res.create)))
	s.mux.Handle("PUT "+res.path+"/{id}", writeGuard(http.HandlerFunc(res.update)))
	s.mux.Handle("DELETE "+res.path+"/{id}", writeGuard(http.HandlerFunc(res.remove)))
}

func (res resource[T, P]) allowed(r *http.Request, item T) bool {
	if res.visible == nil {
		return true
	}
	return res.visible(auth.PrincipalFromContext(r.Context()), item)
}

func (res resource[T, P]) list(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	items, err := res.coll.List(r.Context(), store.Filter{PropertyID: query.Get("propertyId")})
	if err != nil {
		res.s.writeStoreError(w, r, err)
		return
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		if !res.allowed(r, item) {
			continue
		}
		if res.filter != nil && !res.filter(query, item) {
			continue
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, out)
}

func (res resource[T, P]) get(w http.ResponseWriter, r *http.Request) {
	item, err := res.coll.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		res.s.writeStoreError(w, r, err)
		return
	}
	if !res.allowed(r, item) {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (res resource[T, P]) create(w http.ResponseWriter, r *http.Request) {
	var item T
	if err := decodeJSON(w, r, &item); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json body")
		return
	}
	P(&item).Stamp(uuid.NewString(), time.Time{}, res.s.clock.Now())
	if err := item.Validate(); err != nil {
		res.s.writeStoreError(w, r, err)
		return
	}
	if !res.allowed(r, item) {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}
	if err := res.coll.Create(r.Context(), item); err != nil {
		res.s.writeStoreError(w, r, err)
		return
	}
	res.s.invalidate(r.Context(), w, invalidation.For(res.entity, "created"))
	writeJSON(w, http.StatusCreated, item)
}

func (res resource[T, P]) update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, err := res.coll.Get(r.Context(), id)
	if err != nil {
		res.s.writeStoreError(w, r, err)
		return
	}
	if !res.allowed(r, existing) {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	var item T
	if err := decodeJSON(w, r, &item); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json body")
		return
	}
	P(&item).Stamp(id, P(&existing).Created(), res.s.clock.Now())
	if err := item.Validate(); err != nil {
		res.s.writeStoreError(w, r, err)
		return
	}
	if !res.allowed(r, item) {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}
	if err := res.coll.Put(r.Context(), item); err != nil {
		res.s.writeStoreError(w, r, err)
		return
	}
	res.s.invalidate(r.Context(), w, invalidation.For(res.entity, "updated"))
	writeJSON(w, http.StatusOK, item)
}

func (res resource[T, P]) remove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, err := res.coll.Get(r.Context(), id)
	if err != nil {
		res.s.writeStoreError(w, r, err)
		return
	}
	if !res.allowed(r, existing) {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	if err := res.coll.Delete(r.Context(), id); err != nil {
		res.s.writeStoreError(w, r, err)
		return
	}
	res.s.invalidate(r.Context(), w, invalidation.For(res.entity, "deleted"))
	w.WriteHeader(http.StatusNoContent)
}
