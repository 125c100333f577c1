package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"rental_dashboard/internal/domain"
	"rental_dashboard/internal/store"
)

// snapshot is every collection an aggregate reads, loaded concurrently.
type snapshot struct {
	properties   []domain.Property
	bookings     []domain.Booking
	transactions []domain.Transaction
	utilities    []domain.Utility
	tasks        []domain.Task
	documents    []domain.Document
}

func (s *Server) loadSnapshot(ctx context.Context, filter store.Filter) (snapshot, error) {
	var snap snapshot
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.properties, err = s.repos.Properties.List(ctx, filter)
		return err
	})
	g.Go(func() (err error) {
		snap.bookings, err = s.repos.Bookings.List(ctx, filter)
		return err
	})
	g.Go(func() (err error) {
		snap.transactions, err = s.repos.Transactions.List(ctx, filter)
		return err
	})
	g.Go(func() (err error) {
		snap.utilities, err = s.repos.Utilities.List(ctx, filter)
		return err
	})
	g.Go(func() (err error) {
		snap.tasks, err = s.repos.Tasks.List(ctx, filter)
		return err
	})
	g.Go(func() (err error) {
		snap.documents, err = s.repos.Documents.List(ctx, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return snapshot{}, err
	}
	return snap, nil
}

func (s *Server) dashboardSummary(w http.ResponseWriter, r *http.Request) {
	snap, err := s.loadSnapshot(r.Context(), store.Filter{PropertyID: r.URL.Query().Get("propertyId")})
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	now := s.clock.Now()
	finance := domain.Analyze(snap.properties, snap.bookings, snap.transactions, snap.utilities, now)
	writeJSON(w, http.StatusOK, domain.Summarize(domain.SummaryInput{
		Properties:   snap.properties,
		Bookings:     snap.bookings,
		Tasks:        snap.tasks,
		Documents:    snap.documents,
		Finance:      finance,
		ExpiryWindow: s.expiryWindow,
		Now:          now,
	}))
}

func (s *Server) financeAnalytics(w http.ResponseWriter, r *http.Request) {
	snap, err := s.loadSnapshot(r.Context(), store.Filter{PropertyID: r.URL.Query().Get("propertyId")})
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.Analyze(snap.properties, snap.bookings, snap.transactions, snap.utilities, s.clock.Now()))
}

func (s *Server) expiringDocuments(w http.ResponseWriter, r *http.Request) {
	window := s.expiryWindow
	if raw := r.URL.Query().Get("days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days <= 0 {
			writeError(w, r, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		window = time.Duration(days) * 24 * time.Hour
	}
	documents, err := s.repos.Documents.List(r.Context(), store.Filter{PropertyID: r.URL.Query().Get("propertyId")})
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.Expiring(documents, s.clock.Now(), window))
}
