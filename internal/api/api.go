// Package api serves the dashboard REST endpoints. GET responses pass
// through the server response cache; every mutation purges the affected
// cache groups before it is acknowledged.
package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/trace"

	"rental_dashboard/internal/auth"
	"rental_dashboard/internal/clock"
	"rental_dashboard/internal/domain"
	"rental_dashboard/internal/httpcache"
	"rental_dashboard/internal/invalidation"
	"rental_dashboard/internal/obs"
	"rental_dashboard/internal/store"
)

// HeaderInvalidated reports how many server cache entries a mutation
// removed.
const HeaderInvalidated = "X-Cache-Invalidated"

type Config struct {
	Repos        store.Repositories
	Auth         *auth.Authenticator
	Cache        *httpcache.Middleware
	Invalidator  *invalidation.ServerInvalidator
	ExpiryWindow time.Duration
	Clock        clock.Clock
	Metrics      *obs.Metrics
	Logger       *log.Logger
	Tracer       trace.Tracer
}

type Server struct {
	repos        store.Repositories
	auth         *auth.Authenticator
	cache        *httpcache.Middleware
	invalidator  *invalidation.ServerInvalidator
	expiryWindow time.Duration
	clock        clock.Clock
	metrics      *obs.Metrics
	logger       *log.Logger
	tracer       trace.Tracer
	mux          *http.ServeMux
}

func New(cfg Config) *Server {
	window := cfg.ExpiryWindow
	if window <= 0 {
		window = domain.DefaultExpiryWindow
	}
	s := &Server{
		repos:        cfg.Repos,
		auth:         cfg.Auth,
		cache:        cfg.Cache,
		invalidator:  cfg.Invalidator,
		expiryWindow: window,
		clock:        clock.OrReal(cfg.Clock),
		metrics:      cfg.Metrics,
		logger:       obs.OrDiscard(cfg.Logger),
		tracer:       cfg.Tracer,
		mux:          http.NewServeMux(),
	}
	s.routes()
	return s
}

// Handler returns the full chain: observe, authenticate, cache, route.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	if s.cache != nil {
		h = s.cache.Wrap(h)
	}
	h = auth.Middleware(s.auth)(h)
	return s.observe(h)
}

func (s *Server) routes() {
	staffOrAbove := []auth.Role{auth.RoleAdmin, auth.RoleManager, auth.RoleStaff}
	managers := []auth.Role{auth.RoleAdmin, auth.RoleManager}
	finance := []auth.Role{auth.RoleAdmin, auth.RoleManager, auth.RoleOwner}

	s.mux.HandleFunc("POST /api/login", s.login)

	register(s, resource[domain.Property, *domain.Property]{
		path: "/api/properties", entity: "property", coll: s.repos.Properties,
		public: true, write: managers,
	})
	register(s, resource[domain.Booking, *domain.Booking]{
		path: "/api/bookings", entity: "booking", coll: s.repos.Bookings,
		write: managers,
	})
	register(s, resource[domain.Transaction, *domain.Transaction]{
		path: "/api/finance", entity: "transaction", coll: s.repos.Transactions,
		read: finance, write: managers,
	})
	register(s, resource[domain.Utility, *domain.Utility]{
		path: "/api/utilities", entity: "utility", coll: s.repos.Utilities,
		read: finance, write: managers,
	})
	register(s, resource[domain.Task, *domain.Task]{
		path: "/api/tasks", entity: "task", coll: s.repos.Tasks,
		write:   staffOrAbove,
		visible: taskVisible,
		filter: func(q url.Values, t domain.Task) bool {
			assignee := q.Get("assigneeId")
			return assignee == "" || t.AssigneeID == assignee
		},
	})
	register(s, resource[domain.Document, *domain.Document]{
		path: "/api/documents", entity: "document", coll: s.repos.Documents,
		write: managers,
	})
	register(s, resource[domain.User, *domain.User]{
		path: "/api/users", entity: "user", coll: s.repos.Users,
		read: []auth.Role{auth.RoleAdmin}, write: []auth.Role{auth.RoleAdmin},
	})

	s.mux.Handle("GET /api/dashboard/summary", auth.Require()(http.HandlerFunc(s.dashboardSummary)))
	s.mux.Handle("GET /api/finance/analytics", auth.Require(finance...)(http.HandlerFunc(s.financeAnalytics)))
	s.mux.Handle("GET /api/documents/expiring", auth.Require()(http.HandlerFunc(s.expiringDocuments)))
}

// taskVisible limits staff to tasks assigned to them.
func taskVisible(p auth.Principal, t domain.Task) bool {
	if p.Role != auth.RoleStaff {
		return true
	}
	return t.AssigneeID == p.ID
}

// invalidate purges the server cache for a mutation that has already been
// applied. It runs before the response is written.
func (s *Server) invalidate(ctx context.Context, w http.ResponseWriter, mutation invalidation.Mutation) {
	removed, err := s.invalidator.Invalidate(ctx, mutation)
	if err != nil {
		s.logger.Error("cache invalidation incomplete", "mutation", mutation, "err", err)
	}
	w.Header().Set(HeaderInvalidated, strconv.Itoa(removed))
}
