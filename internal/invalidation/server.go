package invalidation

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"

	"rental_dashboard/internal/obs"
)

// Purger removes server cache entries under a set of prefixes.
type Purger interface {
	PurgePrefixes(ctx context.Context, prefixes []string) (int, error)
}

// fullPurger is implemented by purgers that can drop everything, used when
// a targeted purge fails part way.
type fullPurger interface {
	PurgeAll(ctx context.Context) error
}

// ServerInvalidator applies the graph to the server response cache. Callers
// run it before acknowledging a mutation.
type ServerInvalidator struct {
	Graph   *Graph
	Purger  Purger
	Metrics *obs.Metrics
	Logger  *log.Logger
}

// Invalidate returns the number of entries removed. When the targeted purge
// fails the whole cache is dropped instead; only if that also fails is the
// error returned.
func (s *ServerInvalidator) Invalidate(ctx context.Context, mutation Mutation) (int, error) {
	if s == nil || s.Graph == nil || s.Purger == nil {
		return 0, nil
	}
	prefixes, err := s.Graph.Targets(mutation)
	if err != nil {
		return 0, err
	}
	removed, err := s.Purger.PurgePrefixes(ctx, prefixes)
	s.Metrics.RecordInvalidation(obs.LayerServer, string(mutation), removed)
	if err != nil {
		s.Metrics.RecordCacheStoreFail(obs.LayerServer, "invalidate")
		if s.Logger != nil {
			s.Logger.Warn("server cache invalidation failed", "mutation", mutation, "err", err)
		}
		full, ok := s.Purger.(fullPurger)
		if !ok {
			return removed, err
		}
		if purgeErr := full.PurgeAll(ctx); purgeErr != nil {
			return removed, errors.Join(err, purgeErr)
		}
		return removed, nil
	}
	if s.Logger != nil {
		s.Logger.Debug("server cache invalidated", "mutation", mutation, "removed", removed)
	}
	return removed, nil
}
