package state

import (
	"context"
	"sync"

	"github.com/lvalente/filmtrack-go/internal/domain"
	"github.com/lvalente/filmtrack-go/internal/infra/observability"
	"github.com/lvalente/filmtrack-go/internal/port"

	"go.uber.org/zap"
)

// Fallback messages recorded when a remote failure carries no usable text.
const (
	msgFetchFilms         = "Failed to fetch films"
	msgCreateFilm         = "Failed to create film"
	msgUpdateFilm         = "Failed to update film"
	msgDeleteFilm         = "Failed to delete film"
	msgFetchDistributions = "Failed to fetch distributions"
	msgCreateDistribution = "Failed to create distribution"
)

// Catalog is the record cache manager: in-memory mirrors of the films and
// distributions collections, kept in step with the remote store through the
// CRUD operations below. The remote store is the single source of truth;
// the mirror reflects only server-confirmed state, never optimistic writes.
//
// loading and errMsg are shared across both collections. Overlapping
// operations race on them last-write-wins; which records end up stored is
// never affected, only the advisory flags.
type Catalog struct {
	films   port.FilmStore
	dists   port.DistributionStore
	logger  *zap.Logger
	metrics *observability.Metrics

	mu          sync.RWMutex
	filmRecords []domain.Film
	distRecords []domain.Distribution
	loading     bool
	errMsg      string
}

// NewCatalog creates an empty catalog backed by the given stores.
func NewCatalog(films port.FilmStore, dists port.DistributionStore, logger *zap.Logger, metrics *observability.Metrics) *Catalog {
	return &Catalog{
		films:   films,
		dists:   dists,
		logger:  logger,
		metrics: metrics,
	}
}

// begin starts an operation: loading on, previous error cleared.
func (c *Catalog) begin() {
	c.mu.Lock()
	c.loading = true
	c.errMsg = ""
	c.mu.Unlock()
}

// finish ends an operation on every exit path.
func (c *Catalog) finish() {
	c.mu.Lock()
	c.loading = false
	c.mu.Unlock()
}

// fail records the human-readable message for a remote failure. The
// collections are left exactly as they were.
func (c *Catalog) fail(op string, err error, fallback string) {
	msg := domain.RemoteMessage(err, fallback)
	c.mu.Lock()
	c.errMsg = msg
	c.mu.Unlock()
	c.logger.Warn("catalog: operation failed",
		zap.String("operation", op),
		zap.Error(err),
	)
}

// FetchFilms replaces the films mirror with the remote list, newest first.
// The mutex is not held across the remote call, so of two overlapping
// fetches the one that settles last wins.
func (c *Catalog) FetchFilms(ctx context.Context) error {
	c.begin()
	defer c.finish()

	films, err := c.films.ListFilms(ctx)
	if err != nil {
		c.fail("fetch_films", err, msgFetchFilms)
		return err
	}

	c.mu.Lock()
	c.filmRecords = films
	c.mu.Unlock()
	c.metrics.IncrRefresh("films")
	return nil
}

// CreateFilm inserts one film remotely and prepends the server-confirmed
// record, keeping the newest-first order without a refetch.
func (c *Catalog) CreateFilm(ctx context.Context, in domain.FilmInput) (*domain.Film, error) {
	c.begin()
	defer c.finish()

	film, err := c.films.InsertFilm(ctx, in)
	if err != nil {
		c.fail("create_film", err, msgCreateFilm)
		return nil, err
	}

	c.mu.Lock()
	c.filmRecords = append([]domain.Film{*film}, c.filmRecords...)
	c.mu.Unlock()
	return film, nil
}

// UpdateFilm applies a partial update remotely and swaps the confirmed
// record into place. An id the mirror has never seen is left alone: the
// remote write still happened, the next fetch will pick it up.
func (c *Catalog) UpdateFilm(ctx context.Context, id string, updates map[string]any) (*domain.Film, error) {
	c.begin()
	defer c.finish()

	film, err := c.films.UpdateFilm(ctx, id, updates)
	if err != nil {
		c.fail("update_film", err, msgUpdateFilm)
		return nil, err
	}

	c.mu.Lock()
	for i := range c.filmRecords {
		if c.filmRecords[i].ID == id {
			c.filmRecords[i] = *film
			break
		}
	}
	c.mu.Unlock()
	return film, nil
}

// DeleteFilm removes a film remotely, then drops it from the mirror.
// Like the remote delete, it is idempotent.
func (c *Catalog) DeleteFilm(ctx context.Context, id string) error {
	c.begin()
	defer c.finish()

	if err := c.films.DeleteFilm(ctx, id); err != nil {
		c.fail("delete_film", err, msgDeleteFilm)
		return err
	}

	c.mu.Lock()
	kept := c.filmRecords[:0:0]
	for _, f := range c.filmRecords {
		if f.ID != id {
			kept = append(kept, f)
		}
	}
	c.filmRecords = kept
	c.mu.Unlock()
	return nil
}

// FetchDistributions replaces the distributions mirror, newest first.
func (c *Catalog) FetchDistributions(ctx context.Context) error {
	c.begin()
	defer c.finish()

	dists, err := c.dists.ListDistributions(ctx)
	if err != nil {
		c.fail("fetch_distributions", err, msgFetchDistributions)
		return err
	}

	c.mu.Lock()
	c.distRecords = dists
	c.mu.Unlock()
	c.metrics.IncrRefresh("distributions")
	return nil
}

// CreateDistribution inserts one deal remotely and prepends the confirmed
// record.
func (c *Catalog) CreateDistribution(ctx context.Context, in domain.DistributionInput) (*domain.Distribution, error) {
	c.begin()
	defer c.finish()

	dist, err := c.dists.InsertDistribution(ctx, in)
	if err != nil {
		c.fail("create_distribution", err, msgCreateDistribution)
		return nil, err
	}

	c.mu.Lock()
	c.distRecords = append([]domain.Distribution{*dist}, c.distRecords...)
	c.mu.Unlock()
	return dist, nil
}

// Films returns a snapshot copy of the films mirror.
func (c *Catalog) Films() []domain.Film {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Film, len(c.filmRecords))
	copy(out, c.filmRecords)
	return out
}

// Distributions returns a snapshot copy of the distributions mirror.
func (c *Catalog) Distributions() []domain.Distribution {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Distribution, len(c.distRecords))
	copy(out, c.distRecords)
	return out
}

// FilmsByStatus filters the current films snapshot. Evaluated on every
// call, never cached.
func (c *Catalog) FilmsByStatus(status domain.FilmStatus) []domain.Film {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Film, 0)
	for _, f := range c.filmRecords {
		if f.Status == status {
			out = append(out, f)
		}
	}
	return out
}

// DistributionsByFilm filters the current distributions snapshot by film id.
func (c *Catalog) DistributionsByFilm(filmID string) []domain.Distribution {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Distribution, 0)
	for _, d := range c.distRecords {
		if d.FilmID == filmID {
			out = append(out, d)
		}
	}
	return out
}

// Loading reports whether any catalog operation is in flight.
func (c *Catalog) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// Error returns the advisory message from the most recent failed
// operation, or "" after a success cleared it.
func (c *Catalog) Error() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.errMsg
}
