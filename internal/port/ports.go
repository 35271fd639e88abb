// Package port defines the interfaces (ports) for the remote access boundary.
// They decouple the state managers from the concrete Supabase adapter.
package port

import (
	"context"

	"github.com/lvalente/filmtrack-go/internal/domain"
)

// AuthGateway is the identity side of the remote boundary.
//
// SignUp and SignIn return the established session (or an error) but state
// propagation happens exclusively through the change feed: callers observing
// the SessionManager must wait for the subsequent change, not the return.
type AuthGateway interface {
	SignUp(ctx context.Context, email, password string, meta domain.SignUpMetadata) (*domain.Session, error)
	SignIn(ctx context.Context, email, password string) (*domain.Session, error)
	SignOut(ctx context.Context) error
	CurrentSession(ctx context.Context) (*domain.Session, error)

	// SessionChanges returns a feed of session transitions and an
	// unsubscribe func. Changes are delivered in arrival order.
	SessionChanges() (<-chan domain.SessionChange, func())
}

// ProfileStore reads application profiles keyed by session identity.
// A missing profile is (nil, nil), not an error.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*domain.User, error)
}

// FilmStore is the films collection on the remote store.
type FilmStore interface {
	// ListFilms returns all films ordered by creation time, descending.
	ListFilms(ctx context.Context) ([]domain.Film, error)
	// InsertFilm stores one film; the server assigns id and timestamps.
	InsertFilm(ctx context.Context, in domain.FilmInput) (*domain.Film, error)
	// UpdateFilm applies a partial field set by id and returns the full
	// updated record.
	UpdateFilm(ctx context.Context, id string, updates map[string]any) (*domain.Film, error)
	// DeleteFilm removes by id. Deleting an absent id is not an error.
	DeleteFilm(ctx context.Context, id string) error
}

// DistributionStore is the distributions collection on the remote store.
type DistributionStore interface {
	ListDistributions(ctx context.Context) ([]domain.Distribution, error)
	InsertDistribution(ctx context.Context, in domain.DistributionInput) (*domain.Distribution, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
