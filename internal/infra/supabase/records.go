package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lvalente/filmtrack-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// FilmStore / DistributionStore / ProfileStore — PostgREST tables
// ============================================================

// ListFilms fetches all films, newest first. Runs behind the breaker since
// a list is safe to retry.
func (c *Client) ListFilms(ctx context.Context) ([]domain.Film, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListFilms")
	defer span.End()

	start := time.Now()
	defer func() { c.metrics.RecordRemoteDuration("list_films", time.Since(start)) }()

	body, err := c.listGuarded(ctx, "films?select=*&order=created_at.desc")
	if err != nil {
		return nil, err
	}
	if body == nil || string(body) == "[]" {
		return []domain.Film{}, nil
	}

	var films []domain.Film
	if err := json.Unmarshal(body, &films); err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/rest", Err: fmt.Errorf("decode films: %w", err)}
	}
	span.SetAttributes(attribute.Int("films.count", len(films)))
	return films, nil
}

// InsertFilm stores one film and returns the server representation with
// id and timestamps assigned.
func (c *Client) InsertFilm(ctx context.Context, in domain.FilmInput) (*domain.Film, error) {
	ctx, span := tracer.Start(ctx, "Supabase.InsertFilm")
	defer span.End()

	start := time.Now()
	defer func() { c.metrics.RecordRemoteDuration("insert_film", time.Since(start)) }()

	body, err := c.doRest(ctx, http.MethodPost, "films", []domain.FilmInput{in})
	if err != nil {
		return nil, err
	}

	var rows []domain.Film
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/rest", Err: fmt.Errorf("decode film: %w", err)}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrExternalService{Service: "supabase/rest", Err: fmt.Errorf("insert returned no representation")}
	}
	span.SetAttributes(attribute.String("film.id", rows[0].ID))
	return &rows[0], nil
}

// UpdateFilm applies a partial field set by id and returns the full updated
// record. An id unknown to the remote store is a not-found error.
func (c *Client) UpdateFilm(ctx context.Context, id string, updates map[string]any) (*domain.Film, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateFilm")
	defer span.End()
	span.SetAttributes(attribute.String("film.id", id))

	start := time.Now()
	defer func() { c.metrics.RecordRemoteDuration("update_film", time.Since(start)) }()

	path := fmt.Sprintf("films?id=eq.%s", id)
	body, err := c.doRest(ctx, http.MethodPatch, path, updates)
	if err != nil {
		return nil, err
	}
	if body == nil || string(body) == "[]" {
		return nil, &domain.ErrNotFound{Resource: "film", ID: id}
	}

	var rows []domain.Film
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/rest", Err: fmt.Errorf("decode film: %w", err)}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "film", ID: id}
	}
	return &rows[0], nil
}

// DeleteFilm removes by id. The remote delete is idempotent: deleting an
// absent id still succeeds.
func (c *Client) DeleteFilm(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteFilm")
	defer span.End()
	span.SetAttributes(attribute.String("film.id", id))

	start := time.Now()
	defer func() { c.metrics.RecordRemoteDuration("delete_film", time.Since(start)) }()

	path := fmt.Sprintf("films?id=eq.%s", id)
	_, err := c.doRest(ctx, http.MethodDelete, path, nil)
	return err
}

// ListDistributions fetches all distribution deals, newest first.
func (c *Client) ListDistributions(ctx context.Context) ([]domain.Distribution, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListDistributions")
	defer span.End()

	start := time.Now()
	defer func() { c.metrics.RecordRemoteDuration("list_distributions", time.Since(start)) }()

	body, err := c.listGuarded(ctx, "distributions?select=*&order=created_at.desc")
	if err != nil {
		return nil, err
	}
	if body == nil || string(body) == "[]" {
		return []domain.Distribution{}, nil
	}

	var dists []domain.Distribution
	if err := json.Unmarshal(body, &dists); err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/rest", Err: fmt.Errorf("decode distributions: %w", err)}
	}
	span.SetAttributes(attribute.Int("distributions.count", len(dists)))
	return dists, nil
}

// InsertDistribution stores one distribution deal.
func (c *Client) InsertDistribution(ctx context.Context, in domain.DistributionInput) (*domain.Distribution, error) {
	ctx, span := tracer.Start(ctx, "Supabase.InsertDistribution")
	defer span.End()

	start := time.Now()
	defer func() { c.metrics.RecordRemoteDuration("insert_distribution", time.Since(start)) }()

	body, err := c.doRest(ctx, http.MethodPost, "distributions", []domain.DistributionInput{in})
	if err != nil {
		return nil, err
	}

	var rows []domain.Distribution
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/rest", Err: fmt.Errorf("decode distribution: %w", err)}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrExternalService{Service: "supabase/rest", Err: fmt.Errorf("insert returned no representation")}
	}
	span.SetAttributes(attribute.String("distribution.id", rows[0].ID))
	return &rows[0], nil
}

// GetProfile fetches the profile row matching a session identity.
// A missing row is (nil, nil): a session can exist before its profile does.
func (c *Client) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetProfile")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	start := time.Now()
	defer func() { c.metrics.RecordRemoteDuration("get_profile", time.Since(start)) }()

	path := fmt.Sprintf("users?select=*&id=eq.%s&limit=1", userID)
	body, err := c.doRest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if body == nil || string(body) == "[]" {
		return nil, nil
	}

	var rows []domain.User
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/rest", Err: fmt.Errorf("decode users: %w", err)}
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
