package supabase_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lvalente/filmtrack-go/internal/domain"
	"github.com/lvalente/filmtrack-go/internal/infra/observability"
	"github.com/lvalente/filmtrack-go/internal/infra/resilience"
	"github.com/lvalente/filmtrack-go/internal/infra/supabase"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, baseURL string) *supabase.Client {
	t.Helper()
	client := supabase.NewClient(
		&http.Client{Timeout: 2 * time.Second},
		baseURL,
		"anon-key",
		resilience.NewCircuitBreaker("test"),
		resilience.Config{Retries: 0, BaseDelay: time.Millisecond, MaxInFlight: 4},
		zap.NewNop(),
		observability.NewMetrics(),
	)
	t.Cleanup(client.Close)
	return client
}

func TestListFilms_RequestShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if r.URL.Path != "/rest/v1/films" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("order"); got != "created_at.desc" {
			t.Errorf("expected order=created_at.desc, got %q", got)
		}
		if got := r.Header.Get("apikey"); got != "anon-key" {
			t.Errorf("expected apikey header, got %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer anon-key" {
			t.Errorf("expected anon bearer while signed out, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]domain.Film{{ID: "f2"}, {ID: "f1"}})
	}))
	defer server.Close()

	films, err := newTestClient(t, server.URL).ListFilms(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(films) != 2 || films[0].ID != "f2" {
		t.Fatalf("expected [f2 f1], got %v", films)
	}
}

func TestInsertFilm_ArrayBodyAndRepresentation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("Prefer"); got != "return=representation" {
			t.Errorf("expected representation prefer header, got %q", got)
		}

		body, _ := io.ReadAll(r.Body)
		var payload []domain.FilmInput
		if err := json.Unmarshal(body, &payload); err != nil || len(payload) != 1 {
			t.Fatalf("expected one-element array payload, got %s", body)
		}
		if payload[0].Title != "The Long Take" {
			t.Errorf("unexpected payload %v", payload[0])
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]domain.Film{{
			ID:        "f1",
			Title:     payload[0].Title,
			CreatedAt: "2026-08-30T10:00:00Z",
			UpdatedAt: "2026-08-30T10:00:00Z",
		}})
	}))
	defer server.Close()

	film, err := newTestClient(t, server.URL).InsertFilm(context.Background(), domain.FilmInput{Title: "The Long Take"})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if film.ID != "f1" || film.CreatedAt == "" {
		t.Errorf("expected server-assigned id/timestamps, got %v", film)
	}
}

func TestUpdateFilm_EmptyRepresentationIsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("expected PATCH, got %s", r.Method)
		}
		if got := r.URL.Query().Get("id"); got != "eq.f9" {
			t.Errorf("expected id=eq.f9, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("[]"))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).UpdateFilm(context.Background(), "f9", map[string]any{"title": "X"})
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRestError_MessageParsed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"invalid input syntax","code":"22P02"}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).InsertFilm(context.Background(), domain.FilmInput{Title: "X"})
	var remote *domain.ErrRemote
	if !errors.As(err, &remote) {
		t.Fatalf("expected ErrRemote, got %v", err)
	}
	if remote.Status != http.StatusBadRequest || remote.Message != "invalid input syntax" {
		t.Errorf("unexpected error %+v", remote)
	}
}

func TestDeleteFilm_NoContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("expected DELETE, got %s", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	if err := newTestClient(t, server.URL).DeleteFilm(context.Background(), "f1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestGetProfile_MissingRow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("[]"))
	}))
	defer server.Close()

	user, err := newTestClient(t, server.URL).GetProfile(context.Background(), "u1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user != nil {
		t.Errorf("expected nil user for missing profile, got %v", user)
	}
}

func TestSignIn_StoresSessionAndEmits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/token":
			if got := r.URL.Query().Get("grant_type"); got != "password" {
				t.Errorf("expected grant_type=password, got %q", got)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"access_token": "access-1",
				"refresh_token": "refresh-1",
				"token_type": "bearer",
				"expires_in": 3600,
				"user": {"id": "u1", "email": "ana@studio.example"}
			}`))
		case "/rest/v1/films":
			if got := r.Header.Get("Authorization"); got != "Bearer access-1" {
				t.Errorf("expected signed-in bearer, got %q", got)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte("[]"))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	changes, unsubscribe := client.SessionChanges()
	defer unsubscribe()

	session, err := client.SignIn(context.Background(), "ana@studio.example", "secret")
	if err != nil {
		t.Fatalf("sign-in failed: %v", err)
	}
	if session.AccessToken != "access-1" || session.UserID != "u1" {
		t.Fatalf("unexpected session %+v", session)
	}
	if session.ExpiresAt == 0 {
		t.Error("expected expiry filled from expires_in")
	}

	select {
	case change := <-changes:
		if change.Session == nil || change.Session.AccessToken != "access-1" {
			t.Errorf("unexpected change %v", change)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session change")
	}

	// record requests now carry the access token
	if _, err := client.ListFilms(context.Background()); err != nil {
		t.Fatalf("list after sign-in failed: %v", err)
	}
}

func TestSignIn_ErrorDescriptionSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error_description":"Invalid login credentials"}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).SignIn(context.Background(), "ana@studio.example", "wrong")
	var remote *domain.ErrRemote
	if !errors.As(err, &remote) {
		t.Fatalf("expected ErrRemote, got %v", err)
	}
	if remote.Message != "Invalid login credentials" {
		t.Errorf("expected parsed auth message, got %q", remote.Message)
	}
}

func TestSignOut_ClearsSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/token":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"access-1","refresh_token":"r","token_type":"bearer","expires_in":3600,"user":{"id":"u1"}}`))
		case "/auth/v1/logout":
			if got := r.Header.Get("Authorization"); got != "Bearer access-1" {
				t.Errorf("expected session bearer on logout, got %q", got)
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	if _, err := client.SignIn(context.Background(), "ana@studio.example", "secret"); err != nil {
		t.Fatal(err)
	}

	if err := client.SignOut(context.Background()); err != nil {
		t.Fatalf("sign-out failed: %v", err)
	}
	session, err := client.CurrentSession(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if session != nil {
		t.Errorf("expected session cleared, got %+v", session)
	}
}

func TestSignOut_WithoutSessionIsNoOp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	}))
	defer server.Close()

	if err := newTestClient(t, server.URL).SignOut(context.Background()); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}

func TestListGuarded_CircuitOpens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message":"down"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	var sawCircuitOpen bool
	for i := 0; i < 10; i++ {
		_, err := client.ListFilms(context.Background())
		if err == nil {
			t.Fatal("expected failures")
		}
		var open *domain.ErrCircuitOpen
		if errors.As(err, &open) {
			sawCircuitOpen = true
			break
		}
	}
	if !sawCircuitOpen {
		t.Error("expected the breaker to open after repeated failures")
	}
}
