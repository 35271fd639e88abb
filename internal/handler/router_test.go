package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lvalente/filmtrack-go/internal/domain"
	"github.com/lvalente/filmtrack-go/internal/handler"
	"github.com/lvalente/filmtrack-go/internal/infra/cache"
	"github.com/lvalente/filmtrack-go/internal/infra/observability"
	"github.com/lvalente/filmtrack-go/internal/state"

	"go.uber.org/zap"
)

// --- Mocks ---

type gatewayMock struct {
	current    *domain.Session
	signInResp *domain.Session
	signInErr  error
}

func (g *gatewayMock) SignUp(context.Context, string, string, domain.SignUpMetadata) (*domain.Session, error) {
	return nil, nil
}

func (g *gatewayMock) SignIn(context.Context, string, string) (*domain.Session, error) {
	return g.signInResp, g.signInErr
}

func (g *gatewayMock) SignOut(context.Context) error { return nil }

func (g *gatewayMock) CurrentSession(context.Context) (*domain.Session, error) {
	return g.current, nil
}

func (g *gatewayMock) SessionChanges() (<-chan domain.SessionChange, func()) {
	ch := make(chan domain.SessionChange)
	return ch, func() {}
}

type profileStoreMock struct{ profile *domain.User }

func (p *profileStoreMock) GetProfile(context.Context, string) (*domain.User, error) {
	return p.profile, nil
}

type filmStoreMock struct {
	films     []domain.Film
	insertErr error
}

func (m *filmStoreMock) ListFilms(context.Context) ([]domain.Film, error) {
	return m.films, nil
}

func (m *filmStoreMock) InsertFilm(_ context.Context, in domain.FilmInput) (*domain.Film, error) {
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	return &domain.Film{ID: "f-new", Title: in.Title, Status: in.Status}, nil
}

func (m *filmStoreMock) UpdateFilm(_ context.Context, id string, _ map[string]any) (*domain.Film, error) {
	return &domain.Film{ID: id, Title: "Updated"}, nil
}

func (m *filmStoreMock) DeleteFilm(context.Context, string) error { return nil }

type distStoreMock struct{ dists []domain.Distribution }

func (m *distStoreMock) ListDistributions(context.Context) ([]domain.Distribution, error) {
	return m.dists, nil
}

func (m *distStoreMock) InsertDistribution(_ context.Context, in domain.DistributionInput) (*domain.Distribution, error) {
	return &domain.Distribution{ID: "d-new", FilmID: in.FilmID, DistributorName: in.DistributorName}, nil
}

func newTestRouter(t *testing.T, gw *gatewayMock, films *filmStoreMock, dists *distStoreMock) http.Handler {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()

	sessions := state.NewSessionManager(gw, &profileStoreMock{}, cache.New[*domain.User](time.Minute), logger, metrics)
	if err := sessions.Initialize(context.Background()); err != nil {
		t.Fatalf("session init failed: %v", err)
	}
	t.Cleanup(sessions.Close)

	catalog := state.NewCatalog(films, dists, logger, metrics)
	return handler.NewRouter(sessions, catalog, metrics, []string{"*"}, logger)
}

// --- Tests ---

func TestHealthz(t *testing.T) {
	router := newTestRouter(t, &gatewayMock{}, &filmStoreMock{}, &distStoreMock{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestListFilms(t *testing.T) {
	films := &filmStoreMock{films: []domain.Film{
		{ID: "f2", Title: "Second", Status: domain.FilmDraft},
		{ID: "f1", Title: "First", Status: domain.FilmInDistribution},
	}}
	router := newTestRouter(t, &gatewayMock{}, films, &distStoreMock{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/films", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Films []domain.Film `json:"films"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Films) != 2 || resp.Films[0].ID != "f2" {
		t.Fatalf("unexpected films %v", resp.Films)
	}
}

func TestListFilms_StatusFilter(t *testing.T) {
	films := &filmStoreMock{films: []domain.Film{
		{ID: "f2", Status: domain.FilmDraft},
		{ID: "f1", Status: domain.FilmInDistribution},
	}}
	router := newTestRouter(t, &gatewayMock{}, films, &distStoreMock{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/films?status=draft", nil))

	var resp struct {
		Films []domain.Film `json:"films"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Films) != 1 || resp.Films[0].ID != "f2" {
		t.Fatalf("expected only draft films, got %v", resp.Films)
	}
}

func TestCreateFilm_RequiresSession(t *testing.T) {
	router := newTestRouter(t, &gatewayMock{}, &filmStoreMock{}, &distStoreMock{})

	body, _ := json.Marshal(domain.FilmInput{Title: "The Long Take"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/films", bytes.NewReader(body)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", rec.Code)
	}
}

func TestCreateFilm_SignedIn(t *testing.T) {
	gw := &gatewayMock{current: &domain.Session{AccessToken: "tok", UserID: "u1"}}
	router := newTestRouter(t, gw, &filmStoreMock{}, &distStoreMock{})

	body, _ := json.Marshal(domain.FilmInput{Title: "The Long Take", Status: domain.FilmDraft})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/films", bytes.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var film domain.Film
	if err := json.NewDecoder(rec.Body).Decode(&film); err != nil {
		t.Fatal(err)
	}
	if film.ID != "f-new" {
		t.Errorf("expected server-assigned id, got %q", film.ID)
	}
}

func TestCreateFilm_MissingTitle(t *testing.T) {
	gw := &gatewayMock{current: &domain.Session{AccessToken: "tok", UserID: "u1"}}
	router := newTestRouter(t, gw, &filmStoreMock{}, &distStoreMock{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/films", bytes.NewReader([]byte(`{}`))))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateFilm_RemoteErrorPassesClientStatus(t *testing.T) {
	gw := &gatewayMock{current: &domain.Session{AccessToken: "tok", UserID: "u1"}}
	films := &filmStoreMock{insertErr: &domain.ErrRemote{Service: "supabase/rest", Status: 422, Message: "status out of range"}}
	router := newTestRouter(t, gw, films, &distStoreMock{})

	body, _ := json.Marshal(domain.FilmInput{Title: "X"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/films", bytes.NewReader(body)))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 passed through, got %d", rec.Code)
	}
}

func TestDeleteFilm(t *testing.T) {
	gw := &gatewayMock{current: &domain.Session{AccessToken: "tok", UserID: "u1"}}
	router := newTestRouter(t, gw, &filmStoreMock{}, &distStoreMock{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/films/f1", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestListDistributions_FilmFilter(t *testing.T) {
	dists := &distStoreMock{dists: []domain.Distribution{
		{ID: "d1", FilmID: "f1"},
		{ID: "d2", FilmID: "f2"},
	}}
	router := newTestRouter(t, &gatewayMock{}, &filmStoreMock{}, dists)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/distributions?film_id=f2", nil))

	var resp struct {
		Distributions []domain.Distribution `json:"distributions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Distributions) != 1 || resp.Distributions[0].ID != "d2" {
		t.Fatalf("expected [d2], got %v", resp.Distributions)
	}
}

func TestSessionEndpoint(t *testing.T) {
	gw := &gatewayMock{current: &domain.Session{AccessToken: "tok", UserID: "u1"}}
	router := newTestRouter(t, gw, &filmStoreMock{}, &distStoreMock{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/session", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Authenticated bool `json:"authenticated"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Authenticated {
		t.Error("expected authenticated true with a session snapshot")
	}
}

func TestStateMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, &gatewayMock{}, &filmStoreMock{}, &distStoreMock{})

	// trigger one refresh so the counter moves
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/films", nil))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/metrics/state", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var snapshot observability.StateMetrics
	if err := json.NewDecoder(rec.Body).Decode(&snapshot); err != nil {
		t.Fatal(err)
	}
	if snapshot.FilmRefreshes != 1 {
		t.Errorf("expected 1 film refresh, got %v", snapshot.FilmRefreshes)
	}
}
