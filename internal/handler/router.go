package handler

import (
	"encoding/json"
	"net/http"

	"github.com/lvalente/filmtrack-go/internal/domain"
	"github.com/lvalente/filmtrack-go/internal/infra/observability"
	"github.com/lvalente/filmtrack-go/internal/state"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
// The surface is a thin JSON projection of the two state managers for the
// film-distribution frontend.
func NewRouter(sessions *state.SessionManager, catalog *state.Catalog, metrics *observability.Metrics, allowedOrigins []string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler())
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// Authentication & session
		// =============================================
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", signUpHandler(sessions, logger))
			r.Post("/signin", signInHandler(sessions, logger))
			r.Post("/signout", signOutHandler(sessions))
		})
		r.Get("/session", sessionHandler(sessions))

		// =============================================
		// Films
		// =============================================
		r.Get("/films", listFilmsHandler(catalog, logger))
		r.Group(func(r chi.Router) {
			r.Use(RequireSession(sessions, logger))
			r.Post("/films", createFilmHandler(catalog, logger))
			r.Patch("/films/{filmId}", updateFilmHandler(catalog, logger))
			r.Delete("/films/{filmId}", deleteFilmHandler(catalog, logger))
		})

		// =============================================
		// Distributions
		// =============================================
		r.Get("/distributions", listDistributionsHandler(catalog, logger))
		r.Group(func(r chi.Router) {
			r.Use(RequireSession(sessions, logger))
			r.Post("/distributions", createDistributionHandler(catalog, logger))
		})

		// =============================================
		// State-layer metrics snapshot
		// =============================================
		r.Get("/metrics/state", stateMetricsHandler(metrics))
	})

	return r
}

// ============================================================
// Operational
// ============================================================

func healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func stateMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetStateSnapshot())
	}
}

// ============================================================
// Authentication — POST /v1/auth/*
// ============================================================

type credentialsRequest struct {
	Email    string      `json:"email"`
	Password string      `json:"password"`
	FullName string      `json:"full_name,omitempty"`
	Role     domain.Role `json:"role,omitempty"`
}

func signUpHandler(sessions *state.SessionManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/signup")
		defer span.End()

		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "email and password are required")
			return
		}
		span.SetAttributes(attribute.String("user.email", req.Email))

		session, err := sessions.SignUp(ctx, req.Email, req.Password, req.FullName, req.Role)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		// session is nil when the remote confirmation policy defers the
		// first sign-in to an email link.
		writeJSON(w, http.StatusCreated, map[string]any{"session": session})
	}
}

func signInHandler(sessions *state.SessionManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/signin")
		defer span.End()

		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "email and password are required")
			return
		}
		span.SetAttributes(attribute.String("user.email", req.Email))

		session, err := sessions.SignIn(ctx, req.Email, req.Password)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": session})
	}
}

// signOutHandler always answers 204: a failed remote sign-out is logged by
// the session manager and is not observable here.
func signOutHandler(sessions *state.SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/signout")
		defer span.End()

		sessions.SignOut(ctx)
		w.WriteHeader(http.StatusNoContent)
	}
}

func sessionHandler(sessions *state.SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": sessions.IsAuthenticated(),
			"user":          sessions.User(),
			"session":       sessions.Session(),
			"loading":       sessions.Loading(),
		})
	}
}

// ============================================================
// Films — /v1/films
// ============================================================

func listFilmsHandler(catalog *state.Catalog, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/films")
		defer span.End()

		if err := catalog.FetchFilms(ctx); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		var films []domain.Film
		if status := r.URL.Query().Get("status"); status != "" {
			films = catalog.FilmsByStatus(domain.FilmStatus(status))
		} else {
			films = catalog.Films()
		}
		span.SetAttributes(attribute.Int("films.count", len(films)))

		writeJSON(w, http.StatusOK, map[string]any{"films": films})
	}
}

func createFilmHandler(catalog *state.Catalog, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/films")
		defer span.End()

		var in domain.FilmInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if in.Title == "" {
			writeError(w, http.StatusBadRequest, "title is required")
			return
		}

		film, err := catalog.CreateFilm(ctx, in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("film.id", film.ID))

		writeJSON(w, http.StatusCreated, film)
	}
}

func updateFilmHandler(catalog *state.Catalog, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/films/{filmId}")
		defer span.End()

		filmID := chi.URLParam(r, "filmId")
		if filmID == "" {
			writeError(w, http.StatusBadRequest, "filmId is required")
			return
		}
		span.SetAttributes(attribute.String("film.id", filmID))

		var updates map[string]any
		if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(updates) == 0 {
			writeError(w, http.StatusBadRequest, "no fields to update")
			return
		}

		film, err := catalog.UpdateFilm(ctx, filmID, updates)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, film)
	}
}

func deleteFilmHandler(catalog *state.Catalog, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/films/{filmId}")
		defer span.End()

		filmID := chi.URLParam(r, "filmId")
		if filmID == "" {
			writeError(w, http.StatusBadRequest, "filmId is required")
			return
		}
		span.SetAttributes(attribute.String("film.id", filmID))

		if err := catalog.DeleteFilm(ctx, filmID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ============================================================
// Distributions — /v1/distributions
// ============================================================

func listDistributionsHandler(catalog *state.Catalog, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/distributions")
		defer span.End()

		if err := catalog.FetchDistributions(ctx); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		var dists []domain.Distribution
		if filmID := r.URL.Query().Get("film_id"); filmID != "" {
			dists = catalog.DistributionsByFilm(filmID)
		} else {
			dists = catalog.Distributions()
		}
		span.SetAttributes(attribute.Int("distributions.count", len(dists)))

		writeJSON(w, http.StatusOK, map[string]any{"distributions": dists})
	}
}

func createDistributionHandler(catalog *state.Catalog, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/distributions")
		defer span.End()

		var in domain.DistributionInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if in.FilmID == "" {
			writeError(w, http.StatusBadRequest, "film_id is required")
			return
		}
		if in.DistributorName == "" {
			writeError(w, http.StatusBadRequest, "distributor_name is required")
			return
		}

		dist, err := catalog.CreateDistribution(ctx, in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("distribution.id", dist.ID))

		writeJSON(w, http.StatusCreated, dist)
	}
}
