// Package supabase adapts the remote boundary (PostgREST record store +
// GoTrue-style identity service) to the ports the state layer depends on.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/lvalente/filmtrack-go/internal/domain"
	"github.com/lvalente/filmtrack-go/internal/infra/observability"
	"github.com/lvalente/filmtrack-go/internal/infra/resilience"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("supabase")

// Client wraps HTTP calls to the Supabase REST and auth endpoints and owns
// the current session plus the session-change feed.
type Client struct {
	httpClient *http.Client
	baseURL    string
	anonKey    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	gate       *resilience.Gate
	logger     *zap.Logger
	metrics    *observability.Metrics

	mu           sync.RWMutex
	session      *domain.Session
	subs         map[uuid.UUID]chan domain.SessionChange
	refreshTimer *time.Timer
	closed       bool
}

// NewClient creates a Supabase client authenticated with the anon key.
// Record requests carry the signed-in user's access token when one exists.
func NewClient(httpClient *http.Client, baseURL, anonKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		anonKey:    anonKey,
		cb:         cb,
		cfg:        cfg,
		gate:       resilience.NewGate(cfg.MaxInFlight),
		logger:     logger,
		metrics:    metrics,
		subs:       make(map[uuid.UUID]chan domain.SessionChange),
	}
}

// Close stops the refresh timer and closes all subscriber channels.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
}

// bearerToken returns the access token of the current session, or the anon
// key when signed out.
func (c *Client) bearerToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.session != nil {
		return c.session.AccessToken
	}
	return c.anonKey
}

// postgrestError is the error body shape returned by PostgREST.
type postgrestError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// restError maps a non-2xx PostgREST response to a structured error.
func (c *Client) restError(status int, body []byte) *domain.ErrRemote {
	var pe postgrestError
	msg := ""
	if err := json.Unmarshal(body, &pe); err == nil {
		msg = pe.Message
	}
	if msg == "" {
		msg = fmt.Sprintf("request failed with status %d", status)
	}
	c.metrics.IncrRemoteError("supabase/rest")
	return &domain.ErrRemote{Service: "supabase/rest", Status: status, Message: msg}
}

// doRest executes an authenticated request against /rest/v1/<path>.
// payload may be nil; writes ask for the stored representation back.
func (c *Client) doRest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if err := c.gate.Enter(ctx); err != nil {
		return nil, err
	}
	defer c.gate.Leave()

	url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path)

	var reader io.Reader
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		c.logger.Error("supabase: failed to create request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}

	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.bearerToken()))
	req.Header.Set("Content-Type", "application/json")
	if method != http.MethodGet {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		c.metrics.IncrRemoteError("supabase/rest")
		return nil, &domain.ErrExternalService{Service: "supabase/rest", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("supabase: failed to read response body",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, &domain.ErrExternalService{Service: "supabase/rest", Err: err}
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("supabase: non-2xx response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return nil, c.restError(resp.StatusCode, body)
	}

	c.logger.Debug("supabase: request OK",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)

	return body, nil
}

// listGuarded runs an idempotent list request inside the circuit breaker and
// retry wrapper. Writes never go through this path.
func (c *Client) listGuarded(ctx context.Context, path string) ([]byte, error) {
	var body []byte
	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.Retry(ctx, c.cfg, func() error {
			var reqErr error
			body, reqErr = c.doRest(ctx, http.MethodGet, path, nil)
			return reqErr
		})
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, &domain.ErrCircuitOpen{Service: "supabase/rest"}
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}
