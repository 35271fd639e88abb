package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lvalente/filmtrack-go/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// refreshMargin is how far ahead of access-token expiry a refresh fires.
const refreshMargin = 30 * time.Second

// ============================================================
// AuthGateway implementation — GoTrue endpoints + session feed
// ============================================================

// gotrueSession is the session body returned by the identity endpoints.
type gotrueSession struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// gotrueError covers the error body shapes the identity service returns.
type gotrueError struct {
	Msg              string `json:"msg"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error"`
}

func (e *gotrueError) message() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.ErrorDescription != "" {
		return e.ErrorDescription
	}
	return e.ErrorCode
}

// doAuth executes a request against /auth/v1/<path>.
func (c *Client) doAuth(ctx context.Context, path string, payload any, bearer string) ([]byte, error) {
	if err := c.gate.Enter(ctx); err != nil {
		return nil, err
	}
	defer c.gate.Leave()

	url := fmt.Sprintf("%s/auth/v1/%s", c.baseURL, path)

	var reader io.Reader
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("apikey", c.anonKey)
	if bearer == "" {
		bearer = c.anonKey
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", bearer))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: auth request failed",
			zap.String("path", path),
			zap.Error(err),
		)
		c.metrics.IncrRemoteError("supabase/auth")
		return nil, &domain.ErrExternalService{Service: "supabase/auth", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/auth", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ge gotrueError
		msg := ""
		if jsonErr := json.Unmarshal(body, &ge); jsonErr == nil {
			msg = ge.message()
		}
		if msg == "" {
			msg = fmt.Sprintf("auth request failed with status %d", resp.StatusCode)
		}
		c.logger.Warn("supabase: auth non-2xx",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		c.metrics.IncrRemoteError("supabase/auth")
		return nil, &domain.ErrRemote{Service: "supabase/auth", Status: resp.StatusCode, Message: msg}
	}

	return body, nil
}

// toSession converts the wire session to a domain session, filling in the
// expiry from the JWT exp claim when the body omits expires_at.
func toSession(gs *gotrueSession) *domain.Session {
	if gs.AccessToken == "" {
		return nil
	}
	s := &domain.Session{
		AccessToken:  gs.AccessToken,
		RefreshToken: gs.RefreshToken,
		TokenType:    gs.TokenType,
		ExpiresIn:    gs.ExpiresIn,
		ExpiresAt:    gs.ExpiresAt,
		UserID:       gs.User.ID,
	}
	if s.ExpiresAt == 0 {
		if exp, ok := tokenExpiry(gs.AccessToken); ok {
			s.ExpiresAt = exp.Unix()
		} else {
			s.ExpiresAt = time.Now().Add(time.Duration(gs.ExpiresIn) * time.Second).Unix()
		}
	}
	return s
}

// tokenExpiry reads the exp claim of an access token without verifying the
// signature. Verification is the identity service's job, not ours.
func tokenExpiry(raw string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// SignUp requests account creation with profile metadata attached.
// Depending on remote confirmation settings the response may or may not
// carry a session; when it does, the session feed fires.
func (c *Client) SignUp(ctx context.Context, email, password string, meta domain.SignUpMetadata) (*domain.Session, error) {
	ctx, span := tracer.Start(ctx, "Supabase.SignUp")
	defer span.End()

	body, err := c.doAuth(ctx, "signup", map[string]any{
		"email":    email,
		"password": password,
		"data":     meta,
	}, "")
	if err != nil {
		return nil, err
	}

	var gs gotrueSession
	if err := json.Unmarshal(body, &gs); err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/auth", Err: err}
	}

	session := toSession(&gs)
	if session != nil {
		c.setSession(session, "signed_in")
	}
	return session, nil
}

// SignIn establishes a session with credentials. The new session is stored
// and announced on the feed; callers must not assume dependents have seen
// it by the time SignIn returns.
func (c *Client) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	ctx, span := tracer.Start(ctx, "Supabase.SignIn")
	defer span.End()

	body, err := c.doAuth(ctx, "token?grant_type=password", map[string]any{
		"email":    email,
		"password": password,
	}, "")
	if err != nil {
		return nil, err
	}

	var gs gotrueSession
	if err := json.Unmarshal(body, &gs); err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/auth", Err: err}
	}

	session := toSession(&gs)
	if session == nil {
		return nil, &domain.ErrExternalService{Service: "supabase/auth", Err: fmt.Errorf("sign-in response carried no session")}
	}

	c.setSession(session, "signed_in")
	return session, nil
}

// SignOut terminates the session remotely, then clears it locally and
// announces the sign-out. On failure the stored session is left untouched.
func (c *Client) SignOut(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Supabase.SignOut")
	defer span.End()

	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()
	if session == nil {
		return nil
	}

	if _, err := c.doAuth(ctx, "logout", nil, session.AccessToken); err != nil {
		return err
	}

	c.clearSession("signed_out")
	return nil
}

// CurrentSession returns the stored session snapshot, or nil when signed out.
func (c *Client) CurrentSession(_ context.Context) (*domain.Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.session, nil
}

// SessionChanges registers a subscriber on the session feed.
// The returned func unsubscribes and closes the channel.
func (c *Client) SessionChanges() (<-chan domain.SessionChange, func()) {
	ch := make(chan domain.SessionChange, 16)
	id := uuid.New()

	c.mu.Lock()
	c.subs[id] = ch
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

// refreshSession rotates the session with the stored refresh token.
// A failed refresh terminates the session: the tokens are gone either way.
func (c *Client) refreshSession() {
	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()
	if session == nil {
		return
	}

	timeout := c.httpClient.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	body, err := c.doAuth(ctx, "token?grant_type=refresh_token", map[string]any{
		"refresh_token": session.RefreshToken,
	}, "")
	if err != nil {
		c.logger.Warn("supabase: session refresh failed", zap.Error(err))
		c.clearSession("signed_out")
		return
	}

	var gs gotrueSession
	if err := json.Unmarshal(body, &gs); err != nil {
		c.logger.Warn("supabase: session refresh decode failed", zap.Error(err))
		c.clearSession("signed_out")
		return
	}

	refreshed := toSession(&gs)
	if refreshed == nil {
		c.clearSession("signed_out")
		return
	}
	c.setSession(refreshed, "token_refreshed")
}

// setSession stores a session, schedules the next refresh and announces the
// change on the feed.
func (c *Client) setSession(session *domain.Session, event string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.session = session

	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
	}
	wait := time.Until(time.Unix(session.ExpiresAt, 0)) - refreshMargin
	if wait < 5*time.Second {
		wait = 5 * time.Second
	}
	c.refreshTimer = time.AfterFunc(wait, c.refreshSession)
	c.mu.Unlock()

	c.metrics.IncrSessionEvent(event)
	c.emit(domain.SessionChange{Session: session})
}

// clearSession drops the stored session and announces the sign-out.
func (c *Client) clearSession(event string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.session = nil
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
	c.mu.Unlock()

	c.metrics.IncrSessionEvent(event)
	c.emit(domain.SessionChange{Session: nil})
}

// emit delivers a change to every subscriber. A subscriber that has fallen
// 16 deliveries behind loses this one; losing an intermediate session value
// is safe because each delivery carries the full current state.
func (c *Client) emit(change domain.SessionChange) {
	c.mu.RLock()
	channels := make([]chan domain.SessionChange, 0, len(c.subs))
	for _, ch := range c.subs {
		channels = append(channels, ch)
	}
	c.mu.RUnlock()

	for _, ch := range channels {
		select {
		case ch <- change:
		default:
			c.logger.Warn("supabase: dropping session change for slow subscriber")
		}
	}
}
