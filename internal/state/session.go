// Package state holds the client-side state layer: the session manager and
// the record cache manager. Both depend only on the ports, never on the
// concrete remote adapter.
package state

import (
	"context"
	"sync"

	"github.com/lvalente/filmtrack-go/internal/domain"
	"github.com/lvalente/filmtrack-go/internal/infra/observability"
	"github.com/lvalente/filmtrack-go/internal/port"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionManager owns the current authentication identity and reacts to
// session transitions from the remote boundary.
//
// State propagation is one-directional: SignUp/SignIn report whether the
// request succeeded, but user/session are populated only by the standing
// change subscription started in Initialize. A caller that needs the
// post-login identity must watch for the subsequent change, not inspect
// state right after SignIn returns.
type SessionManager struct {
	auth         port.AuthGateway
	profiles     port.ProfileStore
	profileCache port.Cache[*domain.User]
	logger       *zap.Logger
	metrics      *observability.Metrics

	mu      sync.RWMutex
	user    *domain.User
	session *domain.Session
	loading bool

	initOnce    sync.Once
	unsubscribe func()
	watchers    map[uuid.UUID]chan domain.SessionChange
}

// NewSessionManager wires the session manager to the identity gateway and
// the profile store. Call Initialize before use.
func NewSessionManager(auth port.AuthGateway, profiles port.ProfileStore, profileCache port.Cache[*domain.User], logger *zap.Logger, metrics *observability.Metrics) *SessionManager {
	return &SessionManager{
		auth:         auth,
		profiles:     profiles,
		profileCache: profileCache,
		logger:       logger,
		metrics:      metrics,
		watchers:     make(map[uuid.UUID]chan domain.SessionChange),
	}
}

// Initialize fetches the current session snapshot, then starts the standing
// subscription that keeps user/session in step with the remote boundary.
// It is a one-time operation; repeated calls are no-ops.
func (m *SessionManager) Initialize(ctx context.Context) error {
	var initErr error
	m.initOnce.Do(func() {
		snapshot, err := m.auth.CurrentSession(ctx)
		if err != nil {
			initErr = err
			return
		}
		m.apply(ctx, domain.SessionChange{Session: snapshot})

		changes, unsubscribe := m.auth.SessionChanges()
		m.unsubscribe = unsubscribe

		// Changes are consumed one at a time in arrival order, so a
		// sign-out delivered after a sign-in can never resurrect the
		// older identity.
		go func() {
			for change := range changes {
				m.apply(context.Background(), change)
			}
		}()
	})
	return initErr
}

// Close tears down the subscription and every watcher channel.
func (m *SessionManager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ch := range m.watchers {
		close(ch)
		delete(m.watchers, id)
	}
}

// apply stores a delivered session value and resolves its profile.
// A nil session clears the user immediately with no fetch.
func (m *SessionManager) apply(ctx context.Context, change domain.SessionChange) {
	m.mu.Lock()
	m.session = change.Session
	if change.Session == nil {
		m.user = nil
		m.mu.Unlock()
		m.notify(change)
		return
	}
	userID := change.Session.UserID
	m.mu.Unlock()

	if userID != "" {
		m.resolveProfile(ctx, userID)
	}
	m.notify(change)
}

// resolveProfile loads the profile for a session identity, via the TTL
// cache when warm. A missing profile row leaves user unset: the session is
// valid, the application profile just does not exist yet.
func (m *SessionManager) resolveProfile(ctx context.Context, userID string) {
	if cached, ok := m.profileCache.Get(userID); ok {
		m.metrics.IncrCacheHit("profile")
		m.mu.Lock()
		m.user = cached
		m.mu.Unlock()
		return
	}
	m.metrics.IncrCacheMiss("profile")

	profile, err := m.profiles.GetProfile(ctx, userID)
	if err != nil {
		m.logger.Warn("session: profile fetch failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return
	}

	m.mu.Lock()
	m.user = profile
	m.mu.Unlock()
	if profile != nil {
		m.profileCache.Set(userID, profile)
	}
}

// notify forwards a session change to every watcher without blocking.
func (m *SessionManager) notify(change domain.SessionChange) {
	m.mu.RLock()
	channels := make([]chan domain.SessionChange, 0, len(m.watchers))
	for _, ch := range m.watchers {
		channels = append(channels, ch)
	}
	m.mu.RUnlock()

	for _, ch := range channels {
		select {
		case ch <- change:
		default:
			m.logger.Warn("session: dropping change for slow watcher")
		}
	}
}

// Watch registers a downstream consumer of session transitions.
// The returned func unregisters it and closes the channel.
func (m *SessionManager) Watch() (<-chan domain.SessionChange, func()) {
	ch := make(chan domain.SessionChange, 16)
	id := uuid.New()

	m.mu.Lock()
	m.watchers[id] = ch
	m.mu.Unlock()

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if w, ok := m.watchers[id]; ok {
			delete(m.watchers, id)
			close(w)
		}
	}
}

// SignUp requests account creation with profile metadata attached. On
// failure nothing is mutated; on success the session (when the remote
// confirmation policy issues one immediately) arrives via the change feed.
func (m *SessionManager) SignUp(ctx context.Context, email, password, fullName string, role domain.Role) (*domain.Session, error) {
	m.setLoading(true)
	defer m.setLoading(false)

	session, err := m.auth.SignUp(ctx, email, password, domain.SignUpMetadata{
		FullName: fullName,
		Role:     role,
	})
	if err != nil {
		m.logger.Warn("session: sign-up failed", zap.String("email", email), zap.Error(err))
		return nil, err
	}
	return session, nil
}

// SignIn establishes a session with credentials. The returned session is
// the request result only; managed state updates through the change feed.
func (m *SessionManager) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	m.setLoading(true)
	defer m.setLoading(false)

	session, err := m.auth.SignIn(ctx, email, password)
	if err != nil {
		m.logger.Warn("session: sign-in failed", zap.String("email", email), zap.Error(err))
		return nil, err
	}
	return session, nil
}

// SignOut requests session termination and clears user/session on success.
// A failed sign-out is logged and leaves state untouched, so the local
// session may outlive the remote one until the next change delivery.
// Callers cannot observe the failure.
func (m *SessionManager) SignOut(ctx context.Context) {
	m.setLoading(true)
	defer m.setLoading(false)

	if err := m.auth.SignOut(ctx); err != nil {
		m.logger.Error("session: sign-out failed", zap.Error(err))
		return
	}

	m.mu.Lock()
	m.user = nil
	m.session = nil
	m.mu.Unlock()
}

func (m *SessionManager) setLoading(v bool) {
	m.mu.Lock()
	m.loading = v
	m.mu.Unlock()
}

// User returns the resolved profile, or nil when none is loaded.
func (m *SessionManager) User() *domain.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user
}

// Session returns the current session, or nil when signed out.
func (m *SessionManager) Session() *domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// IsAuthenticated reports whether a session is present.
func (m *SessionManager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session != nil
}

// Loading reports whether an auth operation is in flight.
func (m *SessionManager) Loading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading
}
