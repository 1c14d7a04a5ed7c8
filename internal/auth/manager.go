/**
 * @description
 * This file contains the session and lockout manager. It authenticates one
 * identity per session value, maintains the failed-attempt counter and lockout
 * window on the identity record, and keeps a registry of live sessions so the
 * transport layer can resolve a bearer token back to a session.
 *
 * Key features:
 * - Sessions are explicit values handed to every operation; there is no
 *   process-global "current user". Concurrent callers each hold their own.
 * - Counter and lockout mutations run inside a store unit-of-work under an
 *   exclusive row lock, and a striped per-login-id mutex serializes racing
 *   attempts for the same identity on top of that.
 * - Lockout expiry is evaluated lazily by wall-clock comparison at the next
 *   attempt; no background timer resets state.
 *
 * @dependencies
 * - internal/domain, internal/store: Domain models and the store collaborator.
 * - pkg/hasher: The secret-hashing collaborator.
 */

package auth

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/frappster/ledger-service/internal/domain"
	"github.com/frappster/ledger-service/internal/store"
	"github.com/frappster/ledger-service/pkg/hasher"
)

// Session is the authenticated context for one caller. The identity snapshot
// it carries is only a hint for logging; authorization always re-reads the
// identity from the store.
type Session struct {
	ID         uuid.UUID
	IdentityID uuid.UUID
	LoginID    string
	CreatedAt  time.Time
}

// LoginLimiter throttles login attempts before credentials are examined.
// Implementations must be safe for concurrent use.
type LoginLimiter interface {
	Allow(ctx context.Context, loginID string) (retryAfterSeconds int, allowed bool, err error)
}

// Config carries the lockout thresholds; they are configuration, not
// constants.
type Config struct {
	MaxLoginAttempts int
	LockoutWindow    time.Duration
}

// Manager implements the session/lockout state machine and the permission
// evaluator.
type Manager struct {
	store  store.Store
	hasher hasher.Hasher
	cfg    Config
	now    func() time.Time

	limiter LoginLimiter

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session

	loginMu sync.Mutex
	perID   map[string]*sync.Mutex
}

// NewManager creates a session manager. The now function defaults to UTC wall
// clock and is injectable for tests.
func NewManager(st store.Store, h hasher.Hasher, cfg Config) *Manager {
	if cfg.MaxLoginAttempts <= 0 {
		cfg.MaxLoginAttempts = 3
	}
	if cfg.LockoutWindow <= 0 {
		cfg.LockoutWindow = 30 * time.Second
	}
	return &Manager{
		store:    st,
		hasher:   h,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		sessions: make(map[uuid.UUID]*Session),
		perID:    make(map[string]*sync.Mutex),
	}
}

// SetClock overrides the manager's clock. Test hook.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// SetLoginLimiter installs an optional distributed login throttle.
func (m *Manager) SetLoginLimiter(l LoginLimiter) { m.limiter = l }

// identityLock returns the mutex serializing attempt-counter mutations for
// one login id.
func (m *Manager) identityLock(loginID string) *sync.Mutex {
	m.loginMu.Lock()
	defer m.loginMu.Unlock()
	mu, ok := m.perID[loginID]
	if !ok {
		mu = &sync.Mutex{}
		m.perID[loginID] = mu
	}
	return mu
}

// Login authenticates a caller. current must be nil: a context that already
// holds a logged-in identity cannot log in again.
func (m *Manager) Login(ctx context.Context, current *Session, loginID, secret string) (*Session, error) {
	if current != nil {
		return nil, ErrAlreadyAuthenticated
	}

	if m.limiter != nil {
		retryAfter, allowed, err := m.limiter.Allow(ctx, loginID)
		if err != nil {
			// Throttling is best-effort; the lockout state machine below is
			// the authoritative guard.
			log.Printf("level=warn component=auth msg=\"login throttle unavailable\" err=%v", err)
		} else if !allowed {
			return nil, &ThrottledError{RetryAfterSeconds: retryAfter}
		}
	}

	mu := m.identityLock(loginID)
	mu.Lock()
	defer mu.Unlock()

	var session *Session
	err := m.store.WithinTx(ctx, func(tx store.Tx) error {
		identity, err := tx.IdentityForUpdate(ctx, loginID)
		if err != nil {
			if errors.Is(err, store.ErrIdentityNotFound) {
				// Indistinguishable from a wrong secret.
				return ErrInvalidCredentials
			}
			return err
		}

		now := m.now()
		if identity.LockedAt(now) {
			// No attempt is consumed while the window is active.
			return &AccountLockedError{Until: *identity.LockoutUntil}
		}
		if identity.LockoutUntil != nil {
			// Window elapsed; the counter restarts from zero.
			identity.LockoutUntil = nil
			identity.FailedAttempts = 0
		}

		if !m.hasher.Verify(secret, identity.SecretHash) {
			identity.FailedAttempts++
			if identity.FailedAttempts >= m.cfg.MaxLoginAttempts {
				until := now.Add(m.cfg.LockoutWindow)
				identity.LockoutUntil = &until
			}
			if err := tx.PersistIdentity(ctx, identity); err != nil {
				return err
			}
			return ErrInvalidCredentials
		}

		identity.FailedAttempts = 0
		identity.LockoutUntil = nil
		identity.LastLogin = &now
		if err := tx.PersistIdentity(ctx, identity); err != nil {
			return err
		}

		session = &Session{
			ID:         uuid.New(),
			IdentityID: identity.ID,
			LoginID:    identity.LoginID,
			CreatedAt:  now,
		}
		return nil
	})
	if err != nil {
		if isAuthError(err) {
			return nil, err
		}
		log.Printf("level=error component=auth msg=\"login unit-of-work failed\" login_id=%s err=%v", loginID, err)
		return nil, store.ErrStoreUnavailable
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	log.Printf("level=info component=auth msg=\"login succeeded\" login_id=%s session_id=%s", loginID, session.ID)
	return session, nil
}

// Logout ends a session. With an empty target it ends the caller's own
// session; with a target login id it ends every session of that identity and
// requires the identity-management permission or the Administrator role.
func (m *Manager) Logout(ctx context.Context, current *Session, targetLoginID string) error {
	if targetLoginID == "" {
		if current == nil {
			return ErrNotAuthenticated
		}
		m.mu.Lock()
		_, ok := m.sessions[current.ID]
		delete(m.sessions, current.ID)
		m.mu.Unlock()
		if !ok {
			return ErrNotAuthenticated
		}
		return nil
	}

	allowed, err := m.HasPermission(ctx, current, domain.PermManageIdentities)
	if err != nil {
		return err
	}
	if !allowed {
		if admin, err := m.RequiresRole(ctx, current, domain.RoleAdministrator); err != nil {
			return err
		} else if !admin {
			return ErrPermissionDenied
		}
	}

	target, err := m.store.FindIdentityByLoginID(ctx, targetLoginID)
	if err != nil {
		if errors.Is(err, store.ErrIdentityNotFound) {
			return store.ErrIdentityNotFound
		}
		log.Printf("level=error component=auth msg=\"target lookup failed\" login_id=%s err=%v", targetLoginID, err)
		return store.ErrStoreUnavailable
	}

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.IdentityID == target.ID {
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
	log.Printf("level=info component=auth msg=\"administrative logout\" target=%s by=%s", targetLoginID, current.LoginID)
	return nil
}

// Resolve maps a session id back to a live session. Used by the transport
// layer after verifying a bearer token.
func (m *Manager) Resolve(sessionID uuid.UUID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// RequiresRole reports whether the session's identity currently holds at
// least the given tier. The role is re-read from the store on every call so a
// persisted promotion or demotion takes effect immediately.
func (m *Manager) RequiresRole(ctx context.Context, s *Session, min domain.AccessRole) (bool, error) {
	identity, err := m.currentIdentity(ctx, s)
	if err != nil || identity == nil {
		return false, err
	}
	return identity.Role.AtLeast(min), nil
}

// HasPermission reports whether the session's identity's role currently
// grants the token. Unauthenticated callers hold nothing.
func (m *Manager) HasPermission(ctx context.Context, s *Session, perm domain.Permission) (bool, error) {
	identity, err := m.currentIdentity(ctx, s)
	if err != nil || identity == nil {
		return false, err
	}
	return domain.RoleGrants(identity.Role, perm), nil
}

// currentIdentity fetches the fresh identity record for a session, or nil for
// an unauthenticated or revoked session.
func (m *Manager) currentIdentity(ctx context.Context, s *Session) (*domain.Identity, error) {
	if s == nil {
		return nil, nil
	}
	m.mu.RLock()
	_, live := m.sessions[s.ID]
	m.mu.RUnlock()
	if !live {
		return nil, nil
	}
	identity, err := m.store.FindIdentityByLoginID(ctx, s.LoginID)
	if err != nil {
		if errors.Is(err, store.ErrIdentityNotFound) {
			return nil, nil
		}
		log.Printf("level=error component=auth msg=\"identity refresh failed\" login_id=%s err=%v", s.LoginID, err)
		return nil, store.ErrStoreUnavailable
	}
	return identity, nil
}

func isAuthError(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrAccountLocked) ||
		errors.Is(err, ErrAlreadyAuthenticated) ||
		errors.Is(err, ErrNotAuthenticated) ||
		errors.Is(err, ErrLoginThrottled)
}
