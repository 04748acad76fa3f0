// Package session owns the bearer token, its decoded claims snapshot, and
// the lifecycle guard that reacts to token expiry. The store is the only
// state shared across concurrently open forms; it is mutated by login,
// logout and the guard's expiry handler, never by a form controller.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"iddesk.org/internal/directory"
	"iddesk.org/internal/kv"
)

// Persisted key names, shared with the browser UI.
const (
	KeyAuthToken   = "authToken"
	KeyUser        = "user"
	KeyUserData    = "userData"
	KeyActiveRoles = "activeRoles"
)

// ErrNoSession indicates a read against a cleared store.
var ErrNoSession = errors.New("session: no active session")

// Store is the single source of truth for who is logged in and with what
// token. Token and claims are always set together; partial state is not a
// valid state.
type Store struct {
	mu          sync.RWMutex
	persist     kv.Store
	token       string
	claims      *Claims
	profile     directory.Profile
	activeRoles []directory.RoleAssignment
	generation  uint64
}

// NewStore returns a Store persisting through the given key-value store.
func NewStore(persist kv.Store) *Store {
	return &Store{persist: persist}
}

// SetSession stores the token together with its freshly decoded claims,
// the identity profile and the active role set, atomically. It replaces
// any previous session and advances the session generation.
func (s *Store) SetSession(ctx context.Context, token string, profile directory.Profile, activeRoles []directory.RoleAssignment) (*Claims, error) {
	claims, err := DecodeToken(token)
	if err != nil {
		return nil, err
	}

	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return nil, fmt.Errorf("session: encode claims: %w", err)
	}
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return nil, fmt.Errorf("session: encode profile: %w", err)
	}
	if activeRoles == nil {
		activeRoles = []directory.RoleAssignment{}
	}
	rolesJSON, err := json.Marshal(activeRoles)
	if err != nil {
		return nil, fmt.Errorf("session: encode roles: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persist.Set(ctx, KeyAuthToken, token); err != nil {
		return nil, err
	}
	if err := s.persist.Set(ctx, KeyUser, string(claimsJSON)); err != nil {
		return nil, err
	}
	if err := s.persist.Set(ctx, KeyUserData, string(profileJSON)); err != nil {
		return nil, err
	}
	if err := s.persist.Set(ctx, KeyActiveRoles, string(rolesJSON)); err != nil {
		return nil, err
	}
	s.token = token
	s.claims = claims
	s.profile = profile
	s.activeRoles = append([]directory.RoleAssignment(nil), activeRoles...)
	s.generation++
	return claims, nil
}

// Clear removes token and claims. Clearing an already empty store is a
// no-op that still advances the generation, so stale timers armed against
// the old session never touch a newer one.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persist.Clear(ctx); err != nil {
		return err
	}
	s.token = ""
	s.claims = nil
	s.profile = directory.Profile{}
	s.activeRoles = nil
	s.generation++
	return nil
}

// Restore loads a previously persisted session, re-decoding claims from
// the stored token. A missing token leaves the store empty.
func (s *Store) Restore(ctx context.Context) error {
	token, err := s.persist.Get(ctx, KeyAuthToken)
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	claims, err := DecodeToken(token)
	if err != nil {
		// An undecodable persisted token is unusable; drop the remnants.
		return s.Clear(ctx)
	}

	var profile directory.Profile
	if raw, err := s.persist.Get(ctx, KeyUserData); err == nil {
		_ = json.Unmarshal([]byte(raw), &profile)
	}
	var roles []directory.RoleAssignment
	if raw, err := s.persist.Get(ctx, KeyActiveRoles); err == nil {
		_ = json.Unmarshal([]byte(raw), &roles)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.claims = claims
	s.profile = profile
	s.activeRoles = roles
	s.generation++
	return nil
}

// Token returns the active bearer token, or empty when logged out.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Claims returns the decoded claims snapshot, or nil when logged out.
func (s *Store) Claims() *Claims {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.claims
}

// Profile returns the identity profile stored at login.
func (s *Store) Profile() (directory.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return directory.Profile{}, ErrNoSession
	}
	return s.profile, nil
}

// ActiveRoles returns a copy of the role assignments held by the active
// identity.
func (s *Store) ActiveRoles() []directory.RoleAssignment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.activeRoles) == 0 {
		return nil
	}
	out := make([]directory.RoleAssignment, len(s.activeRoles))
	copy(out, s.activeRoles)
	return out
}

// Generation returns a counter that advances on every login, logout and
// restore. Timers capture it to decide whether they may still act.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}
