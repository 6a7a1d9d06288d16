// Package session holds the authenticated identity of the current user.
//
// The session is persisted in a kv.Store under the keys the web dashboard
// has always used (token, decodedToken, userData, userTenant), so a store
// written by one client can be read by another.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cobrand/internal/auth"
	"github.com/vadiminshakov/cobrand/internal/domain"
	"github.com/vadiminshakov/cobrand/internal/storage/kv"
)

// Persisted keys.
const (
	KeyToken        = "token"
	KeyDecodedToken = "decodedToken"
	KeyUserData     = "userData"
	KeyTenant       = "userTenant"
)

// ErrNoSession is returned when an operation needs a signed-in user.
var ErrNoSession = errors.New("no active session")

// Dependent is state derived from the session. It is invalidated whenever the
// session is cleared or replaced.
type Dependent interface {
	Invalidate(ctx context.Context) error
}

// Store reads and writes the session.
type Store struct {
	kv     kv.Store
	logger *zap.Logger
	now    func() time.Time

	mu         sync.RWMutex
	dependents []Dependent
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a session store over store.
func NewStore(store kv.Store, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{kv: store, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnClear registers state to invalidate when the session goes away.
func (s *Store) OnClear(deps ...Dependent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dependents = append(s.dependents, deps...)
}

// Establish persists token, its decoded claims and the derived identity in a
// single batch, then invalidates dependents so nothing cached for a previous
// user survives the new login. A failed write leaves the previous session and
// its dependents untouched.
func (s *Store) Establish(ctx context.Context, claims auth.Claims, token, tenant string) (domain.Session, error) {
	if token == "" {
		return domain.Session{}, errors.New("token is required")
	}

	claimsPayload, err := json.Marshal(claims)
	if err != nil {
		return domain.Session{}, errors.Wrap(err, "marshal token claims")
	}
	userPayload, err := json.Marshal(claims.Identity())
	if err != nil {
		return domain.Session{}, errors.Wrap(err, "marshal user data")
	}

	err = s.kv.SetMany(ctx, map[string]string{
		KeyToken:        token,
		KeyDecodedToken: string(claimsPayload),
		KeyUserData:     string(userPayload),
		KeyTenant:       tenant,
	})
	if err != nil {
		return domain.Session{}, errors.Wrap(err, "persist session")
	}

	if err := s.invalidateDependents(ctx); err != nil {
		return domain.Session{}, errors.Wrap(err, "invalidate previous session state")
	}

	return claims.Session(token, tenant), nil
}

// Current returns the persisted session. It never calls the network and
// reports absent for missing, corrupt or expired data.
func (s *Store) Current(ctx context.Context) (domain.Session, bool) {
	token, ok := s.read(ctx, KeyToken)
	if !ok || token == "" {
		return domain.Session{}, false
	}

	raw, ok := s.read(ctx, KeyDecodedToken)
	if !ok {
		return domain.Session{}, false
	}
	var claims auth.Claims
	if err := json.Unmarshal([]byte(raw), &claims); err != nil || claims == nil {
		s.logger.Debug("discarding corrupt session claims", zap.Error(err))
		return domain.Session{}, false
	}

	if claims.Expired(s.now()) {
		s.logger.Debug("session token expired", zap.Time("expires_at", claims.ExpiresAt()))
		return domain.Session{}, false
	}

	tenant, _ := s.read(ctx, KeyTenant)
	return claims.Session(token, tenant), true
}

// Token returns the bearer token of the current session.
func (s *Store) Token(ctx context.Context) (string, bool) {
	sess, ok := s.Current(ctx)
	if !ok {
		return "", false
	}
	return sess.Token, true
}

// Tenant returns the selected tenant. It outlives logout, as a tenant is a
// partition choice rather than part of the identity.
func (s *Store) Tenant(ctx context.Context) (string, bool) {
	tenant, ok := s.read(ctx, KeyTenant)
	if !ok || tenant == "" {
		return "", false
	}
	return tenant, true
}

// SetTenant selects the tenant used before anyone has signed in.
func (s *Store) SetTenant(ctx context.Context, tenant string) error {
	return errors.Wrap(kv.Set(ctx, s.kv, KeyTenant, tenant), "persist tenant")
}

// Clear removes the session and invalidates every dependent before returning.
// Dependents are invalidated even if removing the session keys failed.
func (s *Store) Clear(ctx context.Context) error {
	var result error
	if err := s.kv.Delete(ctx, KeyToken, KeyDecodedToken, KeyUserData); err != nil {
		result = multierr.Append(result, errors.Wrap(err, "delete session"))
	}
	if err := s.invalidateDependents(ctx); err != nil {
		result = multierr.Append(result, err)
	}
	return result
}

func (s *Store) invalidateDependents(ctx context.Context) error {
	s.mu.RLock()
	deps := append([]Dependent(nil), s.dependents...)
	s.mu.RUnlock()

	var result error
	for _, dep := range deps {
		if err := dep.Invalidate(ctx); err != nil {
			result = multierr.Append(result, errors.Wrap(err, "invalidate dependent"))
		}
	}
	return result
}

func (s *Store) read(ctx context.Context, key string) (string, bool) {
	v, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.logger.Debug("session store read failed", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return v, ok
}
