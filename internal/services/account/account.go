// Package account signs users in and out and manages user accounts.
package account

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cobrand/internal/auth"
	"github.com/vadiminshakov/cobrand/internal/domain"
	"github.com/vadiminshakov/cobrand/internal/gateway"
)

const (
	pathLogin    = "/api/tokens"
	pathRegister = "/api/users/self-register"
	pathUsers    = "/api/users"
)

// Sessions persists the signed-in identity.
type Sessions interface {
	Establish(ctx context.Context, claims auth.Claims, token, tenant string) (domain.Session, error)
	Clear(ctx context.Context) error
}

// Service implements the account calls.
type Service struct {
	api      gateway.Caller
	sessions Sessions
	logger   *zap.Logger
}

// New creates the account service.
func New(api gateway.Caller, sessions Sessions, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{api: api, sessions: sessions, logger: logger}
}

// Login exchanges credentials for a token under tenant and establishes the
// session from the token claims. Nothing is persisted when any step fails.
func (s *Service) Login(ctx context.Context, creds domain.Credentials, tenant string) (domain.Session, error) {
	if problems := creds.Validate(); len(problems) > 0 {
		return domain.Session{}, gateway.NewValidationError(problems, nil)
	}

	resp, err := gateway.Decode[domain.LoginResponse](ctx, s.api, gateway.Request{
		Name:   "login",
		Method: http.MethodPost,
		Path:   pathLogin,
		Body:   creds,
		Tenant: tenant,
	})
	if err != nil {
		return domain.Session{}, err
	}
	if resp.Token == "" {
		return domain.Session{}, errors.Wrap(gateway.ErrMalformedResponse, "login: missing token")
	}

	claims, err := auth.DecodeClaims(resp.Token)
	if err != nil {
		return domain.Session{}, errors.Wrapf(gateway.ErrMalformedResponse, "login: %v", err)
	}

	sess, err := s.sessions.Establish(ctx, claims, resp.Token, tenant)
	if err != nil {
		return domain.Session{}, errors.Wrap(err, "establish session")
	}

	s.logger.Info("user signed in",
		zap.String("user_id", sess.SubjectID),
		zap.String("user_type", sess.UserType),
		zap.String("tenant", tenant))
	return sess, nil
}

// Register creates an account under tenant.
func (s *Service) Register(ctx context.Context, req domain.RegisterRequest, tenant string) error {
	if problems := req.Validate(); len(problems) > 0 {
		return gateway.NewValidationError(problems, nil)
	}

	_, err := s.api.Call(ctx, gateway.Request{
		Name:   "register",
		Method: http.MethodPost,
		Path:   pathRegister,
		Body:   req,
		Tenant: tenant,
	})
	if err != nil {
		return err
	}

	s.logger.Info("user registered", zap.String("user_name", req.UserName), zap.String("tenant", tenant))
	return nil
}

// Logout drops the local session. There is no server call and it never
// fails; a storage error is only logged.
func (s *Service) Logout(ctx context.Context) {
	if err := s.sessions.Clear(ctx); err != nil {
		s.logger.Warn("failed to clear session", zap.Error(err))
		return
	}
	s.logger.Info("user logged out")
}

// Users lists accounts of the given type.
func (s *Service) Users(ctx context.Context, userType int) ([]domain.User, error) {
	body, err := s.api.Call(ctx, gateway.Request{
		Name:   "users",
		Method: http.MethodGet,
		Path:   pathUsers,
		Query:  url.Values{"userType": {strconv.Itoa(userType)}},
	})
	if err != nil {
		return nil, err
	}

	// the listing is sent either bare or wrapped in {data: [...]}
	list := gjson.ParseBytes(body)
	if list.IsObject() {
		list = list.Get("data")
	}
	if !list.IsArray() {
		return nil, errors.Wrap(gateway.ErrMalformedResponse, "users: expected a list")
	}

	var users []domain.User
	if err := json.Unmarshal([]byte(list.Raw), &users); err != nil {
		return nil, errors.Wrapf(gateway.ErrMalformedResponse, "users: %v", err)
	}
	return users, nil
}

// User fetches one account.
func (s *Service) User(ctx context.Context, id string) (domain.User, error) {
	if id == "" {
		return domain.User{}, gateway.NewValidationError([]string{"user id is required"}, nil)
	}

	user, err := gateway.Decode[domain.User](ctx, s.api, gateway.Request{
		Name:   "user",
		Method: http.MethodGet,
		Path:   pathUsers + "/" + url.PathEscape(id),
	})
	if err != nil {
		return domain.User{}, err
	}
	if user.ID == "" {
		return domain.User{}, errors.Wrap(gateway.ErrMalformedResponse, "user: missing id")
	}
	return user, nil
}
