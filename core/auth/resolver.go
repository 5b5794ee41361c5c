// Package auth resolves credentials into an authenticated session, trying the remote
// login endpoint first and the record store second.
package auth

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/clinic/core"
	"github.com/trezcool/clinic/core/session"
	"github.com/trezcool/clinic/core/user"
	"github.com/trezcool/clinic/services/identity"
)

// StoreToken is the session token issued by the record store tier.
const StoreToken = "store-local"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccessDenied       = errors.New("access denied, please contact your administrator")
)

// UpstreamError is a substantive error reported by the remote login endpoint.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string { return e.Message }

// Route is the view an authenticated user lands on.
type Route string

const (
	RouteAdmin   Route = "admin"
	RouteStudent Route = "student"
)

func RouteFor(usr user.User) Route {
	if usr.IsAdmin() {
		return RouteAdmin
	}
	return RouteStudent
}

type Credentials struct {
	Username string `json:"username" validate:"notblank"`
	Password string `json:"password" validate:"required"`
}

func (c *Credentials) Validate(validate *validator.Validate) error {
	c.Username = core.CleanString(c.Username)
	return validate.Struct(c)
}

type Result struct {
	Session session.Session `json:"session"`
	Route   Route           `json:"route"`
}

type Resolver struct {
	remote   identity.Client // nil when no remote tier is configured
	repo     user.Repository
	sessions session.Store
	validate *validator.Validate
}

func NewResolver(remote identity.Client, repo user.Repository, sessions session.Store, validate *validator.Validate) *Resolver {
	return &Resolver{
		remote:   remote,
		repo:     repo,
		sessions: sessions,
		validate: validate,
	}
}

// Login authenticates the credentials and stores the resulting session, replacing any previous session
// of the same user. Nothing is stored on failure.
func (r *Resolver) Login(ctx context.Context, creds Credentials) (Result, error) {
	if err := creds.Validate(r.validate); err != nil {
		return Result{}, err
	}

	usr, token, ok, err := r.remoteLogin(ctx, creds)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		if usr, err = r.storeLogin(ctx, creds); err != nil {
			return Result{}, err
		}
		token = StoreToken
	}

	sess := session.New(usr, token)
	r.sessions.Put(sess)
	return Result{Session: sess, Route: RouteFor(usr)}, nil
}

// remoteLogin reports !ok when the record store tier must take over.
func (r *Resolver) remoteLogin(ctx context.Context, creds Credentials) (usr user.User, token string, ok bool, err error) {
	if r.remote == nil {
		return user.User{}, "", false, nil
	}

	res, err := r.remote.Login(ctx, creds.Username, creds.Password)
	if err != nil {
		var sErr *identity.StatusError
		switch cause := errors.Cause(err); {
		case cause == identity.ErrNotProvisioned, cause == identity.ErrUnreachable:
			return user.User{}, "", false, nil
		case errors.As(err, &sErr):
			return user.User{}, "", false, &UpstreamError{Status: sErr.Status, Message: sErr.Message}
		default:
			return user.User{}, "", false, errors.Wrap(err, "remote login")
		}
	}

	usr = user.User{
		ID:       res.User.ID,
		Username: core.CleanString(res.User.Username, true /* lower */),
		Name:     res.User.Name,
		Email:    res.User.Email,
		Role:     res.User.Role,
	}
	if usr.Username == "" {
		usr.Username = core.CleanString(creds.Username, true /* lower */)
	}
	if usr.ID == "" {
		usr.ID = usr.Username
	}
	token = res.Token
	if token == "" {
		token = identity.DefaultToken
	}
	return usr, token, true, nil
}

func (r *Resolver) storeLogin(ctx context.Context, creds Credentials) (user.User, error) {
	usr, err := r.repo.GetUser(ctx, user.GetFilter{Username: core.CleanString(creds.Username, true /* lower */)})
	if err != nil {
		switch errors.Cause(err) {
		case user.ErrNotFound:
			return user.User{}, ErrInvalidCredentials
		case core.ErrPermissionDenied:
			return user.User{}, ErrAccessDenied
		default:
			return user.User{}, errors.Wrap(err, "finding user by username")
		}
	}
	if err = usr.CheckPassword(creds.Password); err != nil {
		return user.User{}, ErrInvalidCredentials
	}
	return usr, nil
}

// Logout ends the active session of the user.
func (r *Resolver) Logout(userID string) error {
	return r.sessions.Delete(userID)
}
