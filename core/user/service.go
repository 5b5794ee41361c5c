package user

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/clinic/core"
	"github.com/trezcool/clinic/core/live"
)

var (
	// errors
	ErrNotFound       = errors.New("user not found")
	ErrUsernameExists = errors.New("a user with this username already exists")
)

type (
	// GetFilter selects a single User. ID wins over Username when both are set.
	GetFilter struct {
		ID       string
		Username string
	}

	Repository interface {
		// CreateUser returns ErrUsernameExists when the username is taken.
		CreateUser(ctx context.Context, usr User) (User, error)
		// GetUser returns ErrNotFound when no User matches.
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		// QueryUsers returns users ordered by createdAt desc.
		QueryUsers(ctx context.Context, filter QueryFilter) ([]User, error)
		SetPassword(ctx context.Context, id string, hash []byte, updatedAt time.Time) error
	}

	Service interface {
		Create(ctx context.Context, nu NewUser) (User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByUsername(ctx context.Context, uname string) (User, error)
		Query(ctx context.Context, filter QueryFilter) ([]User, error)
		ResetPassword(ctx context.Context, data ResetUserPassword) error
		// Watch streams Query snapshots until ctx is done.
		Watch(ctx context.Context, filter QueryFilter) <-chan live.Snapshot
	}

	service struct {
		repo Repository
		hub  *live.Hub
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, hub *live.Hub) Service {
	return &service{repo: repo, hub: hub}
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		ID:        uuid.NewString(),
		Username:  nu.Username,
		Name:      nu.Name,
		Email:     nu.Email,
		Role:      nu.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}

	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		if errors.Cause(err) == ErrUsernameExists {
			return User{}, core.NewValidationError(ErrUsernameExists, core.FieldError{
				Field: "username",
				Error: ErrUsernameExists.Error(),
			})
		}
		return User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByUsername(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Username: core.CleanString(uname, true /* lower */)})
}

func (svc *service) Query(ctx context.Context, filter QueryFilter) ([]User, error) {
	filter.Clean()
	return svc.repo.QueryUsers(ctx, filter)
}

func (svc *service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	usr, err := svc.GetByUsername(ctx, data.Username)
	if err != nil {
		return err
	}
	if err = usr.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	return svc.repo.SetPassword(ctx, usr.ID, usr.PasswordHash, time.Now().UTC())
}

func (svc *service) Watch(ctx context.Context, filter QueryFilter) <-chan live.Snapshot {
	return live.Watch(ctx, svc.hub, func(ctx context.Context) (interface{}, error) {
		return svc.Query(ctx, filter)
	}, core.CollectionUsers)
}
