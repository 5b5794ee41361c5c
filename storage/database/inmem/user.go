package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/clinic/core"
	"github.com/trezcool/clinic/core/user"
)

type userRepository struct {
	db *DB
}

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) table() *userTable { return repo.db.user }

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	tbl := repo.table()
	tbl.Lock()
	defer tbl.Unlock()

	for _, u := range tbl.table {
		if u.Username == usr.Username {
			return user.User{}, user.ErrUsernameExists
		}
	}
	tbl.table[usr.ID] = &usr
	repo.db.notify(core.CollectionUsers)
	return usr, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	tbl := repo.table()
	tbl.RLock()
	defer tbl.RUnlock()

	if filter.ID != "" {
		if usr, ok := tbl.table[filter.ID]; ok {
			return *usr, nil
		}
		return user.User{}, user.ErrNotFound
	}
	for _, usr := range tbl.table {
		if filter.Username != "" && usr.Username == filter.Username {
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) QueryUsers(_ context.Context, filter user.QueryFilter) ([]user.User, error) {
	tbl := repo.table()
	tbl.RLock()
	defer tbl.RUnlock()

	users := make([]user.User, 0, len(tbl.table))
	for _, usr := range tbl.table {
		if filter.Role == "" || usr.Role == filter.Role {
			users = append(users, *usr)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].Username < users[j].Username
		}
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

func (repo *userRepository) SetPassword(_ context.Context, id string, hash []byte, updatedAt time.Time) error {
	tbl := repo.table()
	tbl.Lock()
	defer tbl.Unlock()

	usr, ok := tbl.table[id]
	if !ok {
		return user.ErrNotFound
	}
	usr.PasswordHash = hash
	usr.UpdatedAt = updatedAt
	repo.db.notify(core.CollectionUsers)
	return nil
}
