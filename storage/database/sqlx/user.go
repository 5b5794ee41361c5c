package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/clinic/core"
	"github.com/trezcool/clinic/core/user"
)

type userRow struct {
	ID           string    `db:"id"`
	Username     string    `db:"username"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	Role         string    `db:"role"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (row userRow) toUser() user.User {
	return user.User{
		ID:           row.ID,
		Username:     row.Username,
		Name:         row.Name,
		Email:        row.Email,
		Role:         row.Role,
		PasswordHash: []byte(row.PasswordHash),
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
}

const userColumns = "id, username, name, email, role, password_hash, created_at, updated_at"

type userRepository struct {
	db *DB
}

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := repo.db.Rebind(`INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := repo.db.ExecContext(ctx, q,
		usr.ID, usr.Username, usr.Name, usr.Email, usr.Role, string(usr.PasswordHash), usr.CreatedAt.UTC(), usr.UpdatedAt.UTC(),
	)
	if err = mapError(err); err != nil {
		if err == errUniqueViolation {
			return user.User{}, user.ErrUsernameExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	repo.db.notify(ctx, core.CollectionUsers)
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var (
		row userRow
		err error
	)
	if filter.ID != "" {
		err = repo.db.GetContext(ctx, &row, repo.db.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), filter.ID)
	} else {
		err = repo.db.GetContext(ctx, &row, repo.db.Rebind(`SELECT `+userColumns+` FROM users WHERE username = ?`), filter.Username)
	}
	if err != nil {
		if isNoRows(err) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(mapError(err), "selecting user")
	}
	return row.toUser(), nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, error) {
	q := `SELECT ` + userColumns + ` FROM users`
	var args []interface{}
	if filter.Role != "" {
		q += ` WHERE role = ?`
		args = append(args, filter.Role)
	}
	q += ` ORDER BY created_at DESC, username`

	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(mapError(err), "selecting users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toUser())
	}
	return users, nil
}

func (repo *userRepository) SetPassword(ctx context.Context, id string, hash []byte, updatedAt time.Time) error {
	q := repo.db.Rebind(`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`)
	res, err := repo.db.ExecContext(ctx, q, string(hash), updatedAt.UTC(), id)
	if err != nil {
		return errors.Wrap(mapError(err), "updating user password")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.ErrNotFound
	}
	repo.db.notify(ctx, core.CollectionUsers)
	return nil
}
