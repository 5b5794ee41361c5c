package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/clinic/core"
)

// Roles
const (
	RoleAdmin   = "ADMIN"
	RoleStudent = "STUDENT"
)

var Roles = []Role{
	{Name: "Student", Value: RoleStudent},
	{Name: "Admin", Value: RoleAdmin},
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"` // UTC
	UpdatedAt    time.Time `json:"updatedAt"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u *User) IsStudent() bool { return u.Role == RoleStudent }

// DisplayName falls back to the username for users seeded without a name.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Username        string `json:"username" yaml:"username" validate:"notblank,max=150,alphanum_"`
	Name            string `json:"name" yaml:"name" validate:"notblank"`
	Email           string `json:"email" yaml:"email" validate:"omitempty,email"`
	Role            string `json:"role" yaml:"role" validate:"required,oneof=ADMIN STUDENT"`
	Password        string `json:"password" yaml:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" yaml:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Role = core.CleanString(nu.Role)

	return validate.Struct(nu)
}

// ResetUserPassword sets a new password on the User matching Username.
type ResetUserPassword struct {
	Username        string `json:"username" validate:"notblank"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (rp *ResetUserPassword) Validate(validate *validator.Validate) error {
	rp.Username = core.CleanString(rp.Username, true /* lower */)
	return validate.Struct(rp)
}

type QueryFilter struct {
	Role string `query:"role"`
}

func (qf *QueryFilter) Clean() {
	qf.Role = core.CleanString(qf.Role)
}
