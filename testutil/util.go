// Package testutil holds fixtures shared by the tests of every package.
package testutil

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/clinic/core"
	"github.com/trezcool/clinic/core/cases"
	"github.com/trezcool/clinic/core/user"
	"github.com/trezcool/clinic/services/logger"
)

// NewValidator returns a validator with every custom validator of the app registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.RegisterValidators(validate, translator)
	return validate, translator
}

// NewLogger returns a silent logger with Rollbar disabled.
func NewLogger() core.Logger {
	conf := core.NewTestConfig()
	return logsvc.NewRollbarLogger(log.New(io.Discard, "TEST : ", 0), conf)
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd, role string,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		ID:        uname + "-id",
		Name:      name,
		Username:  uname,
		Email:     email,
		Role:      role,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateCase stores an OPEN case assigned to assignee.
func CreateCase(t *testing.T, repo cases.Repository, id, title string, assignee user.User) cases.Case {
	t.Helper()

	c, err := repo.CreateCase(context.Background(), cases.Case{
		ID:             id,
		Title:          title,
		Status:         cases.StatusOpen,
		AssignedTo:     assignee.ID,
		CreatedBy:      cases.DefaultCreatedBy,
		DocumentStatus: cases.DocumentNotUploaded,
	})
	if err != nil {
		t.Fatalf("CreateCase() failed: %v", err)
	}
	return c
}
