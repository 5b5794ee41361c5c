package user

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/clinic/core"
)

func TestNewUser_Validate(t *testing.T) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	RegisterValidators(validate, translator)

	valid := func() NewUser {
		return NewUser{
			Username:        "jdoe",
			Name:            "John Doe",
			Email:           "jdoe@example.com",
			Role:            RoleStudent,
			Password:        "Gr8-Expectations",
			PasswordConfirm: "Gr8-Expectations",
		}
	}

	tests := []struct {
		name    string
		mutate  func(nu *NewUser)
		wantTag string
		wantFld string
	}{
		{name: "valid", mutate: func(*NewUser) {}},
		{name: "blank username", mutate: func(nu *NewUser) { nu.Username = "   " }, wantTag: "notblank", wantFld: "username"},
		{name: "bad username", mutate: func(nu *NewUser) { nu.Username = "j doe!" }, wantTag: alphaNumUnderTag, wantFld: "username"},
		{name: "bad role", mutate: func(nu *NewUser) { nu.Role = "LAWYER" }, wantTag: "oneof", wantFld: "role"},
		{name: "bad email", mutate: func(nu *NewUser) { nu.Email = "nope" }, wantTag: "email", wantFld: "email"},
		{name: "confirm mismatch", mutate: func(nu *NewUser) { nu.PasswordConfirm = "x" }, wantTag: "eqfield", wantFld: "password_confirm"},
		{name: "too short", mutate: func(nu *NewUser) { nu.Password, nu.PasswordConfirm = "Ab1", "Ab1" }, wantTag: pwdMinLenTag, wantFld: "password"},
		{name: "whitespace", mutate: func(nu *NewUser) { nu.Password, nu.PasswordConfirm = "Abc 12345", "Abc 12345" }, wantTag: pwdNoSpaceTag, wantFld: "password"},
		{name: "all numeric", mutate: func(nu *NewUser) { nu.Password, nu.PasswordConfirm = "1234567890", "1234567890" }, wantTag: pwdNotAllNumTag, wantFld: "password"},
		{name: "not complex", mutate: func(nu *NewUser) { nu.Password, nu.PasswordConfirm = "abcdefgh1", "abcdefgh1" }, wantTag: pwdComplexityTag, wantFld: "password"},
		{name: "similar", mutate: func(nu *NewUser) { nu.Password, nu.PasswordConfirm = "Jdoe1234", "Jdoe1234"; nu.Username = "jdoe1234" }, wantTag: pwdAttrSimTag, wantFld: "password"},
		{name: "common", mutate: func(nu *NewUser) { nu.Password, nu.PasswordConfirm = "Password123", "Password123" }, wantTag: pwdNoCommonTag, wantFld: "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nu := valid()
			tt.mutate(&nu)
			err := nu.Validate(validate)
			if tt.wantTag == "" {
				assert.NoError(t, err)
				return
			}
			var vErrs validator.ValidationErrors
			require.ErrorAs(t, err, &vErrs)
			assert.Equal(t, tt.wantTag, vErrs[0].Tag())
			assert.Equal(t, tt.wantFld, vErrs[0].Field())
			assert.NotEmpty(t, vErrs[0].Translate(translator))
		})
	}
}
