package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/clinic/core"
	"github.com/trezcool/clinic/core/user"
)

type seedFile struct {
	Users []user.NewUser `yaml:"users"`
}

func (cli *commandLine) seedCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the users listed in a YAML file, skipping existing usernames",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(path)
			if err != nil {
				return errors.Wrap(err, "reading seed file")
			}
			var seed seedFile
			if err = yaml.Unmarshal(data, &seed); err != nil {
				return errors.Wrapf(err, "parsing %s", path)
			}

			if err = cli.open(cmd.Context()); err != nil {
				return err
			}
			defer cli.close()

			var created, skipped int
			for i, nu := range seed.Users {
				if nu.PasswordConfirm == "" {
					nu.PasswordConfirm = nu.Password
				}
				if err = nu.Validate(cli.validate); err != nil {
					return errors.Wrapf(cli.describe(err), "user #%d (%s)", i+1, nu.Username)
				}
				if _, err = cli.usrSvc.Create(cmd.Context(), nu); err != nil {
					if isUsernameTaken(err) {
						skipped++
						continue
					}
					return errors.Wrapf(cli.describe(err), "user #%d (%s)", i+1, nu.Username)
				}
				created++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d user(s) created, %d skipped\n", created, skipped)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "users.yaml", "YAML file with a `users` list")
	return cmd
}

func (cli *commandLine) addUserCmd() *cobra.Command {
	var nu user.NewUser
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a user. The password is prompted next",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if nu.Password, err = promptPassword(cmd, "Enter password:"); err != nil {
				return err
			}
			if nu.PasswordConfirm, err = promptPassword(cmd, "Confirm password:"); err != nil {
				return err
			}
			if err = nu.Validate(cli.validate); err != nil {
				return cli.describe(err)
			}

			if err = cli.open(cmd.Context()); err != nil {
				return err
			}
			defer cli.close()

			usr, err := cli.usrSvc.Create(cmd.Context(), nu)
			if err != nil {
				return cli.describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %s (%s) created with id %s\n", usr.Username, usr.Role, usr.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&nu.Username, "username", "", "login name")
	cmd.Flags().StringVar(&nu.Name, "name", "", "display name")
	cmd.Flags().StringVar(&nu.Email, "email", "", "email address, used for assignment notifications")
	cmd.Flags().StringVar(&nu.Role, "role", user.RoleStudent, "ADMIN or STUDENT")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (cli *commandLine) resetPasswordCmd() *cobra.Command {
	var data user.ResetUserPassword
	cmd := &cobra.Command{
		Use:   "resetpassword",
		Short: "Reset the password of a user. The password is prompted next",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if data.Password, err = promptPassword(cmd, "Enter password:"); err != nil {
				return err
			}
			if data.PasswordConfirm, err = promptPassword(cmd, "Confirm password:"); err != nil {
				return err
			}
			if err = data.Validate(cli.validate); err != nil {
				return cli.describe(err)
			}

			if err = cli.open(cmd.Context()); err != nil {
				return err
			}
			defer cli.close()

			if err = cli.usrSvc.ResetPassword(cmd.Context(), data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password of %s reset\n", data.Username)
			return nil
		},
	}
	cmd.Flags().StringVar(&data.Username, "username", "", "the user's username")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func isUsernameTaken(err error) bool {
	verr, ok := errors.Cause(err).(*core.ValidationError)
	return ok && verr.Err == user.ErrUsernameExists
}
