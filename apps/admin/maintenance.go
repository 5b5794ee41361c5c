package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a goose command (up, up-to, down, down-to, redo, reset, status, version...) on the SQL store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := cli.openSQL(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			return migrateFunc(cmd.Context(), db, cli.conf.Database.Engine, args[0], args[1:]...)
		},
	}
}

func (cli *commandLine) reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Align the progress of every case with its latest progress record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.open(cmd.Context()); err != nil {
				return err
			}
			defer cli.close()

			n, err := cli.caseSvc.ReconcileAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d case(s) reconciled\n", n)
			return nil
		},
	}
}
