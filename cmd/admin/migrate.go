package main

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/noah-isme/school-registry/migrations"
)

var gooseRunFunc = runGoose // mockable

func runGoose(ctx context.Context, command string, db *sql.DB, args ...string) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.RunContext(ctx, command, db, ".", args...)
}

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run goose migrations (up, down, status, redo, up-to VERSION, down-to VERSION, version)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var db *sql.DB
			if cli.db != nil {
				db = cli.db.DB
			}
			return gooseRunFunc(cmd.Context(), args[0], db, args[1:]...)
		},
	}
}
