package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed 20261016000001_init.sql
var initSQL string

var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, initSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `
				DROP TABLE IF EXISTS results;
				DROP TABLE IF EXISTS questions;
				DROP TABLE IF EXISTS competitions;
				DROP TABLE IF EXISTS auth_guard_states;
				DROP TABLE IF EXISTS users;
			`)
			return err
		},
	)
}
