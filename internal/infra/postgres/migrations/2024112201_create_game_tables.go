package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed 0001_create_game_tables.sql
var createGameTablesSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(createGameTablesSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(`
				DROP TABLE IF EXISTS messages, tournament_questions,
					tournament_matches, tournament_topics, tournaments,
					participants, attempts, match_questions, matches,
					categories, rounds, games`)
			return err
		},
	)
}
