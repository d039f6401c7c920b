package migrations

import _ "embed"

//go:embed 0003_create_leaderboard_entries.sql
var createLeaderboardSQL string

func init() {
	Migrations.MustRegister(
		exec(createLeaderboardSQL),
		exec(`DROP TABLE IF EXISTS leaderboard_entries`),
	)
}
