package migrations

import _ "embed"

//go:embed 0004_create_badges.sql
var createBadgesSQL string

func init() {
	Migrations.MustRegister(
		exec(createBadgesSQL),
		exec(`DROP TABLE IF EXISTS badges`),
	)
}
