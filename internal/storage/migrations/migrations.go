// Package migrations embeds the Postgres schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Ordered lists migration files in the order they must be applied.
var Ordered = []string{
	"001_transcripts.up.sql",
}
