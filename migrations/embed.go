package migrations

import "embed"

// FS holds the schema for both services. Each service owns its own tables;
// they share a database only in local development and tests.
//
//go:embed *.sql
var FS embed.FS
