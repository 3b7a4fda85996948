// Package migrations embeds the SQL schema applied by the server and the
// integration tests.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
