// Package all enables every built-in storage backend: importing it runs the
// init functions that register "postgres", "mssql" and "sqlite" with the
// storage package.
//
//	import _ "statflat/internal/storage/all"
package all

import (
	_ "statflat/internal/storage/mssql"
	_ "statflat/internal/storage/postgres"
	_ "statflat/internal/storage/sqlite"
)
