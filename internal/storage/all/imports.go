// Package all registers every built-in storage backend with the storage
// package. Import it for side effects:
//
//	import _ "audience/internal/storage/all"
//
// Available kinds: "sqlite", "mysql", "postgres".
package all

import (
	_ "audience/internal/storage/mysql"
	_ "audience/internal/storage/postgres"
	_ "audience/internal/storage/sqlite"
)
