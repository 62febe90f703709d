// Package all registers every built-in sink with the storage factory. Import
// it for side effects:
//
//	import _ "gdqvods/internal/storage/all"
package all

import (
	_ "gdqvods/internal/storage/csv"
	_ "gdqvods/internal/storage/mssql"
	_ "gdqvods/internal/storage/postgres"
	_ "gdqvods/internal/storage/sqlite"
	_ "gdqvods/internal/storage/xlsx"
)
