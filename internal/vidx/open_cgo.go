//go:build cgo

package vidx

// With cgo available the mattn driver is used; it is faster than the pure Go
// modernc driver.

import (
	"strings"

	"github.com/jmoiron/sqlx"

	_ "github.com/mattn/go-sqlite3"
)

const whichSQLiteDriver = "sqlite3"

func connect(path string) (*sqlx.DB, error) {
	// URI filenames have to begin with 'file:'
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	return sqlx.Connect(whichSQLiteDriver, path)
}
