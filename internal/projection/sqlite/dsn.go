package sqlite

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// ConnString builds a SQLite connection string with the pragmas the
// projection store needs: busy_timeout (avoids "database is locked" while
// the event-bus subscriber and a CLI inspector both hold the file open) and
// foreign_keys. Honors CHRONICLE_LOCK_TIMEOUT for the busy timeout (default
// 30s). A path already in "file:" URI form is returned unchanged, with no
// pragmas added. Grounded on the teacher's storage.SQLiteConnString,
// renamed for chronicle's own env var and trimmed of the read-only branch
// the projection store never needs (it always opens for read-write).
func ConnString(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		path = "chronicle-projection.db"
	}

	busy := 30 * time.Second
	if v := strings.TrimSpace(os.Getenv("CHRONICLE_LOCK_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			busy = d
		}
	}
	busyMs := int64(busy / time.Millisecond)

	if strings.HasPrefix(path, "file:") {
		return path
	}
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=busy_timeout(%d)", path, busyMs)
}
