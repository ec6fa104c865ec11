package exqlite

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// DefaultBusyTimeout bounds how long the engine waits on a lock, in milliseconds.
	DefaultBusyTimeout = 2000
	// maxPathname is the filename limit in bytes, including the terminating NUL.
	maxPathname = 512

	openFlags = SQLITE_OPEN_READWRITE | SQLITE_OPEN_CREATE | SQLITE_OPEN_FULLMUTEX | SQLITE_OPEN_URI
)

// Open opens (creating if needed) the database at filename. URI filenames
// and ":memory:" are accepted.
func Open(filename string) (*Conn, error) {
	if filename == "" || len(filename) >= maxPathname || strings.IndexByte(filename, 0) >= 0 {
		return nil, newError(KindInvalidFilename)
	}
	if err := ensureLoaded(); err != nil {
		return nil, err
	}

	db, rc := sqlite3_open_v2(filename, openFlags)
	if rc != SQLITE_OK {
		if db == nil {
			Logger().Debug("open database", zap.String("filename", filename), zap.Stringer("rc", rc))
			if rc.Primary() == SQLITE_NOMEM {
				return nil, newError(KindOutOfMemory)
			}
			return nil, newError(KindDatabaseOpenFailed)
		}
		msg, _ := sqlite3_errmsg(db)
		Logger().Debug("open database",
			zap.String("filename", filename),
			zap.Stringer("rc", rc),
			zap.String("message", msg))
		sqlite3_close_v2(db)
		return nil, newError(KindDatabaseOpenFailed)
	}
	if db == nil {
		return nil, newError(KindOutOfMemory)
	}

	sqlite3_busy_timeout(db, DefaultBusyTimeout)
	c := newConn(db)
	Logger().Debug("connection opened", zap.Stringer("conn", c.id), zap.String("filename", filename))
	return c, nil
}

// Close releases the native connection. Closing an already closed connection
// is a no-op; Close always returns nil.
//
// Statements that are still open keep the native connection alive until they
// are finalized.
func (c *Conn) Close() error {
	if c.release() {
		Logger().Debug("connection closed", zap.Stringer("conn", c.id))
	}
	return nil
}

// Closed reports whether the native connection has been released.
func (c *Conn) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db == nil
}

// Execute runs sql, which may hold several statements, without binding or
// reading rows. sql is a string, byte slice or iolist.
func (c *Conn) Execute(sql any) error {
	query, err := sqlBytes(sql)
	if err != nil {
		return err
	}
	db, err := c.acquire()
	if err != nil {
		return err
	}
	defer c.mu.RUnlock()

	if rc := sqlite3_exec(db, query); rc != SQLITE_OK {
		return translateError(rc, db)
	}
	return nil
}

// Changes returns the number of rows modified by the most recent statement.
func (c *Conn) Changes() (int, error) {
	db, err := c.acquire()
	if err != nil {
		return 0, err
	}
	defer c.mu.RUnlock()
	return sqlite3_changes(db), nil
}

// LastInsertRowID returns the rowid of the most recent successful insert.
func (c *Conn) LastInsertRowID() (int64, error) {
	db, err := c.acquire()
	if err != nil {
		return 0, err
	}
	defer c.mu.RUnlock()
	return sqlite3_last_insert_rowid(db), nil
}
