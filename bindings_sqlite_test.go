package exqlite

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// helper to require a loaded library for integration tests
func requireLibLoaded(t *testing.T) {
	t.Helper()
	if err := ensureLoaded(); err != nil {
		t.Skipf("sqlite3 dynamic library is not loaded; set %s to the shared library to run integration tests (%v)", LibraryPathEnv, err)
	}
}

// helper to open a raw in-memory database handle
func openMemoryDB(t *testing.T) Sqlite3 {
	t.Helper()
	requireLibLoaded(t)
	db, rc := sqlite3_open_v2(":memory:", openFlags)
	if rc != SQLITE_OK {
		sqlite3_close_v2(db)
		t.Fatalf("sqlite3_open_v2 failed: %v", rc)
	}
	t.Cleanup(func() { sqlite3_close_v2(db) })
	return db
}

// helper to open a connection that is closed when the test ends
func openConn(t *testing.T) *Conn {
	t.Helper()
	requireLibLoaded(t)
	c, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func mustPrepare(t *testing.T, db Sqlite3, sql string) Sqlite3Stmt {
	t.Helper()
	stmt, rc := sqlite3_prepare_v3(db, []byte(sql))
	if rc != SQLITE_OK {
		msg, _ := sqlite3_errmsg(db)
		t.Fatalf("prepare %q failed: %v: %s", sql, rc, msg)
	}
	t.Cleanup(func() { sqlite3_finalize(stmt) })
	return stmt
}

func TestLibVersion(t *testing.T) {
	requireLibLoaded(t)
	version, err := LibVersion()
	require.NoError(t, err)
	require.Regexp(t, `^3\.\d+\.\d+`, version)
	require.NotEmpty(t, LibPath())
}

func TestRawCreateInsertSelectRoundtrip(t *testing.T) {
	db := openMemoryDB(t)

	require.Equal(t, SQLITE_OK, sqlite3_exec(db, []byte("CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT, val REAL, data BLOB, n NULL)")))

	insert := mustPrepare(t, db, "INSERT INTO t (name, val, data, n) VALUES (?, ?, ?, ?)")
	require.Equal(t, 4, sqlite3_bind_parameter_count(insert))
	require.Equal(t, SQLITE_OK, sqlite3_bind_text(insert, 1, []byte("a\x00b")))
	require.Equal(t, SQLITE_OK, sqlite3_bind_double(insert, 2, 3.25))
	require.Equal(t, SQLITE_OK, sqlite3_bind_blob(insert, 3, []byte{0, 1, 0, 2}))
	require.Equal(t, SQLITE_OK, sqlite3_bind_null(insert, 4))
	require.Equal(t, SQLITE_DONE, sqlite3_step(insert))
	require.Equal(t, 1, sqlite3_changes(db))
	require.Equal(t, int64(1), sqlite3_last_insert_rowid(db))

	sel := mustPrepare(t, db, "SELECT id, name, val, data, n FROM t")
	require.Equal(t, 5, sqlite3_column_count(sel))
	require.Equal(t, SQLITE_ROW, sqlite3_step(sel))
	require.Equal(t, SQLITE_INTEGER, sqlite3_column_type(sel, 0))
	require.Equal(t, int64(1), sqlite3_column_int64(sel, 0))
	require.Equal(t, SQLITE_TEXT, sqlite3_column_type(sel, 1))
	require.True(t, bytes.Equal([]byte("a\x00b"), sqlite3_column_text(sel, 1)))
	require.Equal(t, 3.25, sqlite3_column_double(sel, 2))
	require.Equal(t, []byte{0, 1, 0, 2}, sqlite3_column_blob(sel, 3))
	require.Equal(t, SQLITE_NULL, sqlite3_column_type(sel, 4))
	require.Equal(t, "TEXT", sqlite3_column_decltype(sel, 1))
	name, ok := sqlite3_column_name(sel, 3)
	require.True(t, ok)
	require.Equal(t, "data", name)
	require.Equal(t, SQLITE_DONE, sqlite3_step(sel))
}

func TestRawEmptyTextIsNotNull(t *testing.T) {
	db := openMemoryDB(t)
	stmt := mustPrepare(t, db, "SELECT typeof(?), length(?)")
	require.Equal(t, SQLITE_OK, sqlite3_bind_text(stmt, 1, nil))
	require.Equal(t, SQLITE_OK, sqlite3_bind_text(stmt, 2, []byte{}))
	require.Equal(t, SQLITE_ROW, sqlite3_step(stmt))
	require.Equal(t, []byte("text"), sqlite3_column_text(stmt, 0))
	require.Equal(t, int64(0), sqlite3_column_int64(stmt, 1))
}

func TestRawPrepareErrorMessage(t *testing.T) {
	db := openMemoryDB(t)
	stmt, rc := sqlite3_prepare_v3(db, []byte("SELEC 1"))
	require.Nil(t, stmt)
	require.Equal(t, SQLITE_ERROR, rc)
	msg, ok := sqlite3_errmsg(db)
	require.True(t, ok)
	require.Contains(t, msg, "syntax error")
	require.Equal(t, SQLITE_ERROR, sqlite3_extended_errcode(db))
	require.NotEmpty(t, sqlite3_errstr(SQLITE_BUSY))
	require.Equal(t, "database is locked", describeCode(SQLITE_BUSY))
	require.Equal(t, "constraint failed", describeCode(SQLITE_CONSTRAINT))
}

func TestRawCloseNilAndFinalizeNil(t *testing.T) {
	requireLibLoaded(t)
	require.Equal(t, SQLITE_OK, sqlite3_close_v2(nil))
	require.Equal(t, SQLITE_OK, sqlite3_finalize(nil))
}

func TestTranslateErrorUsesConnectionMessage(t *testing.T) {
	db := openMemoryDB(t)
	rc := sqlite3_exec(db, []byte("SELECT * FROM missing_table"))
	require.Equal(t, SQLITE_ERROR, rc)
	err := translateError(rc, db)
	require.ErrorIs(t, err, ErrSQLite)
	require.Contains(t, err.Message, "missing_table")
	require.Equal(t, SQLITE_ERROR, err.Code)
}
