package exqlite

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/ebitengine/purego"
)

// ResultCode is a sqlite3 result code as returned by the C API.
//
// Only the primary codes are enumerated; extended codes carry the primary code
// in their low byte (see Primary).
type ResultCode int32

// note, that OK, ROW and DONE are statuses - they are never turned into errors
const (
	SQLITE_OK         ResultCode = 0
	SQLITE_ERROR      ResultCode = 1
	SQLITE_INTERNAL   ResultCode = 2
	SQLITE_PERM       ResultCode = 3
	SQLITE_ABORT      ResultCode = 4
	SQLITE_BUSY       ResultCode = 5
	SQLITE_LOCKED     ResultCode = 6
	SQLITE_NOMEM      ResultCode = 7
	SQLITE_READONLY   ResultCode = 8
	SQLITE_INTERRUPT  ResultCode = 9
	SQLITE_IOERR      ResultCode = 10
	SQLITE_CORRUPT    ResultCode = 11
	SQLITE_NOTFOUND   ResultCode = 12
	SQLITE_FULL       ResultCode = 13
	SQLITE_CANTOPEN   ResultCode = 14
	SQLITE_PROTOCOL   ResultCode = 15
	SQLITE_EMPTY      ResultCode = 16
	SQLITE_SCHEMA     ResultCode = 17
	SQLITE_TOOBIG     ResultCode = 18
	SQLITE_CONSTRAINT ResultCode = 19
	SQLITE_MISMATCH   ResultCode = 20
	SQLITE_MISUSE     ResultCode = 21
	SQLITE_NOLFS      ResultCode = 22
	SQLITE_AUTH       ResultCode = 23
	SQLITE_FORMAT     ResultCode = 24
	SQLITE_RANGE      ResultCode = 25
	SQLITE_NOTADB     ResultCode = 26
	SQLITE_NOTICE     ResultCode = 27
	SQLITE_WARNING    ResultCode = 28
	SQLITE_ROW        ResultCode = 100
	SQLITE_DONE       ResultCode = 101
)

// Primary strips the extended bits from the code.
func (rc ResultCode) Primary() ResultCode {
	return rc & 0xff
}

func (rc ResultCode) String() string {
	switch rc.Primary() {
	case SQLITE_OK:
		return "SQLITE_OK"
	case SQLITE_ERROR:
		return "SQLITE_ERROR"
	case SQLITE_INTERNAL:
		return "SQLITE_INTERNAL"
	case SQLITE_PERM:
		return "SQLITE_PERM"
	case SQLITE_ABORT:
		return "SQLITE_ABORT"
	case SQLITE_BUSY:
		return "SQLITE_BUSY"
	case SQLITE_LOCKED:
		return "SQLITE_LOCKED"
	case SQLITE_NOMEM:
		return "SQLITE_NOMEM"
	case SQLITE_READONLY:
		return "SQLITE_READONLY"
	case SQLITE_INTERRUPT:
		return "SQLITE_INTERRUPT"
	case SQLITE_IOERR:
		return "SQLITE_IOERR"
	case SQLITE_CORRUPT:
		return "SQLITE_CORRUPT"
	case SQLITE_NOTFOUND:
		return "SQLITE_NOTFOUND"
	case SQLITE_FULL:
		return "SQLITE_FULL"
	case SQLITE_CANTOPEN:
		return "SQLITE_CANTOPEN"
	case SQLITE_PROTOCOL:
		return "SQLITE_PROTOCOL"
	case SQLITE_EMPTY:
		return "SQLITE_EMPTY"
	case SQLITE_SCHEMA:
		return "SQLITE_SCHEMA"
	case SQLITE_TOOBIG:
		return "SQLITE_TOOBIG"
	case SQLITE_CONSTRAINT:
		return "SQLITE_CONSTRAINT"
	case SQLITE_MISMATCH:
		return "SQLITE_MISMATCH"
	case SQLITE_MISUSE:
		return "SQLITE_MISUSE"
	case SQLITE_NOLFS:
		return "SQLITE_NOLFS"
	case SQLITE_AUTH:
		return "SQLITE_AUTH"
	case SQLITE_FORMAT:
		return "SQLITE_FORMAT"
	case SQLITE_RANGE:
		return "SQLITE_RANGE"
	case SQLITE_NOTADB:
		return "SQLITE_NOTADB"
	case SQLITE_NOTICE:
		return "SQLITE_NOTICE"
	case SQLITE_WARNING:
		return "SQLITE_WARNING"
	case SQLITE_ROW:
		return "SQLITE_ROW"
	case SQLITE_DONE:
		return "SQLITE_DONE"
	default:
		return fmt.Sprintf("SQLITE_UNKNOWN(%d)", int32(rc))
	}
}

// ColumnType is the dynamic type of a result cell.
type ColumnType int32

const (
	SQLITE_INTEGER ColumnType = 1
	SQLITE_FLOAT   ColumnType = 2
	SQLITE_TEXT    ColumnType = 3
	SQLITE_BLOB    ColumnType = 4
	SQLITE_NULL    ColumnType = 5
)

func (t ColumnType) String() string {
	switch t {
	case SQLITE_INTEGER:
		return "SQLITE_INTEGER"
	case SQLITE_FLOAT:
		return "SQLITE_FLOAT"
	case SQLITE_TEXT:
		return "SQLITE_TEXT"
	case SQLITE_BLOB:
		return "SQLITE_BLOB"
	case SQLITE_NULL:
		return "SQLITE_NULL"
	default:
		return fmt.Sprintf("SQLITE_UNKNOWN_TYPE(%d)", int32(t))
	}
}

// flags for sqlite3_open_v2
const (
	SQLITE_OPEN_READWRITE = 0x00000002
	SQLITE_OPEN_CREATE    = 0x00000004
	SQLITE_OPEN_URI       = 0x00000040
	SQLITE_OPEN_FULLMUTEX = 0x00010000
)

const (
	sqliteUTF8 = 1
	// SQLITE_TRANSIENT: the engine copies the bound buffer before the bind call returns
	sqliteTransient = ^uintptr(0)
)

// define opaque pointers as-is and accept them as exact arguments
type sqlite3_t struct{}
type sqlite3_stmt_t struct{}

type Sqlite3 *sqlite3_t
type Sqlite3Stmt *sqlite3_stmt_t

// then, define C extern methods
var (
	c_sqlite3_open_v2 func(
		filename string, // const char*
		db unsafe.Pointer, // sqlite3**
		flags int32,
		vfs unsafe.Pointer, // const char* | NULL
	) int32

	c_sqlite3_close_v2 func(db unsafe.Pointer) int32

	c_sqlite3_busy_timeout func(db unsafe.Pointer, ms int32) int32

	c_sqlite3_exec func(
		db unsafe.Pointer,
		sql unsafe.Pointer, // const char*, NUL terminated
		callback uintptr, // always NULL
		arg uintptr, // always NULL
		errmsg uintptr, // always NULL, message is read back with sqlite3_errmsg
	) int32

	c_sqlite3_changes func(db unsafe.Pointer) int32

	c_sqlite3_last_insert_rowid func(db unsafe.Pointer) int64

	c_sqlite3_prepare_v3 func(
		db unsafe.Pointer,
		sql unsafe.Pointer, // const char*
		nByte int32,
		prepFlags uint32,
		stmt unsafe.Pointer, // sqlite3_stmt**
		tail unsafe.Pointer, // const char** | NULL
	) int32

	c_sqlite3_bind_parameter_count func(stmt unsafe.Pointer) int32

	c_sqlite3_reset func(stmt unsafe.Pointer) int32

	c_sqlite3_finalize func(stmt unsafe.Pointer) int32

	c_sqlite3_bind_null func(stmt unsafe.Pointer, index int32) int32

	c_sqlite3_bind_int64 func(stmt unsafe.Pointer, index int32, value int64) int32

	c_sqlite3_bind_double func(stmt unsafe.Pointer, index int32, value float64) int32

	c_sqlite3_bind_text64 func(
		stmt unsafe.Pointer,
		index int32,
		ptr unsafe.Pointer, // const char*
		n uint64,
		destructor uintptr,
		encoding uint8,
	) int32

	c_sqlite3_bind_blob64 func(
		stmt unsafe.Pointer,
		index int32,
		ptr unsafe.Pointer, // const void*
		n uint64,
		destructor uintptr,
	) int32

	c_sqlite3_bind_zeroblob func(stmt unsafe.Pointer, index int32, n int32) int32

	c_sqlite3_step func(stmt unsafe.Pointer) int32

	c_sqlite3_column_count func(stmt unsafe.Pointer) int32

	c_sqlite3_column_type func(stmt unsafe.Pointer, index int32) int32

	c_sqlite3_column_int64 func(stmt unsafe.Pointer, index int32) int64

	c_sqlite3_column_double func(stmt unsafe.Pointer, index int32) float64

	c_sqlite3_column_blob func(stmt unsafe.Pointer, index int32) unsafe.Pointer

	c_sqlite3_column_text func(stmt unsafe.Pointer, index int32) unsafe.Pointer

	c_sqlite3_column_bytes func(stmt unsafe.Pointer, index int32) int32

	c_sqlite3_column_name func(stmt unsafe.Pointer, index int32) unsafe.Pointer

	c_sqlite3_column_decltype func(stmt unsafe.Pointer, index int32) unsafe.Pointer

	c_sqlite3_errmsg func(db unsafe.Pointer) unsafe.Pointer

	c_sqlite3_errstr func(rc int32) unsafe.Pointer

	c_sqlite3_extended_errcode func(db unsafe.Pointer) int32

	c_sqlite3_libversion func() unsafe.Pointer

	c_sqlite3_threadsafe func() int32
)

// register_sqlite3 binds the extern methods to the loaded library.
// DO NOT load lib here - it is done by loadLibrary
func register_sqlite3(handle uintptr) (err error) {
	// purego panics on a missing symbol, an old libsqlite3 must not take the process down
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("exqlite: register sqlite3 symbols: %v", r)
		}
	}()
	purego.RegisterLibFunc(&c_sqlite3_open_v2, handle, "sqlite3_open_v2")
	purego.RegisterLibFunc(&c_sqlite3_close_v2, handle, "sqlite3_close_v2")
	purego.RegisterLibFunc(&c_sqlite3_busy_timeout, handle, "sqlite3_busy_timeout")
	purego.RegisterLibFunc(&c_sqlite3_exec, handle, "sqlite3_exec")
	purego.RegisterLibFunc(&c_sqlite3_changes, handle, "sqlite3_changes")
	purego.RegisterLibFunc(&c_sqlite3_last_insert_rowid, handle, "sqlite3_last_insert_rowid")
	purego.RegisterLibFunc(&c_sqlite3_prepare_v3, handle, "sqlite3_prepare_v3")
	purego.RegisterLibFunc(&c_sqlite3_bind_parameter_count, handle, "sqlite3_bind_parameter_count")
	purego.RegisterLibFunc(&c_sqlite3_reset, handle, "sqlite3_reset")
	purego.RegisterLibFunc(&c_sqlite3_finalize, handle, "sqlite3_finalize")
	purego.RegisterLibFunc(&c_sqlite3_bind_null, handle, "sqlite3_bind_null")
	purego.RegisterLibFunc(&c_sqlite3_bind_int64, handle, "sqlite3_bind_int64")
	purego.RegisterLibFunc(&c_sqlite3_bind_double, handle, "sqlite3_bind_double")
	purego.RegisterLibFunc(&c_sqlite3_bind_text64, handle, "sqlite3_bind_text64")
	purego.RegisterLibFunc(&c_sqlite3_bind_blob64, handle, "sqlite3_bind_blob64")
	purego.RegisterLibFunc(&c_sqlite3_bind_zeroblob, handle, "sqlite3_bind_zeroblob")
	purego.RegisterLibFunc(&c_sqlite3_step, handle, "sqlite3_step")
	purego.RegisterLibFunc(&c_sqlite3_column_count, handle, "sqlite3_column_count")
	purego.RegisterLibFunc(&c_sqlite3_column_type, handle, "sqlite3_column_type")
	purego.RegisterLibFunc(&c_sqlite3_column_int64, handle, "sqlite3_column_int64")
	purego.RegisterLibFunc(&c_sqlite3_column_double, handle, "sqlite3_column_double")
	purego.RegisterLibFunc(&c_sqlite3_column_blob, handle, "sqlite3_column_blob")
	purego.RegisterLibFunc(&c_sqlite3_column_text, handle, "sqlite3_column_text")
	purego.RegisterLibFunc(&c_sqlite3_column_bytes, handle, "sqlite3_column_bytes")
	purego.RegisterLibFunc(&c_sqlite3_column_name, handle, "sqlite3_column_name")
	purego.RegisterLibFunc(&c_sqlite3_column_decltype, handle, "sqlite3_column_decltype")
	purego.RegisterLibFunc(&c_sqlite3_errmsg, handle, "sqlite3_errmsg")
	purego.RegisterLibFunc(&c_sqlite3_errstr, handle, "sqlite3_errstr")
	purego.RegisterLibFunc(&c_sqlite3_extended_errcode, handle, "sqlite3_extended_errcode")
	purego.RegisterLibFunc(&c_sqlite3_libversion, handle, "sqlite3_libversion")
	purego.RegisterLibFunc(&c_sqlite3_threadsafe, handle, "sqlite3_threadsafe")
	return nil
}

// Helpers

// emptyCString backs zero-length text binds: a NULL pointer would bind SQL NULL instead of empty text.
var emptyCString = []byte{0}

func copyCString(p unsafe.Pointer) string {
	if p == nil {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	if n == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(p), n))
}

// copyBytes copies n bytes starting at p into Go memory.
// A nil pointer or non-positive length yields an empty, non-nil slice.
func copyBytes(p unsafe.Pointer, n int) []byte {
	if p == nil || n <= 0 {
		return []byte{}
	}
	out := make([]byte, n)
	copy(out, unsafe.Slice((*byte)(p), n))
	return out
}

// nulTerminated returns b followed by a single NUL byte, ready to pass as const char*.
func nulTerminated(b []byte) []byte {
	out := make([]byte, len(b)+1)
	copy(out, b)
	return out
}

// Go wrappers over imported C bindings

/** Open a database connection
 * A non-nil handle can be returned together with an error code and must still be closed
 */
func sqlite3_open_v2(filename string, flags int32) (Sqlite3, ResultCode) {
	var db Sqlite3
	rc := c_sqlite3_open_v2(filename, unsafe.Pointer(&db), flags, nil)
	return db, ResultCode(rc)
}

/** Close a connection; unfinalized statements turn it into a zombie released on their finalize */
func sqlite3_close_v2(db Sqlite3) ResultCode {
	if db == nil {
		return SQLITE_OK
	}
	return ResultCode(c_sqlite3_close_v2(unsafe.Pointer(db)))
}

func sqlite3_busy_timeout(db Sqlite3, ms int) ResultCode {
	return ResultCode(c_sqlite3_busy_timeout(unsafe.Pointer(db), int32(ms)))
}

/** Run zero or more ;-separated statements without binding and without a row callback */
func sqlite3_exec(db Sqlite3, sql []byte) ResultCode {
	buf := nulTerminated(sql)
	rc := c_sqlite3_exec(unsafe.Pointer(db), unsafe.Pointer(&buf[0]), 0, 0, 0)
	runtime.KeepAlive(buf)
	return ResultCode(rc)
}

func sqlite3_changes(db Sqlite3) int {
	return int(c_sqlite3_changes(unsafe.Pointer(db)))
}

func sqlite3_last_insert_rowid(db Sqlite3) int64 {
	return c_sqlite3_last_insert_rowid(unsafe.Pointer(db))
}

/** Compile the first statement in sql; the tail is dropped
 * Returns a nil statement with SQLITE_OK when sql holds no statement (blank or comment)
 */
func sqlite3_prepare_v3(db Sqlite3, sql []byte) (Sqlite3Stmt, ResultCode) {
	var stmt Sqlite3Stmt
	buf := nulTerminated(sql)
	rc := c_sqlite3_prepare_v3(
		unsafe.Pointer(db),
		unsafe.Pointer(&buf[0]),
		int32(len(buf)),
		0,
		unsafe.Pointer(&stmt),
		nil,
	)
	runtime.KeepAlive(buf)
	return stmt, ResultCode(rc)
}

func sqlite3_bind_parameter_count(stmt Sqlite3Stmt) int {
	return int(c_sqlite3_bind_parameter_count(unsafe.Pointer(stmt)))
}

func sqlite3_reset(stmt Sqlite3Stmt) ResultCode {
	return ResultCode(c_sqlite3_reset(unsafe.Pointer(stmt)))
}

/** Finalize a statement
 * SAFETY: caller must ensure that no other code can concurrently or later use the statement
 */
func sqlite3_finalize(stmt Sqlite3Stmt) ResultCode {
	if stmt == nil {
		return SQLITE_OK
	}
	return ResultCode(c_sqlite3_finalize(unsafe.Pointer(stmt)))
}

/** Bind a positional argument to a statement: NULL */
func sqlite3_bind_null(stmt Sqlite3Stmt, position int) ResultCode {
	return ResultCode(c_sqlite3_bind_null(unsafe.Pointer(stmt), int32(position)))
}

/** Bind a positional argument to a statement: INTEGER */
func sqlite3_bind_int64(stmt Sqlite3Stmt, position int, value int64) ResultCode {
	return ResultCode(c_sqlite3_bind_int64(unsafe.Pointer(stmt), int32(position), value))
}

/** Bind a positional argument to a statement: DOUBLE */
func sqlite3_bind_double(stmt Sqlite3Stmt, position int, value float64) ResultCode {
	return ResultCode(c_sqlite3_bind_double(unsafe.Pointer(stmt), int32(position), value))
}

/** Bind a positional argument to a statement: TEXT
 * The length is the byte length of value; embedded NUL bytes are kept
 */
func sqlite3_bind_text(stmt Sqlite3Stmt, position int, value []byte) ResultCode {
	ptr := unsafe.Pointer(&emptyCString[0])
	if len(value) > 0 {
		ptr = unsafe.Pointer(&value[0])
	}
	rc := c_sqlite3_bind_text64(unsafe.Pointer(stmt), int32(position), ptr, uint64(len(value)), sqliteTransient, sqliteUTF8)
	runtime.KeepAlive(value)
	return ResultCode(rc)
}

/** Bind a positional argument to a statement: BLOB */
func sqlite3_bind_blob(stmt Sqlite3Stmt, position int, value []byte) ResultCode {
	if len(value) == 0 {
		return ResultCode(c_sqlite3_bind_zeroblob(unsafe.Pointer(stmt), int32(position), 0))
	}
	rc := c_sqlite3_bind_blob64(unsafe.Pointer(stmt), int32(position), unsafe.Pointer(&value[0]), uint64(len(value)), sqliteTransient)
	runtime.KeepAlive(value)
	return ResultCode(rc)
}

/** Step statement execution once
 * Returns SQLITE_ROW when a row is available, SQLITE_DONE when execution finished
 */
func sqlite3_step(stmt Sqlite3Stmt) ResultCode {
	return ResultCode(c_sqlite3_step(unsafe.Pointer(stmt)))
}

func sqlite3_column_count(stmt Sqlite3Stmt) int {
	return int(c_sqlite3_column_count(unsafe.Pointer(stmt)))
}

func sqlite3_column_type(stmt Sqlite3Stmt, index int) ColumnType {
	return ColumnType(c_sqlite3_column_type(unsafe.Pointer(stmt), int32(index)))
}

func sqlite3_column_int64(stmt Sqlite3Stmt, index int) int64 {
	return c_sqlite3_column_int64(unsafe.Pointer(stmt), int32(index))
}

func sqlite3_column_double(stmt Sqlite3Stmt, index int) float64 {
	return c_sqlite3_column_double(unsafe.Pointer(stmt), int32(index))
}

/** Return BLOB value as a Go byte slice (copied)
 * The pointer is fetched before the length, as the engine requires
 */
func sqlite3_column_blob(stmt Sqlite3Stmt, index int) []byte {
	ptr := c_sqlite3_column_blob(unsafe.Pointer(stmt), int32(index))
	n := c_sqlite3_column_bytes(unsafe.Pointer(stmt), int32(index))
	return copyBytes(ptr, int(n))
}

/** Return TEXT value as a Go byte slice (copied)
 * Uses the reported byte length, not the NUL terminator
 */
func sqlite3_column_text(stmt Sqlite3Stmt, index int) []byte {
	ptr := c_sqlite3_column_text(unsafe.Pointer(stmt), int32(index))
	n := c_sqlite3_column_bytes(unsafe.Pointer(stmt), int32(index))
	return copyBytes(ptr, int(n))
}

/** Get the column name at the index
 * ok is false when the engine could not allocate the name
 */
func sqlite3_column_name(stmt Sqlite3Stmt, index int) (string, bool) {
	ptr := c_sqlite3_column_name(unsafe.Pointer(stmt), int32(index))
	if ptr == nil {
		return "", false
	}
	return copyCString(ptr), true
}

/** Declared type of the column, empty for expressions */
func sqlite3_column_decltype(stmt Sqlite3Stmt, index int) string {
	return copyCString(c_sqlite3_column_decltype(unsafe.Pointer(stmt), int32(index)))
}

/** Most recent error message of the connection; ok is false when the engine has none */
func sqlite3_errmsg(db Sqlite3) (string, bool) {
	ptr := c_sqlite3_errmsg(unsafe.Pointer(db))
	if ptr == nil {
		return "", false
	}
	return copyCString(ptr), true
}

// sqlite3_errstr returns the English description of any result code.
func sqlite3_errstr(rc ResultCode) string {
	return copyCString(c_sqlite3_errstr(int32(rc)))
}

func sqlite3_extended_errcode(db Sqlite3) ResultCode {
	return ResultCode(c_sqlite3_extended_errcode(unsafe.Pointer(db)))
}

func sqlite3_libversion() string {
	return copyCString(c_sqlite3_libversion())
}

func sqlite3_threadsafe() int {
	return int(c_sqlite3_threadsafe())
}
