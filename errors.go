package exqlite

import (
	"fmt"
	"strings"
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidConnection  Kind = "invalid_connection"
	KindInvalidStatement   Kind = "invalid_statement"
	KindConnectionClosed   Kind = "connection_closed"
	KindStatementFinalized Kind = "statement_finalized"
	KindInvalidFilename    Kind = "invalid_filename"
	KindDatabaseOpenFailed Kind = "database_open_failed"
	KindOutOfMemory        Kind = "out_of_memory"
	KindSQLNotIOList       Kind = "sql_not_iolist"
	KindArgumentsLength    Kind = "arguments_wrong_length"
	KindBadArgumentList    Kind = "bad_argument_list"
	KindWrongType          Kind = "wrong_type"
	KindInvalidColumnCount Kind = "invalid_column_count"
	KindLibraryUnavailable Kind = "library_unavailable"
	KindBadArg             Kind = "badarg"
	// KindSQLite is an engine failure; Message holds the engine's text.
	KindSQLite Kind = "sqlite"
)

const (
	misuseMessage    = "Sqlite3 was invoked incorrectly."
	noMessageMessage = "No error message available."
)

// Error is the structured error returned by every operation in this package.
type Error struct {
	Kind Kind
	// Code and ExtendedCode are set for engine failures only.
	Code         ResultCode
	ExtendedCode ResultCode
	Message      string
	// Value is the offending host value of a wrong_type error.
	Value any
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("exqlite: ")
	b.WriteString(string(e.Kind))
	if e.Kind == KindSQLite {
		b.WriteString(" (")
		b.WriteString(e.Code.String())
		b.WriteByte(')')
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Kind == KindWrongType {
		fmt.Fprintf(&b, ": %#v", e.Value)
	}
	return b.String()
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Term renders the error in its host shape: {error, Kind} for locally detected
// failures, {error, Message} for engine failures and {error, {wrong_type, Value}}.
func (e *Error) Term() Tuple {
	switch e.Kind {
	case KindSQLite:
		return Tuple{ErrorTag, []byte(e.Message)}
	case KindWrongType:
		return Tuple{ErrorTag, Tuple{Atom(KindWrongType), e.Value}}
	default:
		return Tuple{ErrorTag, Atom(e.Kind)}
	}
}

var (
	ErrInvalidConnection  = &Error{Kind: KindInvalidConnection}
	ErrInvalidStatement   = &Error{Kind: KindInvalidStatement}
	ErrConnectionClosed   = &Error{Kind: KindConnectionClosed}
	ErrStatementFinalized = &Error{Kind: KindStatementFinalized}
	ErrInvalidFilename    = &Error{Kind: KindInvalidFilename}
	ErrDatabaseOpenFailed = &Error{Kind: KindDatabaseOpenFailed}
	ErrOutOfMemory        = &Error{Kind: KindOutOfMemory}
	ErrSQLNotIOList       = &Error{Kind: KindSQLNotIOList}
	ErrArgumentsLength    = &Error{Kind: KindArgumentsLength}
	ErrBadArgumentList    = &Error{Kind: KindBadArgumentList}
	ErrWrongType          = &Error{Kind: KindWrongType}
	ErrInvalidColumnCount = &Error{Kind: KindInvalidColumnCount}
	ErrLibraryUnavailable = &Error{Kind: KindLibraryUnavailable}
	ErrBadArg             = &Error{Kind: KindBadArg}
	ErrSQLite             = &Error{Kind: KindSQLite}
)

func newError(kind Kind) *Error {
	return &Error{Kind: kind}
}

func wrongType(v any) *Error {
	return &Error{Kind: KindWrongType, Value: v}
}

// translateError converts a failing engine result code into an *Error using the
// last message recorded on db. ROW, DONE and BUSY never reach this function.
func translateError(rc ResultCode, db Sqlite3) *Error {
	e := &Error{Kind: KindSQLite, Code: rc.Primary(), ExtendedCode: rc}
	if rc.Primary() == SQLITE_MISUSE {
		e.Message = misuseMessage
		return e
	}
	if db == nil {
		e.Message = noMessageMessage
		return e
	}
	if ext := sqlite3_extended_errcode(db); ext.Primary() == rc.Primary() {
		e.ExtendedCode = ext
	}
	msg, ok := sqlite3_errmsg(db)
	if !ok || msg == "" {
		msg = describeCode(rc)
	}
	e.Message = msg
	return e
}

// describeCode is the engine's generic text for rc, used when the connection
// has no message of its own.
func describeCode(rc ResultCode) string {
	if msg := sqlite3_errstr(rc); msg != "" {
		return msg
	}
	return noMessageMessage
}
