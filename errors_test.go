package exqlite

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorIsComparesKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &Error{Kind: KindSQLite, Code: SQLITE_ERROR, Message: "no such table: t"})
	require.ErrorIs(t, err, ErrSQLite)
	require.False(t, errors.Is(err, ErrInvalidConnection))

	var e *Error
	require.True(t, errors.As(err, &e))
	require.Equal(t, "no such table: t", e.Message)
}

func TestErrorTerm(t *testing.T) {
	require.Equal(t, Tuple{ErrorTag, Atom("invalid_filename")}, newError(KindInvalidFilename).Term())
	require.Equal(t, Tuple{ErrorTag, []byte("boom")}, (&Error{Kind: KindSQLite, Message: "boom"}).Term())
	require.Equal(t, Tuple{ErrorTag, Tuple{Atom("wrong_type"), 3.5i}}, wrongType(3.5i).Term())
}

func TestErrorMessage(t *testing.T) {
	require.Equal(t, "exqlite: arguments_wrong_length", newError(KindArgumentsLength).Error())
	require.Equal(t,
		"exqlite: sqlite (SQLITE_CONSTRAINT): UNIQUE constraint failed: t.id",
		(&Error{Kind: KindSQLite, Code: SQLITE_CONSTRAINT, Message: "UNIQUE constraint failed: t.id"}).Error())
	require.Contains(t, wrongType(map[string]int{}).Error(), "wrong_type")
}

func TestTranslateMisuseUsesFixedMessage(t *testing.T) {
	// misuse never touches the connection, so a nil handle is fine here
	err := translateError(SQLITE_MISUSE, nil)
	require.Equal(t, misuseMessage, err.Message)
	require.Equal(t, SQLITE_MISUSE, err.Code)

	err = translateError(SQLITE_ERROR, nil)
	require.Equal(t, noMessageMessage, err.Message)
}

func TestResultCodeNames(t *testing.T) {
	require.Equal(t, "SQLITE_BUSY", SQLITE_BUSY.String())
	require.Equal(t, "SQLITE_IOERR", ResultCode(10|(1<<8)).String())
	require.Equal(t, SQLITE_IOERR, ResultCode(10|(1<<8)).Primary())
	require.Equal(t, "SQLITE_UNKNOWN(99)", ResultCode(99).String())
	require.Equal(t, "SQLITE_BLOB", SQLITE_BLOB.String())
}
