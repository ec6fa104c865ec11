package exqlite

import (
	"runtime"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Conn is an open database connection. A Conn whose native handle has been
// released reports connection_closed from every operation except Close.
type Conn struct {
	id uuid.UUID
	// mu excludes release from in-flight calls; calls only take the read side.
	mu sync.RWMutex
	db Sqlite3
}

// StmtState tracks where a statement is in its prepare/bind/step cycle.
type StmtState int32

const (
	StmtPrepared StmtState = iota
	StmtBound
	StmtStepping
	StmtDone
	StmtError
)

func (s StmtState) String() string {
	switch s {
	case StmtPrepared:
		return "prepared"
	case StmtBound:
		return "bound"
	case StmtStepping:
		return "stepping"
	case StmtDone:
		return "done"
	case StmtError:
		return "error"
	default:
		return "unknown"
	}
}

// Stmt is a prepared statement.
//
// A Stmt keeps its creating Conn reachable so the connection is never
// collected while the statement still holds a native handle. It does not own
// the connection: closing the Conn is still up to the caller.
type Stmt struct {
	id   uuid.UUID
	conn *Conn
	mu   sync.RWMutex

	handle Sqlite3Stmt
	// empty statements come from SQL without any statement in it; they have no native handle.
	empty     bool
	finalized bool
	params    int

	stateMu sync.Mutex
	state   StmtState
}

// ID returns the identifier used in log fields for this connection.
func (c *Conn) ID() uuid.UUID { return c.id }

// ID returns the identifier used in log fields for this statement.
func (s *Stmt) ID() uuid.UUID { return s.id }

func newConn(db Sqlite3) *Conn {
	c := &Conn{id: uuid.New(), db: db}
	runtime.SetFinalizer(c, (*Conn).finalize)
	return c
}

func newStmt(conn *Conn, handle Sqlite3Stmt) *Stmt {
	s := &Stmt{id: uuid.New(), conn: conn, handle: handle, empty: handle == nil}
	if handle != nil {
		s.params = sqlite3_bind_parameter_count(handle)
		runtime.SetFinalizer(s, (*Stmt).finalize)
	}
	return s
}

// acquire takes the read side of the release guard and reports the native
// handle; the caller must call c.mu.RUnlock when done.
func (c *Conn) acquire() (Sqlite3, error) {
	c.mu.RLock()
	if c.db == nil {
		c.mu.RUnlock()
		return nil, newError(KindConnectionClosed)
	}
	return c.db, nil
}

func (c *Conn) release() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return false
	}
	if rc := sqlite3_close_v2(c.db); rc != SQLITE_OK {
		Logger().Warn("close connection", zap.Stringer("conn", c.id), zap.Stringer("rc", rc))
	}
	c.db = nil
	return true
}

func (c *Conn) finalize() {
	if c.release() {
		Logger().Debug("connection released by finalizer", zap.Stringer("conn", c.id))
	}
}

func (s *Stmt) acquire() (Sqlite3Stmt, error) {
	s.mu.RLock()
	if s.finalized {
		s.mu.RUnlock()
		return nil, newError(KindStatementFinalized)
	}
	return s.handle, nil
}

func (s *Stmt) release() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return false
	}
	s.finalized = true
	if s.handle != nil {
		// the return value repeats the last step error, not a finalize failure
		sqlite3_finalize(s.handle)
		s.handle = nil
	}
	return true
}

func (s *Stmt) finalize() {
	if s.release() {
		Logger().Debug("statement released by finalizer", zap.Stringer("stmt", s.id))
	}
}

func (s *Stmt) setState(state StmtState) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
}

// State reports the statement's position in its lifecycle.
func (s *Stmt) State() StmtState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// connArg extracts a connection from a host value.
func connArg(v any) (*Conn, error) {
	c, ok := v.(*Conn)
	if !ok || c == nil {
		return nil, newError(KindInvalidConnection)
	}
	return c, nil
}

// stmtArg extracts a statement from a host value.
func stmtArg(v any) (*Stmt, error) {
	s, ok := v.(*Stmt)
	if !ok || s == nil {
		return nil, newError(KindInvalidStatement)
	}
	return s, nil
}
