package exqlite

import (
	"go.uber.org/zap"
)

// Prepare compiles the first statement in sql. Any text after it is ignored.
// SQL holding no statement at all, such as whitespace or a comment, yields an
// empty statement that has no parameters and no columns and steps straight to done.
func (c *Conn) Prepare(sql any) (*Stmt, error) {
	query, err := sqlBytes(sql)
	if err != nil {
		return nil, err
	}
	db, err := c.acquire()
	if err != nil {
		return nil, err
	}
	defer c.mu.RUnlock()

	handle, rc := sqlite3_prepare_v3(db, query)
	if rc != SQLITE_OK {
		sqlite3_finalize(handle)
		return nil, translateError(rc, db)
	}
	s := newStmt(c, handle)
	Logger().Debug("statement prepared",
		zap.Stringer("conn", c.id),
		zap.Stringer("stmt", s.id),
		zap.Int("params", s.params),
		zap.Bool("empty", s.empty))
	return s, nil
}

// ParamCount returns the number of parameters the statement declares.
func (s *Stmt) ParamCount() int {
	return s.params
}

// Finalize releases the native statement. It is safe to call more than once.
func (s *Stmt) Finalize() error {
	if s.release() {
		Logger().Debug("statement finalized", zap.Stringer("stmt", s.id))
	}
	return nil
}

// Bind resets stmt and binds args to its parameters in order. The number of
// arguments must equal the declared parameter count. Binding stops at the
// first argument that cannot be converted or that the engine rejects.
func (c *Conn) Bind(stmt *Stmt, args []any) error {
	db, err := c.acquire()
	if err != nil {
		return err
	}
	defer c.mu.RUnlock()
	handle, err := stmt.acquire()
	if err != nil {
		return err
	}
	defer stmt.mu.RUnlock()

	if len(args) != stmt.params {
		return newError(KindArgumentsLength)
	}
	if stmt.empty {
		stmt.setState(StmtBound)
		return nil
	}

	// the result repeats the previous step's outcome, which is no concern of the new binding
	sqlite3_reset(handle)

	for i, arg := range args {
		v, ok := encodeArg(arg)
		if !ok {
			stmt.setState(StmtError)
			return wrongType(arg)
		}
		if rc := bindValue(handle, i+1, v); rc != SQLITE_OK {
			stmt.setState(StmtError)
			return translateError(rc, db)
		}
	}
	stmt.setState(StmtBound)
	return nil
}

// Columns returns the result column names of stmt, empty for statements
// that produce no rows.
func (c *Conn) Columns(stmt *Stmt) ([]string, error) {
	_, err := c.acquire()
	if err != nil {
		return nil, err
	}
	defer c.mu.RUnlock()
	handle, err := stmt.acquire()
	if err != nil {
		return nil, err
	}
	defer stmt.mu.RUnlock()

	if stmt.empty {
		return []string{}, nil
	}
	n := sqlite3_column_count(handle)
	if n < 0 {
		return nil, newError(KindInvalidColumnCount)
	}
	names := make([]string, n)
	for i := range names {
		name, ok := sqlite3_column_name(handle, i)
		if !ok {
			return nil, newError(KindOutOfMemory)
		}
		names[i] = name
	}
	return names, nil
}

// declTypes returns the declared column types, "" where a column has none.
func (s *Stmt) declTypes() ([]string, error) {
	handle, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()
	if s.empty {
		return []string{}, nil
	}
	types := make([]string, sqlite3_column_count(handle))
	for i := range types {
		types[i] = sqlite3_column_decltype(handle, i)
	}
	return types, nil
}
