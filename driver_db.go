package exqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// DriverName is the name the driver registers with database/sql.
const DriverName = "exqlite"

// DefaultBusyRetryInterval is how long the driver waits before stepping again after busy.
const DefaultBusyRetryInterval = 10 * time.Millisecond

// Errors returned by the database/sql layer; engine failures surface as *Error.
var (
	ErrDriverStmtClosed = errors.New("exqlite: statement closed")
	ErrDriverConnClosed = errors.New("exqlite: connection closed")
	ErrDriverTxDone     = errors.New("exqlite: transaction done")
	ErrNamedArgs        = errors.New("exqlite: named arguments are not supported")
)

type exqliteDriver struct{}

type exqliteDbConnection struct {
	conn      *Conn
	busyRetry time.Duration

	mu     sync.Mutex
	closed bool
}

type exqliteDbStatement struct {
	conn      *exqliteDbConnection
	sql       string
	numInputs int
	closed    bool
}

type exqliteDbRows struct {
	ctx       context.Context
	conn      *exqliteDbConnection
	stmt      *Stmt
	columns   []string
	decltypes []string

	closed bool
}

type exqliteDbResult struct {
	lastInsertId int64
	rowsAffected int64
}

type exqliteDbTx struct {
	conn *exqliteDbConnection
	done bool
}

func init() {
	sql.Register(DriverName, &exqliteDriver{})
}

// Open opens the database file named by dsn.
func (d *exqliteDriver) Open(dsn string) (driver.Conn, error) {
	return openDbConnection(dsn, DefaultBusyRetryInterval)
}

func openDbConnection(dsn string, busyRetry time.Duration) (*exqliteDbConnection, error) {
	conn, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	return &exqliteDbConnection{conn: conn, busyRetry: busyRetry}, nil
}

var (
	_ driver.Conn               = (*exqliteDbConnection)(nil)
	_ driver.ConnPrepareContext = (*exqliteDbConnection)(nil)
	_ driver.ExecerContext      = (*exqliteDbConnection)(nil)
	_ driver.QueryerContext     = (*exqliteDbConnection)(nil)
	_ driver.Pinger             = (*exqliteDbConnection)(nil)
	_ driver.ConnBeginTx        = (*exqliteDbConnection)(nil)
)

func (c *exqliteDbConnection) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *exqliteDbConnection) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	stmt, err := c.conn.Prepare(query)
	if err != nil {
		return nil, err
	}
	// Exec and Query prepare their own statement.
	num := stmt.ParamCount()
	_ = stmt.Finalize()

	return &exqliteDbStatement{
		conn:      c,
		sql:       query,
		numInputs: num,
	}, nil
}

func (c *exqliteDbConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func (c *exqliteDbConnection) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *exqliteDbConnection) BeginTx(ctx context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if _, err := c.ExecContext(ctx, "BEGIN", nil); err != nil {
		return nil, err
	}
	return &exqliteDbTx{conn: c}, nil
}

func (c *exqliteDbConnection) Ping(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return c.conn.Execute("SELECT 1")
}

func (c *exqliteDbConnection) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	// Without arguments the whole batch runs through exec.
	if len(args) == 0 {
		if err := c.conn.Execute(query); err != nil {
			return nil, err
		}
		return c.result()
	}

	stmt, err := c.conn.Prepare(query)
	if err != nil {
		return nil, err
	}
	defer stmt.Finalize()
	if err := c.bindArgs(stmt, args); err != nil {
		return nil, err
	}
	if err := c.executeFully(ctx, stmt); err != nil {
		return nil, err
	}
	return c.result()
}

func (c *exqliteDbConnection) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	stmt, err := c.conn.Prepare(query)
	if err != nil {
		return nil, err
	}
	if err := c.bindArgs(stmt, args); err != nil {
		_ = stmt.Finalize()
		return nil, err
	}
	return &exqliteDbRows{
		ctx:  ctx,
		conn: c,
		stmt: stmt,
	}, nil
}

func (c *exqliteDbConnection) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conn.Closed() {
		return ErrDriverConnClosed
	}
	return nil
}

func (c *exqliteDbConnection) result() (driver.Result, error) {
	changes, err := c.conn.Changes()
	if err != nil {
		return nil, err
	}
	lastInsert, err := c.conn.LastInsertRowID()
	if err != nil {
		return nil, err
	}
	return &exqliteDbResult{lastInsertId: lastInsert, rowsAffected: int64(changes)}, nil
}

// step advances stmt once, waiting out busy signals until ctx ends.
func (c *exqliteDbConnection) step(ctx context.Context, stmt *Stmt) (StepResult, error) {
	for {
		if ctx.Err() != nil {
			return StepResult{}, ctx.Err()
		}
		res, err := c.conn.Step(stmt)
		if err != nil || res.Kind != StepBusy {
			return res, err
		}
		timer := time.NewTimer(c.busyRetry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return StepResult{}, ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *exqliteDbConnection) executeFully(ctx context.Context, stmt *Stmt) error {
	for {
		res, err := c.step(ctx, stmt)
		if err != nil {
			return err
		}
		if res.Kind == StepDone {
			return nil
		}
	}
}

// bindArgs binds ordered values to a statement. Named values are rejected.
func (c *exqliteDbConnection) bindArgs(stmt *Stmt, args []driver.NamedValue) error {
	values := make([]any, len(args))
	for i, nv := range args {
		if nv.Name != "" {
			return ErrNamedArgs
		}
		pos := i
		if nv.Ordinal > 0 {
			pos = nv.Ordinal - 1
		}
		if pos >= len(values) {
			return fmt.Errorf("exqlite: ordinal %d out of range", nv.Ordinal)
		}
		values[pos] = driverValue(nv.Value)
	}
	return c.conn.Bind(stmt, values)
}

// driverValue maps database/sql values onto bind arguments: []byte binds as a
// blob and time.Time as RFC3339Nano text.
func driverValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return Blob(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return v
	}
}

// ConnectorOption configures a Connector.
type ConnectorOption func(*Connector)

// WithBusyRetryInterval sets how long the driver sleeps between steps that report busy.
func WithBusyRetryInterval(d time.Duration) ConnectorOption {
	return func(c *Connector) {
		c.busyRetry = d
	}
}

// Connector implements driver.Connector for programmatic configuration.
type Connector struct {
	dsn       string
	busyRetry time.Duration
}

// NewConnector creates a Connector for the database file named by dsn.
func NewConnector(dsn string, opts ...ConnectorOption) *Connector {
	c := &Connector{dsn: dsn, busyRetry: DefaultBusyRetryInterval}
	for _, opt := range opts {
		opt(c)
	}
	if c.busyRetry <= 0 {
		c.busyRetry = DefaultBusyRetryInterval
	}
	return c
}

// Connect implements driver.Connector.
func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return openDbConnection(c.dsn, c.busyRetry)
}

// Driver implements driver.Connector.
func (c *Connector) Driver() driver.Driver {
	return &exqliteDriver{}
}

var _ driver.Connector = (*Connector)(nil)

var (
	_ driver.Stmt             = (*exqliteDbStatement)(nil)
	_ driver.StmtExecContext  = (*exqliteDbStatement)(nil)
	_ driver.StmtQueryContext = (*exqliteDbStatement)(nil)
)

func (s *exqliteDbStatement) Close() error {
	s.closed = true
	return nil
}

func (s *exqliteDbStatement) NumInput() int {
	return s.numInputs
}

func (s *exqliteDbStatement) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), namedValues(args))
}

func (s *exqliteDbStatement) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	if s.closed {
		return nil, ErrDriverStmtClosed
	}
	return s.conn.ExecContext(ctx, s.sql, args)
}

func (s *exqliteDbStatement) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), namedValues(args))
}

func (s *exqliteDbStatement) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	if s.closed {
		return nil, ErrDriverStmtClosed
	}
	return s.conn.QueryContext(ctx, s.sql, args)
}

func namedValues(args []driver.Value) []driver.NamedValue {
	named := make([]driver.NamedValue, len(args))
	for i, v := range args {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return named
}

var _ driver.Rows = (*exqliteDbRows)(nil)

func (r *exqliteDbRows) Columns() []string {
	if r.columns != nil {
		return r.columns
	}
	names, err := r.conn.conn.Columns(r.stmt)
	if err != nil {
		return []string{}
	}
	decltypes, err := r.stmt.declTypes()
	if err != nil {
		decltypes = nil
	}
	r.columns = names
	r.decltypes = decltypes
	return r.columns
}

func (r *exqliteDbRows) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.stmt.Finalize()
}

func (r *exqliteDbRows) Next(dest []driver.Value) error {
	if r.closed {
		return io.EOF
	}
	_ = r.Columns()
	res, err := r.conn.step(r.ctx, r.stmt)
	if err != nil {
		return err
	}
	if res.Kind == StepDone {
		return io.EOF
	}
	if len(dest) != len(res.Row) {
		return fmt.Errorf("exqlite: expected %d dests, got %d", len(res.Row), len(dest))
	}
	for i, cell := range res.Row {
		switch x := cell.(type) {
		case Blob:
			dest[i] = []byte(x)
		case []byte:
			text := string(x)
			if i < len(r.decltypes) && isTimeColumn(r.decltypes[i]) {
				if t, err := parseTimeString(text); err == nil {
					dest[i] = t
					continue
				}
			}
			dest[i] = text
		case Atom:
			dest[i] = nil
		default:
			dest[i] = x
		}
	}
	return nil
}

var _ driver.Result = (*exqliteDbResult)(nil)

func (r *exqliteDbResult) LastInsertId() (int64, error) {
	return r.lastInsertId, nil
}

func (r *exqliteDbResult) RowsAffected() (int64, error) {
	return r.rowsAffected, nil
}

var _ driver.Tx = (*exqliteDbTx)(nil)

func (tx *exqliteDbTx) Commit() error {
	if tx.done {
		return ErrDriverTxDone
	}
	_, err := tx.conn.ExecContext(context.Background(), "COMMIT", nil)
	tx.done = true
	return err
}

func (tx *exqliteDbTx) Rollback() error {
	if tx.done {
		return ErrDriverTxDone
	}
	_, err := tx.conn.ExecContext(context.Background(), "ROLLBACK", nil)
	tx.done = true
	return err
}

// isTimeColumn reports whether a declared column type holds timestamps.
func isTimeColumn(decltype string) bool {
	if decltype == "" {
		return false
	}
	upper := strings.ToUpper(decltype)
	return upper == "TIMESTAMP" || upper == "DATETIME" || upper == "DATE"
}

// SQLiteTimestampFormats are the timestamp formats accepted for time columns.
var SQLiteTimestampFormats = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseTimeString parses text from a time column, in UTC.
func parseTimeString(s string) (time.Time, error) {
	s = strings.TrimSuffix(s, "Z")
	for _, format := range SQLiteTimestampFormats {
		if t, err := time.ParseInLocation(format, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as time", s)
}
