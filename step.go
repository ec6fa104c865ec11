package exqlite

// StepKind is the outcome of a single step.
type StepKind int

const (
	StepRow StepKind = iota + 1
	StepDone
	StepBusy
)

func (k StepKind) String() string {
	switch k {
	case StepRow:
		return "row"
	case StepDone:
		return "done"
	case StepBusy:
		return "busy"
	default:
		return "invalid"
	}
}

// StepResult carries the outcome of Step; Row is set only for StepRow.
type StepResult struct {
	Kind StepKind
	Row  Row
}

// Term renders the result as {row, cells}, done or busy.
func (r StepResult) Term() any {
	switch r.Kind {
	case StepRow:
		return Tuple{RowTag, r.Row.Term()}
	case StepDone:
		return Done
	default:
		return Busy
	}
}

// Step advances stmt by exactly one row. Done is returned again on every
// further step until the statement is rebound. Busy is returned as is and
// never retried here; waiting and retrying is up to the caller. Other engine
// failures carry the message of c.
func (c *Conn) Step(stmt *Stmt) (StepResult, error) {
	db, err := c.acquire()
	if err != nil {
		return StepResult{}, err
	}
	defer c.mu.RUnlock()
	handle, err := stmt.acquire()
	if err != nil {
		return StepResult{}, err
	}
	defer stmt.mu.RUnlock()

	// the engine would restart a finished statement on the next step
	if stmt.empty || stmt.State() == StmtDone {
		stmt.setState(StmtDone)
		return StepResult{Kind: StepDone}, nil
	}

	rc := sqlite3_step(handle)
	switch rc.Primary() {
	case SQLITE_ROW:
		stmt.setState(StmtStepping)
		n := sqlite3_column_count(handle)
		return StepResult{Kind: StepRow, Row: decodeRow(stmtColumns{stmt: handle}, n)}, nil
	case SQLITE_DONE:
		stmt.setState(StmtDone)
		return StepResult{Kind: StepDone}, nil
	case SQLITE_BUSY:
		return StepResult{Kind: StepBusy}, nil
	default:
		stmt.setState(StmtError)
		return StepResult{}, translateError(rc, db)
	}
}
