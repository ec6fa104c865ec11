package exqlite

import (
	"sort"
)

// Function describes one entry of the host function table.
type Function struct {
	Name  string
	Arity int
}

type nifFunc struct {
	arity int
	call  func(args []any) any
}

var nifFuncs = map[string]nifFunc{
	"open":              {1, nifOpen},
	"close":             {1, nifClose},
	"execute":           {2, nifExecute},
	"changes":           {1, nifChanges},
	"prepare":           {2, nifPrepare},
	"bind":              {3, nifBind},
	"step":              {2, nifStep},
	"columns":           {2, nifColumns},
	"last_insert_rowid": {1, nifLastInsertRowID},
}

// Functions lists the host function table sorted by name.
func Functions() []Function {
	fns := make([]Function, 0, len(nifFuncs))
	for name, f := range nifFuncs {
		fns = append(fns, Function{Name: name, Arity: f.arity})
	}
	sort.Slice(fns, func(i, j int) bool { return fns[i].Name < fns[j].Name })
	return fns
}

// Call dispatches a host call by name and returns its result as a term:
// ok, {ok, Value}, {row, Cells}, done, busy or {error, Reason}. An unknown
// name or a wrong number of arguments yields {error, badarg}.
func Call(name string, args ...any) any {
	f, ok := nifFuncs[name]
	if !ok || len(args) != f.arity {
		return ErrBadArg.Term()
	}
	return f.call(args)
}

func errorTerm(err error) any {
	if e, ok := err.(*Error); ok {
		return e.Term()
	}
	return Tuple{ErrorTag, []byte(err.Error())}
}

func nifOpen(args []any) any {
	var filename string
	switch x := args[0].(type) {
	case string:
		filename = x
	case []byte:
		filename = string(x)
	default:
		return newError(KindInvalidFilename).Term()
	}
	c, err := Open(filename)
	if err != nil {
		return errorTerm(err)
	}
	return Tuple{OK, c}
}

func nifClose(args []any) any {
	c, err := connArg(args[0])
	if err != nil {
		return errorTerm(err)
	}
	_ = c.Close()
	return OK
}

func nifExecute(args []any) any {
	c, err := connArg(args[0])
	if err != nil {
		return errorTerm(err)
	}
	if err := c.Execute(args[1]); err != nil {
		return errorTerm(err)
	}
	return OK
}

func nifChanges(args []any) any {
	c, err := connArg(args[0])
	if err != nil {
		return errorTerm(err)
	}
	n, err := c.Changes()
	if err != nil {
		return errorTerm(err)
	}
	return Tuple{OK, n}
}

func nifPrepare(args []any) any {
	c, err := connArg(args[0])
	if err != nil {
		return errorTerm(err)
	}
	s, err := c.Prepare(args[1])
	if err != nil {
		return errorTerm(err)
	}
	return Tuple{OK, s}
}

func nifBind(args []any) any {
	c, err := connArg(args[0])
	if err != nil {
		return errorTerm(err)
	}
	s, err := stmtArg(args[1])
	if err != nil {
		return errorTerm(err)
	}
	var list []any
	switch x := args[2].(type) {
	case []any:
		list = x
	case Row:
		list = x
	default:
		return newError(KindBadArgumentList).Term()
	}
	if err := c.Bind(s, list); err != nil {
		return errorTerm(err)
	}
	return OK
}

func nifStep(args []any) any {
	c, err := connArg(args[0])
	if err != nil {
		return errorTerm(err)
	}
	s, err := stmtArg(args[1])
	if err != nil {
		return errorTerm(err)
	}
	res, err := c.Step(s)
	if err != nil {
		return errorTerm(err)
	}
	return res.Term()
}

func nifColumns(args []any) any {
	c, err := connArg(args[0])
	if err != nil {
		return errorTerm(err)
	}
	s, err := stmtArg(args[1])
	if err != nil {
		return errorTerm(err)
	}
	names, err := c.Columns(s)
	if err != nil {
		return errorTerm(err)
	}
	out := make([]any, len(names))
	for i, name := range names {
		out[i] = []byte(name)
	}
	return Tuple{OK, out}
}

func nifLastInsertRowID(args []any) any {
	c, err := connArg(args[0])
	if err != nil {
		return errorTerm(err)
	}
	id, err := c.LastInsertRowID()
	if err != nil {
		return errorTerm(err)
	}
	return Tuple{OK, id}
}
