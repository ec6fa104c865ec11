package cli

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/elixir-sqlite/exqlite"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	MaxBusyRetries int
	BusyBackoff    time.Duration
}

// QueryOutput is the result of the query command. Cells are rendered for
// display: text as strings, NULL as null and blobs as {"blob": "<hex>"}.
type QueryOutput struct {
	Columns     []string `json:"columns" yaml:"columns"`
	Rows        [][]any  `json:"rows" yaml:"rows"`
	BusyRetries int      `json:"busy_retries" yaml:"busy_retries"`
}

func (q *QueryOutput) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(q.Columns, "\t"))
	for _, row := range q.Rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = textCell(cell)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "(%d rows)\n", len(q.Rows))
	return err
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <database> <sql> [args...]",
		Short: "Prepare, bind and step a single statement",
		Long: `Prepare the first statement of <sql>, bind the positional arguments and
step until done, printing every row.

Arguments are parsed as: null, an integer, a float, blob:<hex> for a blob,
text:<value> to force text, anything else is text.

Example:
  exqlite query ./app.db "SELECT * FROM t WHERE x > ?" 10
  exqlite query ./app.db "INSERT INTO files VALUES (?, ?)" name.bin blob:00ff`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bind := make([]any, 0, len(args)-2)
			for _, raw := range args[2:] {
				v, err := parseArg(raw)
				if err != nil {
					return WrapExitError(ExitCommandError, "parse argument", err)
				}
				bind = append(bind, v)
			}
			res, err := runQuery(cmd.Context(), opts, args[0], args[1], bind)
			if err != nil {
				return err
			}
			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return out.Render(res)
		},
	}

	cmd.Flags().IntVar(&opts.MaxBusyRetries, "max-busy-retries", 50, "give up after this many busy steps in a row")
	cmd.Flags().DurationVar(&opts.BusyBackoff, "busy-backoff", 10*time.Millisecond, "wait between busy steps")

	return cmd
}

func runQuery(ctx context.Context, opts *QueryOptions, filename, sql string, args []any) (*QueryOutput, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	conn, err := exqlite.Open(filename)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open "+filename, err)
	}
	defer conn.Close()

	stmt, err := conn.Prepare(sql)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "prepare", err)
	}
	defer stmt.Finalize()

	if err := conn.Bind(stmt, args); err != nil {
		return nil, WrapExitError(ExitFailure, "bind", err)
	}
	columns, err := conn.Columns(stmt)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "columns", err)
	}

	out := &QueryOutput{Columns: columns, Rows: [][]any{}}
	busy := 0
	for {
		res, err := conn.Step(stmt)
		if err != nil {
			return nil, WrapExitError(ExitFailure, "step", err)
		}
		switch res.Kind {
		case exqlite.StepDone:
			return out, nil
		case exqlite.StepBusy:
			busy++
			out.BusyRetries++
			if busy > opts.MaxBusyRetries {
				return nil, NewExitError(ExitFailure, fmt.Sprintf("database is busy after %d retries", opts.MaxBusyRetries))
			}
			if opts.Logger != nil {
				opts.Logger.Debug("busy, retrying", zap.Int("attempt", busy))
			}
			select {
			case <-ctx.Done():
				return nil, WrapExitError(ExitFailure, "step", ctx.Err())
			case <-time.After(opts.BusyBackoff):
			}
		case exqlite.StepRow:
			busy = 0
			out.Rows = append(out.Rows, displayRow(res.Row))
		}
	}
}

// parseArg turns a command-line argument into a bind value.
func parseArg(raw string) (any, error) {
	switch {
	case raw == "null":
		return nil, nil
	case strings.HasPrefix(raw, "blob:"):
		b, err := hex.DecodeString(strings.TrimPrefix(raw, "blob:"))
		if err != nil {
			return nil, fmt.Errorf("invalid blob %q: %w", raw, err)
		}
		return exqlite.Blob(b), nil
	case strings.HasPrefix(raw, "text:"):
		return strings.TrimPrefix(raw, "text:"), nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f, nil
	}
	return raw, nil
}

func displayRow(row exqlite.Row) []any {
	cells := make([]any, len(row))
	for i, cell := range row {
		cells[i] = displayCell(cell)
	}
	return cells
}

func displayCell(cell any) any {
	switch x := cell.(type) {
	case exqlite.Blob:
		return map[string]string{"blob": hex.EncodeToString(x)}
	case []byte:
		return string(x)
	case exqlite.Atom:
		if x == exqlite.Nil {
			return nil
		}
		return string(x)
	default:
		return x
	}
}

func textCell(cell any) string {
	switch x := cell.(type) {
	case nil:
		return "NULL"
	case map[string]string:
		return "x'" + x["blob"] + "'"
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
