package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/elixir-sqlite/exqlite"
)

// ExecResult is the outcome of the exec command.
type ExecResult struct {
	Changes         int   `json:"changes" yaml:"changes"`
	LastInsertRowID int64 `json:"last_insert_rowid" yaml:"last_insert_rowid"`
}

func (r ExecResult) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "changes: %d\nlast insert rowid: %d\n", r.Changes, r.LastInsertRowID)
	return err
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <database> <sql>",
		Short: "Execute SQL without reading rows",
		Long: `Execute one or more ;-separated statements as a single batch, without
parameter binding, and report the change count and last insert rowid.

Example:
  exqlite exec ./app.db "CREATE TABLE t (x); INSERT INTO t VALUES (1)"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := runExec(rootOpts, args[0], args[1])
			if err != nil {
				return err
			}
			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return out.Render(res)
		},
	}
}

func runExec(opts *RootOptions, filename, sql string) (*ExecResult, error) {
	conn, err := exqlite.Open(filename)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open "+filename, err)
	}
	defer conn.Close()

	if err := conn.Execute(sql); err != nil {
		return nil, WrapExitError(ExitFailure, "execute", err)
	}
	changes, err := conn.Changes()
	if err != nil {
		return nil, WrapExitError(ExitFailure, "changes", err)
	}
	rowid, err := conn.LastInsertRowID()
	if err != nil {
		return nil, WrapExitError(ExitFailure, "last insert rowid", err)
	}
	if opts.Logger != nil {
		opts.Logger.Debug("executed", zap.Stringer("conn", conn.ID()), zap.Int("changes", changes))
	}
	return &ExecResult{Changes: changes, LastInsertRowID: rowid}, nil
}
