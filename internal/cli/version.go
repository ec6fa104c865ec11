package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/elixir-sqlite/exqlite"
)

// VersionInfo reports the loaded sqlite3 library.
type VersionInfo struct {
	SQLiteVersion string `json:"sqlite_version" yaml:"sqlite_version"`
	LibraryPath   string `json:"library_path" yaml:"library_path"`
}

func (v *VersionInfo) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "sqlite %s (%s)\n", v.SQLiteVersion, v.LibraryPath)
	return err
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of the loaded sqlite3 library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := exqlite.LibVersion()
			if err != nil {
				return WrapExitError(ExitCommandError, "load sqlite3", err)
			}
			info := &VersionInfo{SQLiteVersion: version, LibraryPath: exqlite.LibPath()}
			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return out.Render(info)
		},
	}
}
