package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRootCommandLayout(t *testing.T) {
	cmd := NewRootCommand()

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"exec", "query", "stress", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
	for _, flag := range []string{"verbose", "format", "lib"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "missing flag %s", flag)
	}
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "xml", "version"})
	cmd.SetOut(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	require.Equal(t, ExitCommandError, GetExitCode(err))
	require.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestVersionJSON(t *testing.T) {
	requireLib(t)
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "json", "version"})
	cmd.SetOut(&out)
	require.NoError(t, cmd.Execute())

	var info VersionInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	require.NotEmpty(t, info.SQLiteVersion)
	require.NotEmpty(t, info.LibraryPath)
}

func TestStressRun(t *testing.T) {
	if testing.Short() {
		t.Skip("stress run in short mode")
	}
	requireLib(t)

	opts := &StressOptions{
		RootOptions:        &RootOptions{Format: "text", Logger: zaptest.NewLogger(t)},
		Workers:            3,
		Duration:           300 * time.Millisecond,
		CheckpointInterval: 50 * time.Millisecond,
		MaxBackoff:         10 * time.Millisecond,
		Seed:               7,
	}
	report, err := runStress(context.Background(), opts, filepath.Join(t.TempDir(), "stress.db"))
	require.NoError(t, err)
	require.Equal(t, "ok", report.Integrity)
	require.Equal(t, 3, report.Workers)
	require.Positive(t, report.Inserts)
}

func TestStressRejectsNoWorkers(t *testing.T) {
	_, err := runStress(context.Background(), &StressOptions{RootOptions: &RootOptions{}}, "unused.db")
	require.Equal(t, ExitCommandError, GetExitCode(err))
}
