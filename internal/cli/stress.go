package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/elixir-sqlite/exqlite"
)

// StressOptions holds flags for the stress command.
type StressOptions struct {
	*RootOptions
	Workers            int
	Duration           time.Duration
	CheckpointInterval time.Duration
	MaxBackoff         time.Duration
	Seed               int64
}

// Stats tracking
type Stats struct {
	Inserts     atomic.Int64
	Updates     atomic.Int64
	Deletes     atomic.Int64
	Selects     atomic.Int64
	Checkpoints atomic.Int64
	Busy        atomic.Int64
	Errors      atomic.Int64
}

// StressReport summarizes a stress run.
type StressReport struct {
	Workers     int    `json:"workers" yaml:"workers"`
	Duration    string `json:"duration" yaml:"duration"`
	Inserts     int64  `json:"inserts" yaml:"inserts"`
	Updates     int64  `json:"updates" yaml:"updates"`
	Deletes     int64  `json:"deletes" yaml:"deletes"`
	Selects     int64  `json:"selects" yaml:"selects"`
	Checkpoints int64  `json:"checkpoints" yaml:"checkpoints"`
	Busy        int64  `json:"busy" yaml:"busy"`
	Errors      int64  `json:"errors" yaml:"errors"`
	Integrity   string `json:"integrity" yaml:"integrity"`
}

func (r *StressReport) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w,
		"workers: %d, duration: %s\ninserts: %d, updates: %d, deletes: %d, selects: %d\ncheckpoints: %d, busy: %d, errors: %d\nintegrity: %s\n",
		r.Workers, r.Duration, r.Inserts, r.Updates, r.Deletes, r.Selects, r.Checkpoints, r.Busy, r.Errors, r.Integrity)
	return err
}

const stressSchema = `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS records (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	value INTEGER NOT NULL,
	data BLOB
);
CREATE INDEX IF NOT EXISTS records_name ON records (name);
`

// NewStressCommand creates the stress command.
func NewStressCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StressOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stress <database>",
		Short: "Hammer a database from concurrent connections",
		Long: `Run concurrent workers, each with its own connection, that insert, update,
delete and select through prepare/bind/step while a checkpoint worker runs
wal_checkpoint in the background. Busy steps are retried with exponential
backoff. An integrity check runs at the end.

Example:
  exqlite stress ./stress.db --workers 8 --duration 30s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := runStress(cmd.Context(), opts, args[0])
			if err != nil {
				return err
			}
			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			if err := out.Render(report); err != nil {
				return err
			}
			if report.Integrity != "ok" {
				return NewExitError(ExitFailure, "integrity check failed: "+report.Integrity)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.Workers, "workers", 4, "number of concurrent workers")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 5*time.Second, "how long to run")
	cmd.Flags().DurationVar(&opts.CheckpointInterval, "checkpoint-interval", time.Second, "interval between wal checkpoints")
	cmd.Flags().DurationVar(&opts.MaxBackoff, "max-backoff", 100*time.Millisecond, "upper bound of the busy backoff")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 1, "random seed")

	return cmd
}

func runStress(parent context.Context, opts *StressOptions, filename string) (*StressReport, error) {
	if parent == nil {
		parent = context.Background()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Workers <= 0 {
		return nil, NewExitError(ExitCommandError, "workers must be positive")
	}

	setup, err := exqlite.Open(filename)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open "+filename, err)
	}
	defer setup.Close()
	if err := setup.Execute(stressSchema); err != nil {
		return nil, WrapExitError(ExitFailure, "create schema", err)
	}

	ctx, cancel := context.WithTimeout(parent, opts.Duration)
	defer cancel()

	var stats Stats
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		checkpointWorker(ctx, setup, opts.CheckpointInterval, &stats, logger)
	}()

	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w := &stressWorker{
				id:         id,
				rng:        rand.New(rand.NewSource(opts.Seed + int64(id))),
				stats:      &stats,
				maxBackoff: opts.MaxBackoff,
				logger:     logger.With(zap.Int("worker", id)),
			}
			if err := w.run(ctx, filename); err != nil {
				w.logger.Warn("worker stopped", zap.Error(err))
				stats.Errors.Add(1)
			}
		}(i)
	}
	wg.Wait()

	integrity, err := integrityCheck(setup)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "integrity check", err)
	}

	return &StressReport{
		Workers:     opts.Workers,
		Duration:    opts.Duration.String(),
		Inserts:     stats.Inserts.Load(),
		Updates:     stats.Updates.Load(),
		Deletes:     stats.Deletes.Load(),
		Selects:     stats.Selects.Load(),
		Checkpoints: stats.Checkpoints.Load(),
		Busy:        stats.Busy.Load(),
		Errors:      stats.Errors.Load(),
		Integrity:   integrity,
	}, nil
}

// Background checkpoint worker
func checkpointWorker(ctx context.Context, conn *exqlite.Conn, interval time.Duration, stats *Stats, logger *zap.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	modes := []string{"TRUNCATE", "RESTART", "FULL", "PASSIVE"}
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mode := modes[i%len(modes)]
			if err := conn.Execute(fmt.Sprintf("PRAGMA wal_checkpoint(%s)", mode)); err != nil {
				if isBusy(err) {
					stats.Busy.Add(1)
					continue
				}
				logger.Warn("checkpoint", zap.String("mode", mode), zap.Error(err))
				stats.Errors.Add(1)
				continue
			}
			stats.Checkpoints.Add(1)
		}
	}
}

func integrityCheck(conn *exqlite.Conn) (string, error) {
	stmt, err := conn.Prepare("PRAGMA integrity_check")
	if err != nil {
		return "", err
	}
	defer stmt.Finalize()
	res, err := conn.Step(stmt)
	if err != nil {
		return "", err
	}
	if res.Kind != exqlite.StepRow || len(res.Row) != 1 {
		return "", fmt.Errorf("unexpected integrity_check result %v", res.Kind)
	}
	text, ok := res.Row[0].([]byte)
	if !ok {
		return "", fmt.Errorf("unexpected integrity_check cell %#v", res.Row[0])
	}
	return string(text), nil
}

func isBusy(err error) bool {
	var e *exqlite.Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == exqlite.SQLITE_BUSY || e.Code == exqlite.SQLITE_LOCKED
}

type stressWorker struct {
	id         int
	rng        *rand.Rand
	stats      *Stats
	maxBackoff time.Duration
	logger     *zap.Logger

	conn  *exqlite.Conn
	stmts map[string]*exqlite.Stmt
}

var stressStatements = map[string]string{
	"insert": "INSERT INTO records (name, value, data) VALUES (?, ?, ?)",
	"update": "UPDATE records SET value = value + ? WHERE id = ?",
	"delete": "DELETE FROM records WHERE id = ?",
	"select": "SELECT id, name, value, data FROM records WHERE id >= ? ORDER BY id LIMIT 10",
	"maxid":  "SELECT max(id) FROM records",
}

// Probability weights for insert, update, delete, select, bulk
var (
	stressActions = []string{"insert", "update", "delete", "select", "bulk"}
	stressWeights = []int{30, 20, 5, 35, 10}
)

func (w *stressWorker) run(ctx context.Context, filename string) error {
	conn, err := exqlite.Open(filename)
	if err != nil {
		return err
	}
	defer conn.Close()
	w.conn = conn
	w.stmts = make(map[string]*exqlite.Stmt, len(stressStatements))
	for name, sql := range stressStatements {
		stmt, err := conn.Prepare(sql)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", name, err)
		}
		defer stmt.Finalize()
		w.stmts[name] = stmt
	}

	total := 0
	for _, weight := range stressWeights {
		total += weight
	}
	for ctx.Err() == nil {
		action := pickWeighted(w.rng, stressActions, stressWeights, total)
		if err := w.do(ctx, action); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Debug("action failed", zap.String("action", action), zap.Error(err))
			w.stats.Errors.Add(1)
		}
	}
	return nil
}

func pickWeighted(rng *rand.Rand, items []string, weights []int, total int) string {
	n := rng.Intn(total)
	for i, weight := range weights {
		if n < weight {
			return items[i]
		}
		n -= weight
	}
	return items[len(items)-1]
}

func (w *stressWorker) do(ctx context.Context, action string) error {
	switch action {
	case "insert":
		if err := w.insert(ctx); err != nil {
			return err
		}
	case "update":
		id, err := w.randomID(ctx)
		if err != nil {
			return err
		}
		if _, err := w.run1(ctx, "update", w.rng.Intn(100), id); err != nil {
			return err
		}
		w.stats.Updates.Add(1)
	case "delete":
		id, err := w.randomID(ctx)
		if err != nil {
			return err
		}
		if _, err := w.run1(ctx, "delete", id); err != nil {
			return err
		}
		w.stats.Deletes.Add(1)
	case "select":
		id, err := w.randomID(ctx)
		if err != nil {
			return err
		}
		if _, err := w.run1(ctx, "select", id); err != nil {
			return err
		}
		w.stats.Selects.Add(1)
	case "bulk":
		return w.bulk(ctx)
	}
	return nil
}

func (w *stressWorker) insert(ctx context.Context) error {
	data := make([]byte, 16+w.rng.Intn(64))
	w.rng.Read(data)
	name := fmt.Sprintf("record_%d_%d", w.id, w.rng.Int63())
	if _, err := w.run1(ctx, "insert", name, w.rng.Intn(1000), exqlite.Blob(data)); err != nil {
		return err
	}
	w.stats.Inserts.Add(1)
	return nil
}

func (w *stressWorker) bulk(ctx context.Context) error {
	if err := w.conn.Execute("BEGIN IMMEDIATE"); err != nil {
		if isBusy(err) {
			w.stats.Busy.Add(1)
			return nil
		}
		return err
	}
	for i := 0; i < 10; i++ {
		if err := w.insert(ctx); err != nil {
			_ = w.conn.Execute("ROLLBACK")
			return err
		}
	}
	if err := w.conn.Execute("COMMIT"); err != nil {
		_ = w.conn.Execute("ROLLBACK")
		return err
	}
	return nil
}

func (w *stressWorker) randomID(ctx context.Context) (int64, error) {
	rows, err := w.run1(ctx, "maxid")
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 1, nil
	}
	maxID, ok := rows[0][0].(int64)
	if !ok || maxID < 1 {
		return 1, nil
	}
	return 1 + w.rng.Int63n(maxID), nil
}

// run1 binds args to the named statement and steps it to completion,
// retrying busy steps with exponential backoff.
func (w *stressWorker) run1(ctx context.Context, name string, args ...any) ([]exqlite.Row, error) {
	stmt := w.stmts[name]
	if err := w.conn.Bind(stmt, args); err != nil {
		return nil, err
	}
	var rows []exqlite.Row
	backoff := time.Millisecond
	for {
		res, err := w.conn.Step(stmt)
		if err != nil {
			if isBusy(err) {
				w.stats.Busy.Add(1)
			}
			return nil, err
		}
		switch res.Kind {
		case exqlite.StepDone:
			return rows, nil
		case exqlite.StepRow:
			rows = append(rows, res.Row)
		case exqlite.StepBusy:
			w.stats.Busy.Add(1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > w.maxBackoff {
				backoff = w.maxBackoff
			}
		}
	}
}
