package exqlite

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSchedulerRunsCalls(t *testing.T) {
	requireLibLoaded(t)
	s := NewScheduler(2, zaptest.NewLogger(t))
	defer s.Close()
	ctx := context.Background()

	res, err := s.Submit(ctx, "open", ":memory:")
	require.NoError(t, err)
	conn := res.(Tuple)[1]
	defer Call("close", conn)

	res, err = s.Submit(ctx, "execute", conn, "CREATE TABLE t (x)")
	require.NoError(t, err)
	require.Equal(t, OK, res)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.Submit(ctx, "execute", conn, IOList{"INSERT INTO t VALUES (", []byte{byte('0' + i%10)}, ")"})
			assert.NoError(t, err)
			assert.Equal(t, OK, res)
		}(i)
	}
	wg.Wait()

	res, err = s.Submit(ctx, "prepare", conn, "SELECT count(*) FROM t")
	require.NoError(t, err)
	stmt := res.(Tuple)[1]
	res, err = s.Submit(ctx, "step", conn, stmt)
	require.NoError(t, err)
	require.Equal(t, Tuple{RowTag, []any{int64(20)}}, res)
}

func TestSchedulerHonoursContext(t *testing.T) {
	s := NewScheduler(1, nil)
	defer s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Submit(ctx, "open", ":memory:")
	require.ErrorIs(t, err, context.Canceled)
}

func TestSchedulerClosed(t *testing.T) {
	s := NewScheduler(0, nil)
	s.Close()
	s.Close()
	_, err := s.Submit(context.Background(), "open", ":memory:")
	require.ErrorIs(t, err, ErrSchedulerClosed)
}

func TestSchedulerBadArg(t *testing.T) {
	s := NewScheduler(1, nil)
	defer s.Close()
	res, err := s.Submit(context.Background(), "unknown")
	require.NoError(t, err)
	require.Equal(t, Tuple{ErrorTag, Atom("badarg")}, res)
}
