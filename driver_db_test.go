package exqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func tempDSN(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	requireLibLoaded(t)
	db, err := sql.Open(DriverName, tempDSN(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Ping())
	return db
}

func TestDriverExecAndQuery(t *testing.T) {
	db := openDB(t)

	_, err := db.Exec("CREATE TABLE test (foo INTEGER, bar TEXT, baz BLOB, qux REAL)")
	require.NoError(t, err)

	res, err := db.Exec("INSERT INTO test (foo, bar, baz, qux) VALUES (?, ?, ?, ?)", 1, "one", []byte{0, 1}, 1.5)
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	_, err = db.Exec("INSERT INTO test (foo, bar, baz, qux) VALUES (?, ?, ?, ?)", 2, "two", nil, nil)
	require.NoError(t, err)

	rows, err := db.Query("SELECT foo, bar, baz, qux, typeof(baz) FROM test ORDER BY foo")
	require.NoError(t, err)
	defer rows.Close()
	cols, err := rows.Columns()
	require.NoError(t, err)
	require.Equal(t, []string{"foo", "bar", "baz", "qux", "typeof(baz)"}, cols)

	type row struct {
		foo   int64
		bar   string
		baz   []byte
		qux   sql.NullFloat64
		btype string
	}
	var got []row
	for rows.Next() {
		var r row
		require.NoError(t, rows.Scan(&r.foo, &r.bar, &r.baz, &r.qux, &r.btype))
		got = append(got, r)
	}
	require.NoError(t, rows.Err())
	require.Equal(t, []row{
		{1, "one", []byte{0, 1}, sql.NullFloat64{Float64: 1.5, Valid: true}, "blob"},
		{2, "two", nil, sql.NullFloat64{}, "null"},
	}, got)
}

func TestDriverMultiStatementExec(t *testing.T) {
	db := openDB(t)
	res, err := db.Exec("CREATE TABLE t (x); INSERT INTO t VALUES (1); INSERT INTO t VALUES (2), (3);")
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	var count int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM t").Scan(&count))
	require.Equal(t, 3, count)
}

func TestDriverPreparedStatement(t *testing.T) {
	db := openDB(t)
	_, err := db.Exec("CREATE TABLE t (k TEXT PRIMARY KEY, v INTEGER)")
	require.NoError(t, err)

	stmt, err := db.Prepare("INSERT INTO t (k, v) VALUES (?, ?)")
	require.NoError(t, err)
	defer stmt.Close()
	for i, k := range []string{"a", "b", "c"} {
		_, err := stmt.Exec(k, i)
		require.NoError(t, err)
	}
	_, err = stmt.Exec("only one")
	require.Error(t, err)

	_, err = stmt.Exec("a", 10)
	require.ErrorIs(t, err, ErrSQLite)

	var v int
	require.NoError(t, db.QueryRow("SELECT v FROM t WHERE k = ?", "c").Scan(&v))
	require.Equal(t, 2, v)
}

func TestDriverRejectsNamedArgs(t *testing.T) {
	db := openDB(t)
	_, err := db.Exec("SELECT :a", sql.Named("a", 1))
	require.ErrorIs(t, err, ErrNamedArgs)
}

func TestDriverTransactions(t *testing.T) {
	db := openDB(t)
	_, err := db.Exec("CREATE TABLE t (x)")
	require.NoError(t, err)

	tx, err := db.Begin()
	require.NoError(t, err)
	_, err = tx.Exec("INSERT INTO t VALUES (?)", 1)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	tx, err = db.Begin()
	require.NoError(t, err)
	_, err = tx.Exec("INSERT INTO t VALUES (?)", 2)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	var sum int
	require.NoError(t, db.QueryRow("SELECT sum(x) FROM t").Scan(&sum))
	require.Equal(t, 2, sum)
}

func TestDriverTimeColumns(t *testing.T) {
	db := openDB(t)
	_, err := db.Exec("CREATE TABLE ev (at DATETIME, label TEXT)")
	require.NoError(t, err)
	at := time.Date(2024, 3, 1, 12, 30, 45, 123000000, time.UTC)
	_, err = db.Exec("INSERT INTO ev (at, label) VALUES (?, ?)", at, "x")
	require.NoError(t, err)

	var got time.Time
	var label string
	require.NoError(t, db.QueryRow("SELECT at, label FROM ev").Scan(&got, &label))
	require.True(t, at.Equal(got), "got %v", got)
	require.Equal(t, "x", label)
}

func TestDriverConnector(t *testing.T) {
	requireLibLoaded(t)
	db := sql.OpenDB(NewConnector(tempDSN(t), WithBusyRetryInterval(time.Millisecond)))
	defer db.Close()
	require.NoError(t, db.PingContext(context.Background()))

	var v int
	require.NoError(t, db.QueryRow("SELECT 40 + ?", 2).Scan(&v))
	require.Equal(t, 42, v)
}

func TestDriverConcurrentWriters(t *testing.T) {
	db := openDB(t)
	_, err := db.Exec("PRAGMA journal_mode=WAL; CREATE TABLE t (worker INTEGER, n INTEGER)")
	require.NoError(t, err)
	db.SetMaxOpenConns(4)

	const workers, inserts = 4, 25
	var wg sync.WaitGroup
	errs := make(chan error, workers*inserts)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			for i := 0; i < inserts; i++ {
				if _, err := db.ExecContext(ctx, "INSERT INTO t VALUES (?, ?)", w, i); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var count int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM t").Scan(&count))
	require.Equal(t, workers*inserts, count)
}

type Record struct {
	ID    uint   `gorm:"primarykey"`
	Name  string `gorm:"index"`
	Value int
	Data  []byte
	Score float64
}

func TestGormOverDriver(t *testing.T) {
	requireLibLoaded(t)
	dialector := sqlite.Dialector{DriverName: DriverName, DSN: tempDSN(t)}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	require.NoError(t, db.AutoMigrate(&Record{}))

	records := []Record{
		{Name: "a", Value: 1, Data: []byte{0, 1, 2}, Score: 0.5},
		{Name: "b", Value: 2, Data: []byte("bytes"), Score: 1.5},
	}
	require.NoError(t, db.Create(&records).Error)
	require.NotZero(t, records[0].ID)
	require.NotZero(t, records[1].ID)

	var got Record
	require.NoError(t, db.Where("name = ?", "a").First(&got).Error)
	require.Equal(t, records[0].Data, got.Data)
	require.Equal(t, 0.5, got.Score)

	require.NoError(t, db.Model(&Record{}).Where("name = ?", "b").Update("value", 20).Error)
	var total int64
	require.NoError(t, db.Model(&Record{}).Select("sum(value)").Scan(&total).Error)
	require.Equal(t, int64(21), total)

	require.NoError(t, db.Delete(&Record{}, records[0].ID).Error)
	var count int64
	require.NoError(t, db.Model(&Record{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestSqlxOverDriver(t *testing.T) {
	requireLibLoaded(t)
	db, err := sqlx.Connect(DriverName, tempDSN(t))
	require.NoError(t, err)
	defer db.Close()

	db.MustExec("CREATE TABLE users (id INTEGER PRIMARY KEY, username TEXT NOT NULL, salt BLOB)")
	db.MustExec("INSERT INTO users (username, salt) VALUES ($1, $2)", "alice", []byte{9, 0, 9})
	db.MustExec("INSERT INTO users (username, salt) VALUES ($1, $2)", "bob", []byte{})

	type user struct {
		ID       int64  `db:"id"`
		Username string `db:"username"`
		Salt     []byte `db:"salt"`
	}
	var alice user
	require.NoError(t, db.Get(&alice, "SELECT id, username, salt FROM users WHERE username = $1", "alice"))
	require.Equal(t, user{ID: 1, Username: "alice", Salt: []byte{9, 0, 9}}, alice)

	var all []user
	require.NoError(t, db.Select(&all, "SELECT id, username, salt FROM users ORDER BY id"))
	require.Len(t, all, 2)
	require.Equal(t, "bob", all[1].Username)
	require.Empty(t, all[1].Salt)
}

// The file written through this package must be readable by an independent
// SQLite driver, byte for byte.
func TestCrossCheckWithMattn(t *testing.T) {
	requireLibLoaded(t)
	dsn := tempDSN(t)
	ours, err := sql.Open(DriverName, dsn)
	require.NoError(t, err)
	defer ours.Close()
	_, err = ours.Exec("CREATE TABLE t (i INTEGER, s TEXT, b BLOB)")
	require.NoError(t, err)
	_, err = ours.Exec("INSERT INTO t VALUES (?, ?, ?)", int64(-9223372036854775808), "a\x00é", []byte{0, 255, 0})
	require.NoError(t, err)
	require.NoError(t, ours.Close())

	theirs, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	defer theirs.Close()
	if err := theirs.Ping(); err != nil {
		t.Skipf("github.com/mattn/go-sqlite3 unavailable: %v", err)
	}
	var (
		i int64
		s string
		b []byte
	)
	require.NoError(t, theirs.QueryRow("SELECT i, s, b FROM t").Scan(&i, &s, &b))
	require.Equal(t, int64(-9223372036854775808), i)
	require.Equal(t, "a\x00é", s)
	require.Equal(t, []byte{0, 255, 0}, b)
}
