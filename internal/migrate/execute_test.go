package migrate_test

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	_ "modernc.org/sqlite"

	"db-recon/internal/dialect"
	"db-recon/internal/differ"
	"db-recon/internal/endpoint"
	"db-recon/internal/migrate"
	"db-recon/internal/runlog"
	"db-recon/internal/schema"
)

// sqliteIgnore drives the SQLite instances the tests run against, with
// the conflict-ignoring insert shape. ?1 is the schema argument SQLite
// has no use for.
type sqliteIgnore struct{}

var _ dialect.Dialect = sqliteIgnore{}

func (sqliteIgnore) TableExistsQuery() string {
	return `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?2 AND (?1 IS NULL OR ?1 = ?1)`
}

func (sqliteIgnore) ColumnsQuery() string {
	return `SELECT name, type,
        CASE WHEN "notnull" = 0 THEN 'YES' ELSE 'NO' END,
        CASE WHEN pk > 0 THEN 'PRI' ELSE '' END,
        dflt_value,
        cid + 1
    FROM pragma_table_info(?2)
    WHERE (?1 IS NULL OR ?1 = ?1)
    ORDER BY cid`
}

func (sqliteIgnore) DefaultSchema(input string) string {
	if input == "" {
		return "main"
	}
	return input
}

func (sqliteIgnore) QuoteIdentifier(name string) string { return `"` + name + `"` }

func (sqliteIgnore) QualifiedTable(schema, table string) string { return `"` + table + `"` }

func (sqliteIgnore) Placeholder(int) string { return "?" }

func (d sqliteIgnore) InsertQuery(table string, cols []string) string {
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.QuoteIdentifier(c)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) VALUES (%s)",
		table, strings.Join(quoted, ", "), strings.Join(marks, ", "))
}

func (sqliteIgnore) SupportsInsertIgnore() bool { return true }

func (sqliteIgnore) IsDuplicateKeyErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}

// sqlitePlain is the same engine without a conflict-ignoring insert, so
// the executor must go through duplicate-key detection like it does on
// sqlserver and oracle.
type sqlitePlain struct{ sqliteIgnore }

var _ dialect.Dialect = sqlitePlain{}

func (d sqlitePlain) InsertQuery(table string, cols []string) string {
	return strings.Replace(d.sqliteIgnore.InsertQuery(table, cols), "INSERT OR IGNORE", "INSERT", 1)
}

func (sqlitePlain) SupportsInsertIgnore() bool { return false }

type sideOpts struct {
	plain       bool
	nameNotNull bool
}

func openSide(t *testing.T, side endpoint.Side, keys []int64, opts sideOpts) *schema.Conn {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), string(side)+".db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	nameCol := "name TEXT"
	if opts.nameNotNull {
		nameCol = "name TEXT NOT NULL"
	}
	_, err = db.Exec(fmt.Sprintf(`CREATE TABLE items (id INTEGER PRIMARY KEY, %s, price REAL)`, nameCol))
	require.NoError(t, err)
	for _, k := range keys {
		_, err = db.Exec(`INSERT INTO items (id, name, price) VALUES (?, ?, ?)`,
			k, fmt.Sprintf("row-%d", k), float64(k)+0.25)
		require.NoError(t, err)
	}

	var d dialect.Dialect = sqliteIgnore{}
	if opts.plain {
		d = sqlitePlain{}
	}

	return &schema.Conn{
		DB:      db,
		Dialect: d,
		Endpoint: endpoint.Endpoint{
			Engine:   endpoint.EngineMySQL,
			Database: "main",
			Table:    "items",
		},
		Side: side,
	}
}

func newStore(t *testing.T) *runlog.Store {
	t.Helper()
	store, err := runlog.Open(filepath.Join(t.TempDir(), "runlog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newRequest(src, tgt *schema.Conn, ranges ...differ.KeyRange) *migrate.Request {
	return &migrate.Request{
		Source:    src,
		Target:    tgt,
		KeyColumn: "id",
		Mode:      migrate.ModeInsertMissingOnly,
		Ranges:    ranges,
	}
}

func seqKeys(from, to int64) []int64 {
	out := make([]int64, 0, to-from+1)
	for k := from; k <= to; k++ {
		out = append(out, k)
	}
	return out
}

func targetKeys(t *testing.T, tgt *schema.Conn) []int64 {
	t.Helper()
	rows, err := tgt.DB.Query(`SELECT id FROM items ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()
	var keys []int64
	for rows.Next() {
		var k int64
		require.NoError(t, rows.Scan(&k))
		keys = append(keys, k)
	}
	require.NoError(t, rows.Err())
	return keys
}

func TestPlanCountsMissingKeys(t *testing.T) {
	src := openSide(t, endpoint.SideSource, seqKeys(1, 10), sideOpts{})
	tgt := openSide(t, endpoint.SideTarget, []int64{1, 2, 3, 4, 5, 8, 9, 10}, sideOpts{})

	req := newRequest(src, tgt, differ.KeyRange{Start: 6, End: 7})
	req.DryRun = true

	res, err := migrate.Plan(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, res.DryRun)
	assert.Equal(t, int64(2), res.PlannedInsertsCount)
	assert.Equal(t, []string{"id", "name", "price"}, res.ColumnsToInsert)
	assert.Empty(t, res.PotentialIssues)
	assert.Zero(t, res.InsertedCount)
	// A dry run writes nothing.
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 8, 9, 10}, targetKeys(t, tgt))
}

func TestExecuteInsertsMissingRows(t *testing.T) {
	src := openSide(t, endpoint.SideSource, seqKeys(1, 10), sideOpts{})
	tgt := openSide(t, endpoint.SideTarget, []int64{1, 2, 3, 4, 5, 8, 9, 10}, sideOpts{})
	store := newStore(t)

	ex := &migrate.Executor{Store: store, Logger: zap.NewNop()}
	res, err := migrate.Execute(context.Background(), newRequest(src, tgt, differ.KeyRange{Start: 6, End: 7}), ex)
	require.NoError(t, err)

	assert.False(t, res.DryRun)
	assert.Equal(t, int64(2), res.InsertedCount)
	assert.Zero(t, res.SkippedConflictsCount)
	assert.Zero(t, res.ErrorsCount)
	require.NotEmpty(t, res.MigrationLogID)
	assert.Equal(t, seqKeys(1, 10), targetKeys(t, tgt))

	var name string
	var price float64
	require.NoError(t, tgt.DB.QueryRow(`SELECT name, price FROM items WHERE id = 6`).Scan(&name, &price))
	assert.Equal(t, "row-6", name)
	assert.Equal(t, 6.25, price)

	run, lines, err := store.Get(res.MigrationLogID)
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusSuccess, run.Status)
	assert.Equal(t, int64(2), run.PlannedCount)
	assert.Equal(t, int64(2), run.InsertedCount)
	assert.NotNil(t, run.FinishedAt)
	assert.NotEmpty(t, lines)
}

// Re-running the same ranges inserts nothing and skips everything: rows
// already in the target are never touched.
func TestExecuteIsIdempotent(t *testing.T) {
	src := openSide(t, endpoint.SideSource, seqKeys(1, 10), sideOpts{})
	tgt := openSide(t, endpoint.SideTarget, seqKeys(1, 5), sideOpts{})
	store := newStore(t)
	ex := &migrate.Executor{Store: store}

	first, err := migrate.Execute(context.Background(), newRequest(src, tgt, differ.KeyRange{Start: 6, End: 10}), ex)
	require.NoError(t, err)
	assert.Equal(t, int64(5), first.InsertedCount)

	second, err := migrate.Execute(context.Background(), newRequest(src, tgt, differ.KeyRange{Start: 6, End: 10}), ex)
	require.NoError(t, err)
	assert.Zero(t, second.InsertedCount)
	assert.Equal(t, int64(5), second.SkippedConflictsCount)
	assert.Zero(t, second.ErrorsCount)
	assert.Equal(t, seqKeys(1, 10), targetKeys(t, tgt))
}

// Rows that appear in the target between compare and execute are skipped,
// and their existing content is never overwritten.
func TestExecuteSkipsRowsInsertedMeanwhile(t *testing.T) {
	src := openSide(t, endpoint.SideSource, seqKeys(1, 10), sideOpts{})
	tgt := openSide(t, endpoint.SideTarget, seqKeys(1, 5), sideOpts{})
	store := newStore(t)

	_, err := tgt.DB.Exec(`INSERT INTO items (id, name, price) VALUES (7, 'already-here', 0)`)
	require.NoError(t, err)

	res, err := migrate.Execute(context.Background(), newRequest(src, tgt, differ.KeyRange{Start: 6, End: 10}), &migrate.Executor{Store: store})
	require.NoError(t, err)

	assert.Equal(t, int64(4), res.InsertedCount)
	assert.Equal(t, int64(1), res.SkippedConflictsCount)

	var name string
	require.NoError(t, tgt.DB.QueryRow(`SELECT name FROM items WHERE id = 7`).Scan(&name))
	assert.Equal(t, "already-here", name)
}

// Without a conflict-ignoring insert the executor relies on duplicate-key
// error detection, with the same accounting.
func TestExecutePlainInsertConflictDetection(t *testing.T) {
	src := openSide(t, endpoint.SideSource, seqKeys(1, 10), sideOpts{plain: true})
	tgt := openSide(t, endpoint.SideTarget, []int64{1, 2, 3, 4, 5, 7}, sideOpts{plain: true})
	store := newStore(t)

	res, err := migrate.Execute(context.Background(), newRequest(src, tgt, differ.KeyRange{Start: 6, End: 10}), &migrate.Executor{Store: store})
	require.NoError(t, err)

	assert.Equal(t, int64(4), res.InsertedCount)
	assert.Equal(t, int64(1), res.SkippedConflictsCount)
	assert.Zero(t, res.ErrorsCount)
	assert.Equal(t, seqKeys(1, 10), targetKeys(t, tgt))
}

// A row failing on a non-duplicate constraint is recorded and the rest of
// its batch still lands via the row-wise redo.
func TestExecuteRecordsRowErrors(t *testing.T) {
	src := openSide(t, endpoint.SideSource, seqKeys(1, 5), sideOpts{plain: true})
	tgt := openSide(t, endpoint.SideTarget, seqKeys(1, 3), sideOpts{plain: true, nameNotNull: true})
	store := newStore(t)

	_, err := src.DB.Exec(`UPDATE items SET name = NULL WHERE id = 4`)
	require.NoError(t, err)

	res, err := migrate.Execute(context.Background(), newRequest(src, tgt, differ.KeyRange{Start: 4, End: 5}), &migrate.Executor{Store: store})
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.InsertedCount)
	assert.Equal(t, int64(1), res.ErrorsCount)
	assert.Equal(t, []int64{1, 2, 3, 5}, targetKeys(t, tgt))

	joined := strings.Join(res.BatchLogs, "\n")
	assert.Contains(t, joined, "row error")

	run, _, err := store.Get(res.MigrationLogID)
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusSuccess, run.Status)
	assert.Equal(t, int64(1), run.ErrorsCount)
}

// Cancellation partway through a single range stops at the next batch
// boundary: committed batches stand, the tail batch is dropped, and the
// persisted record reads incomplete, not failed.
func TestExecuteAbortsMidRange(t *testing.T) {
	src := openSide(t, endpoint.SideSource, seqKeys(1, 600), sideOpts{})
	tgt := openSide(t, endpoint.SideTarget, nil, sideOpts{})
	store := newStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// 600 rows split into one full batch and a tail; cancel after the
	// first commit.
	ex := &migrate.Executor{Store: store, OnBatch: func(int) { cancel() }}

	res, err := migrate.Execute(ctx, newRequest(src, tgt, differ.KeyRange{Start: 1, End: 600}), ex)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(500), res.InsertedCount)
	assert.Equal(t, seqKeys(1, 500), targetKeys(t, tgt))

	run, _, err := store.Get(res.MigrationLogID)
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusIncomplete, run.Status)
	assert.Equal(t, int64(500), run.InsertedCount)
}

// Cancellation between ranges stops the run at a batch boundary and the
// persisted record ends up incomplete, never success.
func TestExecuteAbortsBetweenRanges(t *testing.T) {
	src := openSide(t, endpoint.SideSource, seqKeys(1, 10), sideOpts{})
	tgt := openSide(t, endpoint.SideTarget, nil, sideOpts{})
	store := newStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ex := &migrate.Executor{Store: store, OnBatch: func(int) { cancel() }}

	req := newRequest(src, tgt,
		differ.KeyRange{Start: 1, End: 5},
		differ.KeyRange{Start: 6, End: 10})
	res, err := migrate.Execute(ctx, req, ex)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(5), res.InsertedCount)
	assert.Equal(t, seqKeys(1, 5), targetKeys(t, tgt))

	run, _, err := store.Get(res.MigrationLogID)
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusIncomplete, run.Status)
	assert.Equal(t, int64(5), run.InsertedCount)
}

// A run log store that starts failing mid-run never aborts the
// migration, but every dropped write is logged.
func TestExecuteLogsAuditStoreFailures(t *testing.T) {
	src := openSide(t, endpoint.SideSource, seqKeys(1, 600), sideOpts{})
	tgt := openSide(t, endpoint.SideTarget, nil, sideOpts{})
	store := newStore(t)

	core, observed := observer.New(zap.WarnLevel)
	ex := &migrate.Executor{
		Store:   store,
		Logger:  zap.New(core),
		OnBatch: func(int) { store.Close() },
	}

	res, err := migrate.Execute(context.Background(), newRequest(src, tgt, differ.KeyRange{Start: 1, End: 600}), ex)
	require.NoError(t, err)

	assert.Equal(t, int64(600), res.InsertedCount)
	assert.Equal(t, seqKeys(1, 600), targetKeys(t, tgt))
	assert.GreaterOrEqual(t, observed.FilterMessage("failed to append run log line").Len(), 1)
	assert.GreaterOrEqual(t, observed.FilterMessage("failed to finalize run record").Len(), 1)
}

// The dry-run flag is part of the request shape: each entry point only
// accepts requests flagged for it.
func TestPlanRejectsExecuteShapedRequest(t *testing.T) {
	src := openSide(t, endpoint.SideSource, nil, sideOpts{})
	tgt := openSide(t, endpoint.SideTarget, nil, sideOpts{})

	req := newRequest(src, tgt, differ.KeyRange{Start: 1, End: 3})
	_, err := migrate.Plan(context.Background(), req)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not flagged dry-run")
}

func TestExecuteRejectsDryRunRequest(t *testing.T) {
	src := openSide(t, endpoint.SideSource, nil, sideOpts{})
	tgt := openSide(t, endpoint.SideTarget, nil, sideOpts{})

	store := newStore(t)
	req := newRequest(src, tgt, differ.KeyRange{Start: 1, End: 3})
	req.DryRun = true
	_, err := migrate.Execute(context.Background(), req, &migrate.Executor{Store: store})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "flagged dry-run")
	// Nothing was recorded.
	runs, err := store.List(10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestExecuteRequiresStore(t *testing.T) {
	src := openSide(t, endpoint.SideSource, seqKeys(1, 3), sideOpts{})
	tgt := openSide(t, endpoint.SideTarget, nil, sideOpts{})

	_, err := migrate.Execute(context.Background(), newRequest(src, tgt, differ.KeyRange{Start: 1, End: 3}), &migrate.Executor{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run log store")
}

func TestPlanFlagsNullabilityNarrowing(t *testing.T) {
	src := openSide(t, endpoint.SideSource, seqKeys(1, 3), sideOpts{})
	tgt := openSide(t, endpoint.SideTarget, nil, sideOpts{nameNotNull: true})

	req := newRequest(src, tgt, differ.KeyRange{Start: 1, End: 3})
	req.DryRun = true

	res, err := migrate.Plan(context.Background(), req)
	require.NoError(t, err)

	require.NotEmpty(t, res.PotentialIssues)
	assert.Contains(t, strings.Join(res.PotentialIssues, "\n"), "nullable on source but NOT NULL on target")
}
