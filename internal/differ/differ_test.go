package differ_test

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"db-recon/internal/dialect"
	"db-recon/internal/differ"
	"db-recon/internal/endpoint"
	"db-recon/internal/schema"
)

// testDialect drives the SQLite instances the tests run against. The
// introspection queries return the same six-column shape the production
// dialects do; ?1 is the schema argument SQLite has no use for.
type testDialect struct{}

var _ dialect.Dialect = testDialect{}

func (testDialect) TableExistsQuery() string {
	return `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?2 AND (?1 IS NULL OR ?1 = ?1)`
}

func (testDialect) ColumnsQuery() string {
	return `SELECT name, type,
        CASE WHEN "notnull" = 0 THEN 'YES' ELSE 'NO' END,
        CASE WHEN pk > 0 THEN 'PRI' ELSE '' END,
        dflt_value,
        cid + 1
    FROM pragma_table_info(?2)
    WHERE (?1 IS NULL OR ?1 = ?1)
    ORDER BY cid`
}

func (testDialect) DefaultSchema(input string) string {
	if input == "" {
		return "main"
	}
	return input
}

func (testDialect) QuoteIdentifier(name string) string { return `"` + name + `"` }

func (testDialect) QualifiedTable(schema, table string) string { return `"` + table + `"` }

func (testDialect) Placeholder(int) string { return "?" }

func (d testDialect) InsertQuery(table string, cols []string) string {
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.QuoteIdentifier(c)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) VALUES (%s)",
		table, strings.Join(quoted, ", "), strings.Join(marks, ", "))
}

func (testDialect) SupportsInsertIgnore() bool { return true }

func (testDialect) IsDuplicateKeyErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}

func openSide(t *testing.T, side endpoint.Side, keys []int64) *schema.Conn {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), string(side)+".db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT, price REAL)`)
	require.NoError(t, err)
	for _, k := range keys {
		_, err = db.Exec(`INSERT INTO items (id, name, price) VALUES (?, ?, ?)`,
			k, fmt.Sprintf("row-%d", k), float64(k)+0.25)
		require.NoError(t, err)
	}

	return &schema.Conn{
		DB:      db,
		Dialect: testDialect{},
		Endpoint: endpoint.Endpoint{
			Engine:   endpoint.EngineMySQL,
			Database: "main",
			Table:    "items",
		},
		Side: side,
	}
}

func seqKeys(from, to int64) []int64 {
	out := make([]int64, 0, to-from+1)
	for k := from; k <= to; k++ {
		out = append(out, k)
	}
	return out
}

func TestCompareData(t *testing.T) {
	src := openSide(t, endpoint.SideSource, seqKeys(1, 10))
	tgt := openSide(t, endpoint.SideTarget, []int64{1, 2, 3, 4, 5, 8, 9, 10})

	sum, err := differ.CompareData(context.Background(), src, tgt, "id", differ.Options{})
	require.NoError(t, err)

	assert.Equal(t, "id", sum.KeyColumn)
	assert.Equal(t, int64(10), sum.Source.RowCount)
	assert.Equal(t, int64(8), sum.Target.RowCount)
	require.NotNil(t, sum.Source.KeyMin)
	require.NotNil(t, sum.Source.KeyMax)
	assert.Equal(t, int64(1), *sum.Source.KeyMin)
	assert.Equal(t, int64(10), *sum.Source.KeyMax)

	assert.Equal(t, int64(2), sum.KeysOnlyInSourceCount)
	assert.Zero(t, sum.KeysOnlyInTargetCount)
	assert.Equal(t, int64(8), sum.KeysInBothCount)
	assert.Equal(t, []differ.KeyRange{{Start: 6, End: 7, Count: 2}}, sum.MissingInTargetRanges)
	assert.Empty(t, sum.MissingInSourceRanges)
	assert.False(t, sum.Truncated)
}

func TestCompareDataEmptyTarget(t *testing.T) {
	src := openSide(t, endpoint.SideSource, seqKeys(1, 5))
	tgt := openSide(t, endpoint.SideTarget, nil)

	sum, err := differ.CompareData(context.Background(), src, tgt, "id", differ.Options{})
	require.NoError(t, err)

	assert.Equal(t, int64(5), sum.KeysOnlyInSourceCount)
	assert.Zero(t, sum.Target.RowCount)
	assert.Nil(t, sum.Target.KeyMin)
	assert.Nil(t, sum.Target.KeyMax)
	assert.Equal(t, []differ.KeyRange{{Start: 1, End: 5, Count: 5}}, sum.MissingInTargetRanges)
}

func TestCompareDataTruncation(t *testing.T) {
	src := openSide(t, endpoint.SideSource, seqKeys(1, 40))
	tgt := openSide(t, endpoint.SideTarget, nil)

	sum, err := differ.CompareData(context.Background(), src, tgt, "id", differ.Options{MaxMissingKeys: 25})
	require.NoError(t, err)

	assert.True(t, sum.Truncated)
	assert.NotEmpty(t, sum.TruncationMessage)
	assert.Equal(t, int64(25), sum.KeysOnlyInSourceCount)
	// Counts remain a valid lower bound under truncation.
	var total int64
	for _, r := range sum.MissingInTargetRanges {
		total += r.Count
	}
	assert.Equal(t, sum.KeysOnlyInSourceCount, total)
}

func TestCompareDataUnknownKeyColumn(t *testing.T) {
	src := openSide(t, endpoint.SideSource, seqKeys(1, 3))
	tgt := openSide(t, endpoint.SideTarget, seqKeys(1, 3))

	_, err := differ.CompareData(context.Background(), src, tgt, "nope", differ.Options{})

	var keyErr *endpoint.InvalidKeyColumnError
	require.ErrorAs(t, err, &keyErr)
	assert.Equal(t, "nope", keyErr.Column)
	assert.Equal(t, endpoint.SideSource, keyErr.Side)
}

func TestCompareDataNonIntegerKeyColumn(t *testing.T) {
	src := openSide(t, endpoint.SideSource, seqKeys(1, 3))
	tgt := openSide(t, endpoint.SideTarget, seqKeys(1, 3))

	_, err := differ.CompareData(context.Background(), src, tgt, "name", differ.Options{})

	var keyErr *endpoint.InvalidKeyColumnError
	require.ErrorAs(t, err, &keyErr)
	assert.Equal(t, "name", keyErr.Column)
	assert.Contains(t, keyErr.Reason, "need integer")
}

func TestValidateKeyColumnMissingTable(t *testing.T) {
	src := openSide(t, endpoint.SideSource, nil)
	src.Endpoint.Table = "absent"

	err := differ.ValidateKeyColumn(context.Background(), src, "id")

	var nf *endpoint.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "table", nf.Kind)
	assert.Equal(t, endpoint.SideSource, nf.Side)
}
