package differ

import (
	"database/sql"
)

// KeyIterator yields int64 keys in ascending order. Next returns
// ok=false once the stream is exhausted; err is checked afterwards.
type KeyIterator interface {
	Next() (key int64, ok bool, err error)
	Close() error
}

// sqlKeys streams keys from an ordered SELECT without materializing the
// full key set.
type sqlKeys struct {
	rows *sql.Rows
}

func newSQLKeys(rows *sql.Rows) *sqlKeys {
	return &sqlKeys{rows: rows}
}

func (it *sqlKeys) Next() (int64, bool, error) {
	if !it.rows.Next() {
		return 0, false, it.rows.Err()
	}
	var k int64
	if err := it.rows.Scan(&k); err != nil {
		return 0, false, err
	}
	return k, true, nil
}

func (it *sqlKeys) Close() error {
	return it.rows.Close()
}

// sliceKeys is the in-memory iterator used by tests.
type sliceKeys struct {
	keys []int64
	pos  int
}

func newSliceKeys(keys []int64) *sliceKeys {
	return &sliceKeys{keys: keys}
}

func (it *sliceKeys) Next() (int64, bool, error) {
	if it.pos >= len(it.keys) {
		return 0, false, nil
	}
	k := it.keys[it.pos]
	it.pos++
	return k, true, nil
}

func (it *sliceKeys) Close() error { return nil }
