// Package differ computes the key set difference between a source and a
// target table and compresses it into contiguous ranges, so tables with
// millions of rows can be compared without transferring full row sets.
package differ

import (
	"context"
	"database/sql"
	"fmt"

	"db-recon/internal/endpoint"
	"db-recon/internal/schema"
	"db-recon/internal/typemap"
)

// Options tunes range compression and truncation ceilings. Zero values
// fall back to the defaults.
type Options struct {
	MaxRanges      int
	MaxMissingKeys int64
}

const (
	defaultMaxRanges      = 1000
	defaultMaxMissingKeys = 1_000_000
)

func (o Options) withDefaults() Options {
	if o.MaxRanges <= 0 {
		o.MaxRanges = defaultMaxRanges
	}
	if o.MaxMissingKeys <= 0 {
		o.MaxMissingKeys = defaultMaxMissingKeys
	}
	return o
}

// SideStats carries the cheap aggregate numbers for one side.
type SideStats struct {
	RowCount int64  `json:"row_count"`
	KeyMin   *int64 `json:"key_min,omitempty"`
	KeyMax   *int64 `json:"key_max,omitempty"`
}

// Summary is the result of one data comparison. Transient: computed
// fresh per call, never persisted.
type Summary struct {
	KeyColumn string    `json:"key_column"`
	Source    SideStats `json:"source"`
	Target    SideStats `json:"target"`

	KeysOnlyInSourceCount int64 `json:"keys_only_in_source_count"`
	KeysOnlyInTargetCount int64 `json:"keys_only_in_target_count"`
	KeysInBothCount       int64 `json:"keys_in_both_count"`

	MissingInTargetRanges []KeyRange `json:"missing_in_target_ranges"`
	MissingInSourceRanges []KeyRange `json:"missing_in_source_ranges"`

	Truncated         bool   `json:"truncated"`
	TruncationMessage string `json:"truncation_message,omitempty"`
}

// CompareData diffs the row populations of two tables by an integer key
// column. The key column must exist on both sides and normalize to the
// integer canonical type; anything else fails before any data movement.
func CompareData(ctx context.Context, src, tgt *schema.Conn, keyColumn string, opts Options) (*Summary, error) {
	opts = opts.withDefaults()

	if err := ValidateKeyColumn(ctx, src, keyColumn); err != nil {
		return nil, err
	}
	if err := ValidateKeyColumn(ctx, tgt, keyColumn); err != nil {
		return nil, err
	}

	summary := &Summary{KeyColumn: keyColumn}

	srcStats, err := fetchStats(ctx, src, keyColumn)
	if err != nil {
		return nil, err
	}
	tgtStats, err := fetchStats(ctx, tgt, keyColumn)
	if err != nil {
		return nil, err
	}
	summary.Source = srcStats
	summary.Target = tgtStats

	srcKeys, err := openKeyStream(ctx, src, keyColumn)
	if err != nil {
		return nil, err
	}
	defer srcKeys.Close()
	tgtKeys, err := openKeyStream(ctx, tgt, keyColumn)
	if err != nil {
		return nil, err
	}
	defer tgtKeys.Close()

	missingInTarget := newRangeAccum(opts.MaxRanges, opts.MaxMissingKeys)
	missingInSource := newRangeAccum(opts.MaxRanges, opts.MaxMissingKeys)

	matched, err := mergeDiff(srcKeys, tgtKeys, missingInTarget, missingInSource)
	if err != nil {
		return nil, err
	}

	summary.KeysInBothCount = matched
	summary.KeysOnlyInSourceCount = missingInTarget.total
	summary.KeysOnlyInTargetCount = missingInSource.total
	summary.MissingInTargetRanges = missingInTarget.ranges
	summary.MissingInSourceRanges = missingInSource.ranges

	if missingInTarget.truncated || missingInSource.truncated {
		summary.Truncated = true
		summary.TruncationMessage = fmt.Sprintf(
			"range emission stopped early after hitting a ceiling (max %d ranges or %d missing keys per direction); all counts above are a lower bound, not the whole difference",
			opts.MaxRanges, opts.MaxMissingKeys)
	}
	return summary, nil
}

// ValidateKeyColumn checks presence and orderability of the key column
// on one side.
func ValidateKeyColumn(ctx context.Context, c *schema.Conn, keyColumn string) error {
	cols, err := schema.Introspect(ctx, c)
	if err != nil {
		return err
	}
	col, ok := schema.FindColumn(cols, keyColumn)
	if !ok {
		return &endpoint.InvalidKeyColumnError{Column: keyColumn, Side: c.Side, Reason: "column does not exist"}
	}
	if !typemap.Orderable(col.Normalized) {
		return &endpoint.InvalidKeyColumnError{
			Column: keyColumn,
			Side:   c.Side,
			Reason: fmt.Sprintf("native type %q normalizes to %s, need integer", col.NativeType, col.Normalized),
		}
	}
	return nil
}

// fetchStats runs the cheap aggregate query for one side: row count and
// key min/max, never a full value scan.
func fetchStats(ctx context.Context, c *schema.Conn, keyColumn string) (SideStats, error) {
	key := c.Dialect.QuoteIdentifier(keyColumn)
	query := fmt.Sprintf("SELECT COUNT(*), MIN(%s), MAX(%s) FROM %s", key, key, c.Qualified())

	var stats SideStats
	var minKey, maxKey sql.NullInt64
	if err := c.DB.QueryRowContext(ctx, query).Scan(&stats.RowCount, &minKey, &maxKey); err != nil {
		return stats, &endpoint.ConnectionError{Side: c.Side, Endpoint: c.Endpoint, Err: err}
	}
	if minKey.Valid {
		stats.KeyMin = &minKey.Int64
	}
	if maxKey.Valid {
		stats.KeyMax = &maxKey.Int64
	}
	return stats, nil
}

// openKeyStream starts the ordered, read-only key cursor for one side.
// NULL keys cannot participate in an ordered diff and are excluded.
func openKeyStream(ctx context.Context, c *schema.Conn, keyColumn string) (KeyIterator, error) {
	key := c.Dialect.QuoteIdentifier(keyColumn)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IS NOT NULL ORDER BY %s", key, c.Qualified(), key, key)
	rows, err := c.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, &endpoint.ConnectionError{Side: c.Side, Endpoint: c.Endpoint, Err: err}
	}
	return newSQLKeys(rows), nil
}
