package migrate

import (
	"context"
	"fmt"

	"db-recon/internal/differ"
	"db-recon/internal/endpoint"
	"db-recon/internal/schema"
)

// Plan previews a migration without opening a write transaction against
// the target. It re-derives the common column set, re-queries the
// source for key counts in the selected ranges, and surfaces potential
// issues as warnings so the operator decides whether to proceed.
func Plan(ctx context.Context, req *Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if !req.DryRun {
		return nil, fmt.Errorf("request is not flagged dry-run; use Execute to apply changes")
	}
	if err := differ.ValidateKeyColumn(ctx, req.Source, req.KeyColumn); err != nil {
		return nil, err
	}
	if err := differ.ValidateKeyColumn(ctx, req.Target, req.KeyColumn); err != nil {
		return nil, err
	}

	cmp, err := schema.Compare(ctx, req.Source, req.Target)
	if err != nil {
		return nil, err
	}

	res := &Result{
		DryRun:          true,
		ColumnsToInsert: cmp.CommonColumns,
		PotentialIssues: DetectIssues(cmp),
	}

	for _, kr := range req.Ranges {
		srcN, err := countKeysInRange(ctx, req.Source, req.KeyColumn, kr)
		if err != nil {
			return nil, err
		}
		tgtN, err := countKeysInRange(ctx, req.Target, req.KeyColumn, kr)
		if err != nil {
			return nil, err
		}
		// An estimate: keys already in the target are re-checked and
		// skipped at execute time, not trusted from this count.
		if planned := srcN - tgtN; planned > 0 {
			res.PlannedInsertsCount += planned
		}
	}
	return res, nil
}

// DetectIssues inspects a schema comparison for conditions likely to
// hurt an insert run. All are warnings, not hard failures.
func DetectIssues(cmp *schema.CompareResult) []string {
	var issues []string

	if len(cmp.CommonColumns) == 0 {
		issues = append(issues, "no common columns between source and target; nothing can be inserted")
	}

	common := make(map[string]bool, len(cmp.CommonColumns))
	for _, name := range cmp.CommonColumns {
		common[name] = true
	}
	for _, mm := range cmp.TypeMismatches {
		issues = append(issues, fmt.Sprintf(
			"column %s: source %s (%s) vs target %s (%s); values may fail type coercion on insert",
			mm.Column, mm.SourceNative, mm.SourceNormalized, mm.TargetNative, mm.TargetNormalized))
	}
	for _, name := range cmp.CommonColumns {
		sc, _ := schema.FindColumn(cmp.SourceColumns, name)
		tc, _ := schema.FindColumn(cmp.TargetColumns, name)
		if sc.Nullable && !tc.Nullable {
			issues = append(issues, fmt.Sprintf(
				"column %s is nullable on source but NOT NULL on target; rows with NULL values will error", name))
		}
	}
	for _, name := range cmp.ExtraInTarget {
		tc, ok := schema.FindColumn(cmp.TargetColumns, name)
		if ok && !tc.Nullable && tc.Default == nil {
			issues = append(issues, fmt.Sprintf(
				"target column %s is NOT NULL without a default and absent from source; every insert will error", name))
		}
	}
	return issues
}

func countKeysInRange(ctx context.Context, c *schema.Conn, keyColumn string, kr differ.KeyRange) (int64, error) {
	key := c.Dialect.QuoteIdentifier(keyColumn)
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s BETWEEN %s AND %s",
		c.Qualified(), key, c.Dialect.Placeholder(0), c.Dialect.Placeholder(1))
	var n int64
	if err := c.DB.QueryRowContext(ctx, query, kr.Start, kr.End).Scan(&n); err != nil {
		return 0, &endpoint.ConnectionError{Side: c.Side, Endpoint: c.Endpoint, Err: err}
	}
	return n, nil
}
