package migrate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"db-recon/internal/differ"
	"db-recon/internal/endpoint"
	"db-recon/internal/runlog"
	"db-recon/internal/schema"
)

// Executor runs execute-mode migrations and records every run in the
// log store. Runs are sequential within one call: no parallel writers
// touch the same target table from the same run, keeping the
// conflict-skip accounting correct.
type Executor struct {
	Store  *runlog.Store
	Logger *zap.Logger

	// OnBatch, when set, is invoked after each committed batch with the
	// number of rows it processed (progress reporting).
	OnBatch func(rows int)
}

// batchResult aggregates one batch's accounting.
type batchResult struct {
	inserted int64
	skipped  int64
	errored  int64
	lines    []string
}

// Execute migrates the rows whose keys fall inside the selected ranges
// and are absent from the target. Absence is re-checked at insert time
// via conflict-ignoring inserts or duplicate-key detection, so the run
// is idempotent and safe to re-run after partial failures. Row-level
// errors never abort the run; only total connectivity loss does.
func Execute(ctx context.Context, req *Request, ex *Executor) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.DryRun {
		return nil, fmt.Errorf("request is flagged dry-run; use Plan for a preview")
	}
	if ex == nil || ex.Store == nil {
		return nil, fmt.Errorf("execute mode requires a run log store")
	}
	if ex.Logger == nil {
		ex.Logger = zap.NewNop()
	}
	logger := ex.Logger

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
	if len(cmp.CommonColumns) == 0 {
		return nil, fmt.Errorf("no common columns between %s and %s; nothing to migrate",
			req.Source.Endpoint.Describe(), req.Target.Endpoint.Describe())
	}
	cols := cmp.CommonColumns

	var planned int64
	for _, kr := range req.Ranges {
		n, err := countKeysInRange(ctx, req.Source, req.KeyColumn, kr)
		if err != nil {
			return nil, err
		}
		planned += n
	}

	run := &runlog.Run{
		Source:       req.Source.Endpoint,
		Target:       req.Target.Endpoint,
		KeyColumn:    req.KeyColumn,
		Ranges:       req.Ranges,
		DryRun:       false,
		PlannedCount: planned,
	}
	runID, err := ex.Store.Create(run)
	if err != nil {
		return nil, fmt.Errorf("failed to record migration run: %w", err)
	}

	res := &Result{DryRun: false, MigrationLogID: runID}
	logger.Info("migration run started",
		zap.String("run_id", runID),
		zap.String("source", req.Source.Endpoint.Describe()),
		zap.String("target", req.Target.Endpoint.Describe()),
		zap.Int64("planned", planned))

	insertQuery := req.Target.Dialect.InsertQuery(req.Target.Qualified(), cols)

	for _, kr := range req.Ranges {
		if err := ctx.Err(); err != nil {
			// Aborts only happen at batch boundaries.
			ex.finish(res, runID, runlog.StatusIncomplete, "run aborted before range "+rangeLabel(kr))
			return res, err
		}
		if err := ex.migrateRange(ctx, req, kr, cols, insertQuery, res, runID); err != nil {
			// An operator abort is not a failure: committed batches stand
			// and the run reads back incomplete.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				ex.finish(res, runID, runlog.StatusIncomplete, "run aborted during range "+rangeLabel(kr))
				return res, err
			}
			ex.finish(res, runID, runlog.StatusFailed, fmt.Sprintf("range %s: %v", rangeLabel(kr), err))
			return res, err
		}
	}

	ex.finish(res, runID, runlog.StatusSuccess, fmt.Sprintf("run finished: inserted %d, skipped %d conflicts, %d row errors",
		res.InsertedCount, res.SkippedConflictsCount, res.ErrorsCount))
	logger.Info("migration run finished",
		zap.String("run_id", runID),
		zap.Int64("inserted", res.InsertedCount),
		zap.Int64("skipped", res.SkippedConflictsCount),
		zap.Int64("errors", res.ErrorsCount))
	return res, nil
}

// migrateRange streams source rows for one range and pushes them to the
// target in batches, one short-lived transaction per batch.
func (ex *Executor) migrateRange(ctx context.Context, req *Request, kr differ.KeyRange, cols []string, insertQuery string, res *Result, runID string) error {
	src := req.Source
	rows, err := src.DB.QueryContext(ctx, rangeSelectQuery(src, cols, req.KeyColumn), kr.Start, kr.End)
	if err != nil {
		return &endpoint.ConnectionError{Side: src.Side, Endpoint: src.Endpoint, Err: err}
	}
	defer rows.Close()

	batchNo := 0
	batch := make([][]any, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		batchNo++
		br, err := ex.runBatch(ctx, req.Target, insertQuery, batch)
		if err != nil {
			return err
		}
		ex.record(res, runID, kr, batchNo, br)
		if ex.OnBatch != nil {
			ex.OnBatch(len(batch))
		}
		batch = batch[:0]
		return nil
	}

	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			// A cancelled context closes the cursor under us; report the
			// abort, not the secondary scan failure.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("failed to scan source row: %w", err)
		}
		batch = append(batch, values)
		if len(batch) >= batchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := rows.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &endpoint.ConnectionError{Side: src.Side, Endpoint: src.Endpoint, Err: err}
	}
	// Aborts apply to the tail batch too: flushes only start on a live
	// context.
	if err := ctx.Err(); err != nil {
		return err
	}
	return flush()
}

// runBatch attempts the batch inside one transaction. If any row fails
// with a non-duplicate error the whole batch is rolled back and redone
// row by row, each row in its own transaction, so one bad row never
// poisons its neighbours (and engines that abort a transaction on
// statement failure, like postgres, stay consistent).
func (ex *Executor) runBatch(ctx context.Context, tgt *schema.Conn, insertQuery string, batch [][]any) (*batchResult, error) {
	br, err := ex.tryBatchTx(ctx, tgt, insertQuery, batch)
	if err != nil {
		return nil, err
	}
	if br != nil {
		return br, nil
	}
	return ex.runRowwise(ctx, tgt, insertQuery, batch)
}

// tryBatchTx returns (nil, nil) when the batch must be redone row-wise.
func (ex *Executor) tryBatchTx(ctx context.Context, tgt *schema.Conn, insertQuery string, batch [][]any) (*batchResult, error) {
	tx, err := tgt.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, &endpoint.ConnectionError{Side: tgt.Side, Endpoint: tgt.Endpoint, Err: err}
	}

	br := &batchResult{}
	for _, values := range batch {
		execRes, err := tx.ExecContext(ctx, insertQuery, values...)
		if err != nil {
			if tgt.Dialect.IsDuplicateKeyErr(err) {
				br.skipped++
				continue
			}
			tx.Rollback()
			return nil, nil
		}
		if tgt.Dialect.SupportsInsertIgnore() {
			affected, err := execRes.RowsAffected()
			if err == nil && affected == 0 {
				br.skipped++
				continue
			}
		}
		br.inserted++
	}
	if err := tx.Commit(); err != nil {
		return nil, &endpoint.ConnectionError{Side: tgt.Side, Endpoint: tgt.Endpoint, Err: err}
	}
	return br, nil
}

// runRowwise is the degraded path: one tiny transaction per row, so
// per-row failures are recorded and the rest of the batch still lands.
func (ex *Executor) runRowwise(ctx context.Context, tgt *schema.Conn, insertQuery string, batch [][]any) (*batchResult, error) {
	br := &batchResult{}
	for _, values := range batch {
		tx, err := tgt.DB.BeginTx(ctx, nil)
		if err != nil {
			return nil, &endpoint.ConnectionError{Side: tgt.Side, Endpoint: tgt.Endpoint, Err: err}
		}
		execRes, err := tx.ExecContext(ctx, insertQuery, values...)
		if err != nil {
			tx.Rollback()
			if tgt.Dialect.IsDuplicateKeyErr(err) {
				br.skipped++
				continue
			}
			br.errored++
			br.lines = append(br.lines, fmt.Sprintf("row error: %v", err))
			continue
		}
		if tgt.Dialect.SupportsInsertIgnore() {
			if affected, aerr := execRes.RowsAffected(); aerr == nil && affected == 0 {
				tx.Commit()
				br.skipped++
				continue
			}
		}
		if err := tx.Commit(); err != nil {
			return nil, &endpoint.ConnectionError{Side: tgt.Side, Endpoint: tgt.Endpoint, Err: err}
		}
		br.inserted++
	}
	return br, nil
}

// record folds one batch's accounting into the result and the persisted
// run, so a crash mid-run leaves an accurate partial record.
func (ex *Executor) record(res *Result, runID string, kr differ.KeyRange, batchNo int, br *batchResult) {
	res.InsertedCount += br.inserted
	res.SkippedConflictsCount += br.skipped
	res.ErrorsCount += br.errored

	line := fmt.Sprintf("range %s batch %d: inserted %d, skipped %d, errors %d",
		rangeLabel(kr), batchNo, br.inserted, br.skipped, br.errored)
	res.BatchLogs = append(res.BatchLogs, line)
	ex.appendLine(runID, line)
	for _, l := range br.lines {
		res.BatchLogs = append(res.BatchLogs, l)
		ex.appendLine(runID, l)
	}
	ex.updateCounts(res, runID)
}

func (ex *Executor) finish(res *Result, runID, status, line string) {
	ex.appendLine(runID, line)
	res.BatchLogs = append(res.BatchLogs, line)
	ex.updateCounts(res, runID)
	if err := ex.Store.Finalize(runID, status); err != nil {
		ex.Logger.Warn("failed to finalize run record",
			zap.String("run_id", runID), zap.String("status", status), zap.Error(err))
	}
}

// Audit-store failures must not abort a migration that is otherwise
// landing rows, but they can't vanish either: the persisted record is
// now behind the in-memory result, and the log says so.
func (ex *Executor) appendLine(runID, line string) {
	if err := ex.Store.AppendLine(runID, line); err != nil {
		ex.Logger.Warn("failed to append run log line",
			zap.String("run_id", runID), zap.Error(err))
	}
}

func (ex *Executor) updateCounts(res *Result, runID string) {
	if err := ex.Store.UpdateCounts(runID, res.InsertedCount, res.SkippedConflictsCount, res.ErrorsCount); err != nil {
		ex.Logger.Warn("failed to update run counts",
			zap.String("run_id", runID), zap.Error(err))
	}
}

func rangeSelectQuery(src *schema.Conn, cols []string, keyColumn string) string {
	key := src.Dialect.QuoteIdentifier(keyColumn)
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s BETWEEN %s AND %s ORDER BY %s",
		quotedList(src, cols), src.Qualified(), key,
		src.Dialect.Placeholder(0), src.Dialect.Placeholder(1), key)
}

func quotedList(c *schema.Conn, cols []string) string {
	quoted := make([]string, len(cols))
	for i, name := range cols {
		quoted[i] = c.Dialect.QuoteIdentifier(name)
	}
	return strings.Join(quoted, ", ")
}

func rangeLabel(kr differ.KeyRange) string {
	if kr.Start == kr.End {
		return fmt.Sprintf("%d", kr.Start)
	}
	return fmt.Sprintf("%d-%d", kr.Start, kr.End)
}
