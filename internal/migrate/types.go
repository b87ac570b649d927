// Package migrate plans and executes insert-only row migration for
// selected key ranges. Execute runs are idempotent: rows already
// present in the target are skipped, never updated or deleted.
package migrate

import (
	"fmt"

	"db-recon/internal/differ"
	"db-recon/internal/schema"
)

// ModeInsertMissingOnly is the sole supported migration mode.
const ModeInsertMissingOnly = "INSERT_MISSING_ONLY"

// batchSize is the number of rows moved per target transaction. Each
// batch commits on its own so a failure partway through a run only
// rolls back the current batch.
const batchSize = 500

// Request is the full migrate call shape. The engine validates the
// shape is complete rather than silently accepting partial parameters;
// in particular the range list is always the operator's explicit
// selection, never assumed to equal the full missing set.
type Request struct {
	Source    *schema.Conn
	Target    *schema.Conn
	KeyColumn string
	Mode      string
	Ranges    []differ.KeyRange
	DryRun    bool
}

func (r *Request) validate() error {
	switch {
	case r.Source == nil || r.Target == nil:
		return fmt.Errorf("both source and target endpoints are required")
	case r.KeyColumn == "":
		return fmt.Errorf("a key column is required")
	case r.Mode != ModeInsertMissingOnly:
		return fmt.Errorf("unsupported mode %q (only %s)", r.Mode, ModeInsertMissingOnly)
	case len(r.Ranges) == 0:
		return fmt.Errorf("at least one key range must be selected")
	}
	for _, kr := range r.Ranges {
		if kr.End < kr.Start {
			return fmt.Errorf("range %d-%d ends before it starts", kr.Start, kr.End)
		}
	}
	return nil
}

// Result is either a dry-run plan or an execute outcome, flagged by
// DryRun.
type Result struct {
	DryRun bool `json:"dry_run"`

	// Dry-run shape
	PlannedInsertsCount int64    `json:"planned_inserts_count,omitempty"`
	ColumnsToInsert     []string `json:"columns_to_insert,omitempty"`
	PotentialIssues     []string `json:"potential_issues,omitempty"`

	// Execute shape
	InsertedCount         int64    `json:"inserted_count"`
	SkippedConflictsCount int64    `json:"skipped_conflicts_count"`
	ErrorsCount           int64    `json:"errors_count"`
	MigrationLogID        string   `json:"migration_log_id,omitempty"`
	BatchLogs             []string `json:"batch_logs,omitempty"`
}
