package schema

import (
	"database/sql"

	"db-recon/internal/dialect"
	"db-recon/internal/endpoint"
	"db-recon/internal/typemap"
)

// Conn bundles everything needed to talk to one side of a comparison.
type Conn struct {
	DB       *sql.DB
	Dialect  dialect.Dialect
	Endpoint endpoint.Endpoint
	Side     endpoint.Side
}

// Qualified returns the dialect-quoted, schema-qualified table name.
func (c *Conn) Qualified() string {
	return c.Dialect.QualifiedTable(c.Endpoint.Schema, c.Endpoint.Table)
}

// ColumnInfo describes one column of one introspected table. Produced
// fresh on every call; schemas can change between calls, so nothing is
// cached.
type ColumnInfo struct {
	Name         string       `json:"name"`
	NativeType   string       `json:"native_type"`
	Normalized   typemap.Type `json:"normalized_type"`
	Nullable     bool         `json:"nullable"`
	IsPrimaryKey bool         `json:"is_primary_key"`
	Default      *string      `json:"default,omitempty"`
	Ordinal      int          `json:"ordinal"`
}

// TypeMismatch records a common column whose normalized types differ.
// Native strings are included for human diagnosis even though the
// decision is made on normalized types.
type TypeMismatch struct {
	Column           string       `json:"column"`
	SourceNative     string       `json:"source_native_type"`
	TargetNative     string       `json:"target_native_type"`
	SourceNormalized typemap.Type `json:"source_normalized_type"`
	TargetNormalized typemap.Type `json:"target_normalized_type"`
}

// CompareResult aggregates both column lists and the derived sets.
// Column names are matched case-insensitively; the derived lists report
// the source-side spelling (target-side for extras).
type CompareResult struct {
	SourceColumns   []ColumnInfo   `json:"source_columns"`
	TargetColumns   []ColumnInfo   `json:"target_columns"`
	CommonColumns   []string       `json:"common_columns"`
	MissingInTarget []string       `json:"missing_in_target_columns"`
	ExtraInTarget   []string       `json:"extra_in_target_columns"`
	TypeMismatches  []TypeMismatch `json:"type_mismatches"`
	SuggestedKey    string         `json:"auto_detected_key,omitempty"`
	KeyWarning      string         `json:"key_warning,omitempty"`
}
