package dialect

// Dialect abstracts database-specific operations.
//
// Introspection queries take (schema, table) bind arguments in that
// order and already embed the engine's placeholder style. The columns
// query must return exactly six columns per row, in the table's natural
// ordinal order:
//
//	column_name, native_type, is_nullable, key_marker, column_default, ordinal_position
//
// where is_nullable starts with "Y" for nullable columns and key_marker
// contains "PRI" for every member of the primary key (composite keys
// flag each member).
type Dialect interface {
	// Metadata Queries (Schema Introspection)
	TableExistsQuery() string
	ColumnsQuery() string

	// Identifier Handling
	DefaultSchema(input string) string
	QuoteIdentifier(name string) string
	QualifiedTable(schema, table string) string
	Placeholder(index int) string // Returns ?, $1, @p1, :1

	// Query Generation (Execute Mode)
	// InsertQuery receives a pre-qualified table name and unquoted
	// column names. Engines with a native conflict-ignoring insert
	// (INSERT IGNORE, ON CONFLICT DO NOTHING) emit it and report
	// SupportsInsertIgnore() == true; the executor then counts a
	// zero-affected-rows insert as a skipped conflict. The others emit
	// a plain INSERT and rely on IsDuplicateKeyErr.
	InsertQuery(table string, cols []string) string
	SupportsInsertIgnore() bool
	IsDuplicateKeyErr(err error) bool
}
