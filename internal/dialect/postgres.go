package dialect

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

type PostgresDialect struct{}

func (d *PostgresDialect) TableExistsQuery() string {
	return `SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2 AND table_type = 'BASE TABLE'`
}

func (d *PostgresDialect) ColumnsQuery() string {
	// data_type carries the spelled-out native form ("character varying",
	// "timestamp with time zone"). The subquery flags primary key members,
	// including each column of a composite key.
	return `SELECT
    c.column_name,
    c.data_type,
    c.is_nullable,
    COALESCE((SELECT 'PRI' FROM information_schema.table_constraints tc
     JOIN information_schema.key_column_usage kcu ON tc.constraint_name = kcu.constraint_name
     WHERE tc.constraint_type = 'PRIMARY KEY'
     AND kcu.table_schema = c.table_schema AND kcu.table_name = c.table_name
     AND kcu.column_name = c.column_name LIMIT 1), ''),
    c.column_default,
    c.ordinal_position
FROM information_schema.columns c
WHERE c.table_schema = $1 AND c.table_name = $2
ORDER BY c.ordinal_position`
}

func (d *PostgresDialect) DefaultSchema(input string) string {
	if input == "" {
		return "public"
	}
	return input
}

func (d *PostgresDialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *PostgresDialect) QualifiedTable(schema, table string) string {
	return d.QuoteIdentifier(d.DefaultSchema(schema)) + "." + d.QuoteIdentifier(table)
}

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index+1)
}

func (d *PostgresDialect) InsertQuery(table string, cols []string) string {
	vals := GeneratePlaceholders(len(cols), d.Placeholder)
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING", table, QuoteAll(cols, d.QuoteIdentifier), vals)
}

func (d *PostgresDialect) SupportsInsertIgnore() bool {
	return true
}

func (d *PostgresDialect) IsDuplicateKeyErr(err error) bool {
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "23505" // unique_violation
	}
	return false
}
