package dialect

import (
	"errors"
	"fmt"
	"strings"

	mssql "github.com/denisenkom/go-mssqldb"
)

type MSSQLDialect struct{}

func (d *MSSQLDialect) TableExistsQuery() string {
	return `SELECT 1 FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2 AND TABLE_TYPE = 'BASE TABLE'`
}

func (d *MSSQLDialect) ColumnsQuery() string {
	return `
		SELECT
			c.COLUMN_NAME,
			c.DATA_TYPE,
			c.IS_NULLABLE,
			CASE WHEN pk.COLUMN_NAME IS NOT NULL THEN 'PRI' ELSE '' END,
			c.COLUMN_DEFAULT,
			c.ORDINAL_POSITION
		FROM INFORMATION_SCHEMA.COLUMNS c
		LEFT JOIN (
			SELECT kcu.TABLE_NAME, kcu.COLUMN_NAME
			FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
			JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
				ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
			WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY' AND tc.TABLE_SCHEMA = @p1
		) pk ON c.TABLE_NAME = pk.TABLE_NAME AND c.COLUMN_NAME = pk.COLUMN_NAME
		WHERE c.TABLE_SCHEMA = @p1 AND c.TABLE_NAME = @p2
		ORDER BY c.ORDINAL_POSITION
	`
}

func (d *MSSQLDialect) DefaultSchema(input string) string {
	if input == "" {
		return "dbo"
	}
	return input
}

func (d *MSSQLDialect) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (d *MSSQLDialect) QualifiedTable(schema, table string) string {
	return d.QuoteIdentifier(d.DefaultSchema(schema)) + "." + d.QuoteIdentifier(table)
}

func (d *MSSQLDialect) Placeholder(index int) string {
	return fmt.Sprintf("@p%d", index+1)
}

func (d *MSSQLDialect) InsertQuery(table string, cols []string) string {
	vals := GeneratePlaceholders(len(cols), d.Placeholder)
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, QuoteAll(cols, d.QuoteIdentifier), vals)
}

func (d *MSSQLDialect) SupportsInsertIgnore() bool {
	return false
}

func (d *MSSQLDialect) IsDuplicateKeyErr(err error) bool {
	var me mssql.Error
	if errors.As(err, &me) {
		// 2627: unique constraint violation, 2601: duplicate key in unique index
		return me.Number == 2627 || me.Number == 2601
	}
	return false
}
