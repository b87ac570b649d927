package dialect

import (
	"fmt"
	"strings"
)

type OracleDialect struct{}

func (d *OracleDialect) TableExistsQuery() string {
	// go-ora binds plain args positionally, so the (schema, table) args
	// must each appear exactly once, in that order. Oracle reads an
	// empty string as NULL, which NVL turns into the session's current
	// schema.
	return `SELECT TABLE_NAME FROM ALL_TABLES WHERE OWNER = UPPER(NVL(:1, SYS_CONTEXT('USERENV', 'CURRENT_SCHEMA'))) AND TABLE_NAME = UPPER(:2)`
}

func (d *OracleDialect) ColumnsQuery() string {
	// NUMBER is resolved to INTEGER or DECIMAL by scale up front, since
	// ALL_TAB_COLUMNS reports both as plain NUMBER. Positional binds
	// again: :1 (schema) before :2 (table), once each.
	return `
SELECT
    t.COLUMN_NAME,
    CASE
        WHEN t.DATA_TYPE = 'NUMBER' AND COALESCE(t.DATA_SCALE, 0) > 0 THEN 'DECIMAL'
        WHEN t.DATA_TYPE = 'NUMBER' THEN 'INTEGER'
        ELSE t.DATA_TYPE
    END,
    CASE WHEN t.NULLABLE = 'Y' THEN 'YES' ELSE 'NO' END,
    CASE WHEN p.COLUMN_NAME IS NOT NULL THEN 'PRI' ELSE '' END,
    NULL, -- DATA_DEFAULT is a LONG column and cannot be scanned portably
    t.COLUMN_ID
FROM ALL_TAB_COLUMNS t
LEFT JOIN (
    SELECT cc.OWNER, cc.TABLE_NAME, cc.COLUMN_NAME
    FROM ALL_CONS_COLUMNS cc
    JOIN ALL_CONSTRAINTS uc
        ON cc.CONSTRAINT_NAME = uc.CONSTRAINT_NAME AND cc.OWNER = uc.OWNER
    WHERE uc.CONSTRAINT_TYPE = 'P'
) p ON t.OWNER = p.OWNER AND t.TABLE_NAME = p.TABLE_NAME AND t.COLUMN_NAME = p.COLUMN_NAME
WHERE t.OWNER = UPPER(NVL(:1, SYS_CONTEXT('USERENV', 'CURRENT_SCHEMA')))
  AND t.TABLE_NAME = UPPER(:2)
ORDER BY t.COLUMN_ID`
}

func (d *OracleDialect) DefaultSchema(input string) string {
	return input
}

func (d *OracleDialect) QuoteIdentifier(name string) string {
	return `"` + strings.ToUpper(strings.ReplaceAll(name, `"`, `""`)) + `"`
}

func (d *OracleDialect) QualifiedTable(schema, table string) string {
	if schema == "" {
		return d.QuoteIdentifier(table)
	}
	return d.QuoteIdentifier(schema) + "." + d.QuoteIdentifier(table)
}

func (d *OracleDialect) Placeholder(index int) string {
	// Oracle uses :1, :2, etc. (1-based index)
	return fmt.Sprintf(":%d", index+1)
}

func (d *OracleDialect) InsertQuery(table string, cols []string) string {
	vals := GeneratePlaceholders(len(cols), d.Placeholder)
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, QuoteAll(cols, d.QuoteIdentifier), vals)
}

func (d *OracleDialect) SupportsInsertIgnore() bool {
	return false
}

func (d *OracleDialect) IsDuplicateKeyErr(err error) bool {
	// go-ora surfaces server errors with the ORA code in the message.
	return err != nil && strings.Contains(err.Error(), "ORA-00001")
}
