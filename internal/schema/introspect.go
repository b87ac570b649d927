package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"db-recon/internal/endpoint"
	"db-recon/internal/typemap"
)

// Introspect retrieves column metadata for the table named by the
// connection's endpoint, in natural ordinal order. It distinguishes an
// absent table (NotFoundError) from a transport failure
// (ConnectionError) so the caller can render a specific message.
func Introspect(ctx context.Context, c *Conn) ([]ColumnInfo, error) {
	if err := c.DB.PingContext(ctx); err != nil {
		return nil, &endpoint.ConnectionError{Side: c.Side, Endpoint: c.Endpoint, Err: err}
	}

	schemaName := c.Dialect.DefaultSchema(c.Endpoint.Schema)

	var one sql.NullString
	err := c.DB.QueryRowContext(ctx, c.Dialect.TableExistsQuery(), schemaName, c.Endpoint.Table).Scan(&one)
	if err == sql.ErrNoRows {
		return nil, &endpoint.NotFoundError{Side: c.Side, Kind: "table", Identifier: c.Endpoint.Describe()}
	}
	if err != nil {
		return nil, &endpoint.ConnectionError{Side: c.Side, Endpoint: c.Endpoint, Err: err}
	}

	rows, err := c.DB.QueryContext(ctx, c.Dialect.ColumnsQuery(), schemaName, c.Endpoint.Table)
	if err != nil {
		return nil, &endpoint.ConnectionError{Side: c.Side, Endpoint: c.Endpoint, Err: err}
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var name, nativeType, isNull, keyMarker, colDefault sql.NullString
		var ordinal sql.NullInt64
		if err := rows.Scan(&name, &nativeType, &isNull, &keyMarker, &colDefault, &ordinal); err != nil {
			return nil, fmt.Errorf("failed to scan column metadata for %s: %w", c.Endpoint.Describe(), err)
		}
		if !name.Valid {
			continue
		}
		col := ColumnInfo{
			Name:         name.String,
			NativeType:   nativeType.String,
			Normalized:   typemap.Normalize(c.Endpoint.Engine, nativeType.String),
			Nullable:     strings.HasPrefix(strings.ToUpper(isNull.String), "Y"),
			IsPrimaryKey: strings.Contains(keyMarker.String, "PRI"),
			Ordinal:      int(ordinal.Int64),
		}
		if colDefault.Valid {
			def := colDefault.String
			col.Default = &def
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, &endpoint.ConnectionError{Side: c.Side, Endpoint: c.Endpoint, Err: err}
	}
	return cols, nil
}

// FindColumn locates a column by case-insensitive name.
func FindColumn(cols []ColumnInfo, name string) (ColumnInfo, bool) {
	for _, c := range cols {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return ColumnInfo{}, false
}
