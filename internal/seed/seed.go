// Package seed fills a table with synthetic rows so the compare and
// migrate flow can be exercised against disposable data.
package seed

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"go.uber.org/zap"

	"db-recon/internal/schema"
	"db-recon/internal/typemap"
)

// Fill inserts count synthetic rows into the connection's table.
// Integer primary keys continue sequentially past the current maximum
// so repeat fills extend the key space instead of colliding; all other
// values are generated from the column's canonical type. Conflicting
// rows are skipped, not errors.
func Fill(ctx context.Context, c *schema.Conn, count int, logger *zap.Logger) (int, error) {
	cols, err := schema.Introspect(ctx, c)
	if err != nil {
		return 0, err
	}
	if len(cols) == 0 {
		return 0, fmt.Errorf("table %s has no columns", c.Endpoint.Describe())
	}

	nextKey := int64(1)
	keyCol := pickIntegerPK(cols)
	if keyCol != "" {
		var maxKey sql.NullInt64
		q := fmt.Sprintf("SELECT MAX(%s) FROM %s", c.Dialect.QuoteIdentifier(keyCol), c.Qualified())
		if err := c.DB.QueryRowContext(ctx, q).Scan(&maxKey); err != nil {
			return 0, fmt.Errorf("failed to read current max key: %w", err)
		}
		if maxKey.Valid {
			nextKey = maxKey.Int64 + 1
		}
	}

	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name
	}
	query := c.Dialect.InsertQuery(c.Qualified(), names)

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for i := 0; i < count; i++ {
		values := make([]any, len(cols))
		for j, col := range cols {
			if strings.EqualFold(col.Name, keyCol) {
				values[j] = nextKey
				nextKey++
				continue
			}
			values[j] = randomValue(col)
		}
		res, err := tx.ExecContext(ctx, query, values...)
		if err != nil {
			if c.Dialect.IsDuplicateKeyErr(err) {
				continue
			}
			return inserted, fmt.Errorf("seed insert failed: %w", err)
		}
		if affected, aerr := res.RowsAffected(); aerr == nil && affected == 0 {
			continue
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit seed transaction: %w", err)
	}

	logger.Info("seeded table",
		zap.String("table", c.Endpoint.Describe()),
		zap.Int("inserted", inserted))
	return inserted, nil
}

// pickIntegerPK returns the single integer primary-key column, if any.
func pickIntegerPK(cols []schema.ColumnInfo) string {
	var pks []schema.ColumnInfo
	for _, col := range cols {
		if col.IsPrimaryKey {
			pks = append(pks, col)
		}
	}
	if len(pks) == 1 && pks[0].Normalized == typemap.TypeInteger {
		return pks[0].Name
	}
	return ""
}

func randomValue(col schema.ColumnInfo) any {
	if col.Nullable && gofakeit.Number(0, 9) == 0 {
		return nil
	}
	switch col.Normalized {
	case typemap.TypeInteger:
		return gofakeit.Number(1, 30000)
	case typemap.TypeDecimal:
		return gofakeit.Price(0.99, 9999.99)
	case typemap.TypeText:
		return textValue(col.Name)
	case typemap.TypeDatetime:
		t := gofakeit.DateRange(time.Now().AddDate(-1, 0, 0), time.Now())
		return t.Format("2006-01-02 15:04:05")
	case typemap.TypeBoolean:
		return gofakeit.Bool()
	case typemap.TypeBinary:
		return []byte(gofakeit.LetterN(8))
	default:
		return nil
	}
}

// textValue leans on the column name so seeded data looks plausible.
func textValue(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "email"):
		return gofakeit.Email()
	case strings.Contains(lower, "phone"):
		return gofakeit.Phone()
	case strings.Contains(lower, "name"):
		return gofakeit.Name()
	case strings.Contains(lower, "address"):
		return gofakeit.Street()
	case strings.Contains(lower, "city"):
		return gofakeit.City()
	case strings.Contains(lower, "country"):
		return gofakeit.Country()
	default:
		return gofakeit.Sentence(3)
	}
}
