package schema

import (
	"context"
	"strings"

	"db-recon/internal/typemap"
)

// Compare introspects both sides and diffs their column schemas.
func Compare(ctx context.Context, src, tgt *Conn) (*CompareResult, error) {
	srcCols, err := Introspect(ctx, src)
	if err != nil {
		return nil, err
	}
	tgtCols, err := Introspect(ctx, tgt)
	if err != nil {
		return nil, err
	}
	return CompareColumns(srcCols, tgtCols), nil
}

// CompareColumns computes the schema diff over already-introspected
// column lists. Names are matched case-insensitively (folded to lower);
// common columns are reported with the source-side spelling, extras
// with the target-side spelling. Type mismatches are decided on
// normalized types, never on native strings.
func CompareColumns(srcCols, tgtCols []ColumnInfo) *CompareResult {
	res := &CompareResult{
		SourceColumns: srcCols,
		TargetColumns: tgtCols,
	}

	tgtByName := make(map[string]ColumnInfo, len(tgtCols))
	for _, c := range tgtCols {
		tgtByName[strings.ToLower(c.Name)] = c
	}
	srcNames := make(map[string]bool, len(srcCols))

	for _, sc := range srcCols {
		key := strings.ToLower(sc.Name)
		srcNames[key] = true
		tc, ok := tgtByName[key]
		if !ok {
			res.MissingInTarget = append(res.MissingInTarget, sc.Name)
			continue
		}
		res.CommonColumns = append(res.CommonColumns, sc.Name)
		if sc.Normalized != tc.Normalized {
			res.TypeMismatches = append(res.TypeMismatches, TypeMismatch{
				Column:           sc.Name,
				SourceNative:     sc.NativeType,
				TargetNative:     tc.NativeType,
				SourceNormalized: sc.Normalized,
				TargetNormalized: tc.Normalized,
			})
		}
	}
	for _, tc := range tgtCols {
		if !srcNames[strings.ToLower(tc.Name)] {
			res.ExtraInTarget = append(res.ExtraInTarget, tc.Name)
		}
	}

	res.SuggestedKey, res.KeyWarning = suggestKey(srcCols, res.CommonColumns)
	return res
}

// suggestKey picks a key-column candidate, or explains why it cannot.
// Preference order: a single-column integer primary key on the source
// that both sides share, then an integer/decimal column with a
// conventional identifier name. A poor key is never picked silently; no
// confident candidate means an empty suggestion plus a warning.
func suggestKey(srcCols []ColumnInfo, common []string) (string, string) {
	commonSet := make(map[string]bool, len(common))
	for _, name := range common {
		commonSet[strings.ToLower(name)] = true
	}

	var pkCols []ColumnInfo
	for _, c := range srcCols {
		if c.IsPrimaryKey {
			pkCols = append(pkCols, c)
		}
	}

	switch {
	case len(pkCols) == 1:
		pk := pkCols[0]
		if !commonSet[strings.ToLower(pk.Name)] {
			return "", "source primary key " + pk.Name + " is missing from the target; pick a key column manually"
		}
		if pk.Normalized != typemap.TypeInteger {
			return "", "source primary key " + pk.Name + " is not an integer column; pick an orderable key manually"
		}
		return pk.Name, ""
	case len(pkCols) > 1:
		return "", "source primary key is composite; pick a single key column manually"
	}

	// No PK flagged anywhere: fall back to a naming heuristic, still
	// restricted to exact numeric canonical types.
	var candidate string
	for _, c := range srcCols {
		if !commonSet[strings.ToLower(c.Name)] {
			continue
		}
		if c.Normalized != typemap.TypeInteger && c.Normalized != typemap.TypeDecimal {
			continue
		}
		lower := strings.ToLower(c.Name)
		if lower == "id" {
			return c.Name, "no primary key flagged on source; suggested by column name"
		}
		if candidate == "" && strings.HasSuffix(lower, "_id") {
			candidate = c.Name
		}
	}
	if candidate != "" {
		return candidate, "no primary key flagged on source; suggested by column name"
	}
	return "", "no primary key flagged on source and no conventional numeric identifier column found; pick a key column manually"
}
