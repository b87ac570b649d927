package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"db-recon/internal/differ"
	"db-recon/internal/schema"
	"db-recon/internal/typemap"
)

func TestRequestValidate(t *testing.T) {
	src := &schema.Conn{}
	tgt := &schema.Conn{}
	good := Request{
		Source:    src,
		Target:    tgt,
		KeyColumn: "id",
		Mode:      ModeInsertMissingOnly,
		Ranges:    []differ.KeyRange{{Start: 1, End: 5}},
	}
	require.NoError(t, good.validate())

	cases := []struct {
		name   string
		mutate func(*Request)
		want   string
	}{
		{"missing source", func(r *Request) { r.Source = nil }, "source and target"},
		{"missing target", func(r *Request) { r.Target = nil }, "source and target"},
		{"missing key column", func(r *Request) { r.KeyColumn = "" }, "key column"},
		{"empty mode", func(r *Request) { r.Mode = "" }, "unsupported mode"},
		{"unknown mode", func(r *Request) { r.Mode = "UPSERT" }, "unsupported mode"},
		{"no ranges", func(r *Request) { r.Ranges = nil }, "at least one key range"},
		{"inverted range", func(r *Request) {
			r.Ranges = []differ.KeyRange{{Start: 9, End: 3}}
		}, "ends before it starts"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := good
			tc.mutate(&req)
			err := req.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func issueCol(name string, norm typemap.Type, nullable bool) schema.ColumnInfo {
	return schema.ColumnInfo{Name: name, NativeType: string(norm), Normalized: norm, Nullable: nullable}
}

func TestDetectIssuesCleanSchemas(t *testing.T) {
	src := []schema.ColumnInfo{
		issueCol("id", typemap.TypeInteger, false),
		issueCol("name", typemap.TypeText, true),
	}
	cmp := schema.CompareColumns(src, src)

	assert.Empty(t, DetectIssues(cmp))
}

func TestDetectIssuesNoCommonColumns(t *testing.T) {
	src := []schema.ColumnInfo{issueCol("a", typemap.TypeText, true)}
	tgt := []schema.ColumnInfo{issueCol("b", typemap.TypeText, true)}
	cmp := schema.CompareColumns(src, tgt)

	issues := DetectIssues(cmp)
	require.NotEmpty(t, issues)
	assert.Contains(t, issues[0], "no common columns")
}

func TestDetectIssuesTypeMismatch(t *testing.T) {
	src := []schema.ColumnInfo{
		issueCol("id", typemap.TypeInteger, false),
		issueCol("created", typemap.TypeText, true),
	}
	tgt := []schema.ColumnInfo{
		issueCol("id", typemap.TypeInteger, false),
		issueCol("created", typemap.TypeDatetime, true),
	}
	cmp := schema.CompareColumns(src, tgt)

	issues := DetectIssues(cmp)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "column created")
	assert.Contains(t, issues[0], "type coercion")
}

func TestDetectIssuesNullabilityNarrowing(t *testing.T) {
	src := []schema.ColumnInfo{
		issueCol("id", typemap.TypeInteger, false),
		issueCol("note", typemap.TypeText, true),
	}
	tgt := []schema.ColumnInfo{
		issueCol("id", typemap.TypeInteger, false),
		issueCol("note", typemap.TypeText, false),
	}
	cmp := schema.CompareColumns(src, tgt)

	issues := DetectIssues(cmp)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "column note is nullable on source but NOT NULL on target")
}

func TestDetectIssuesExtraNotNullWithoutDefault(t *testing.T) {
	dflt := "0"
	src := []schema.ColumnInfo{issueCol("id", typemap.TypeInteger, false)}
	tgt := []schema.ColumnInfo{
		issueCol("id", typemap.TypeInteger, false),
		issueCol("tenant_id", typemap.TypeInteger, false),
		{Name: "version", Normalized: typemap.TypeInteger, Nullable: false, Default: &dflt},
		issueCol("comment", typemap.TypeText, true),
	}
	cmp := schema.CompareColumns(src, tgt)

	issues := DetectIssues(cmp)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "tenant_id")
	assert.Contains(t, issues[0], "NOT NULL without a default")
}
