package refine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPruneNullColumns(t *testing.T) {
	tbl := &Table{
		Columns: []string{"id", "empty", "name"},
		Rows: []Row{
			{"id": int64(1), "empty": nil, "name": "a"},
			{"id": int64(2), "empty": nil, "name": nil},
		},
	}
	dropped := tbl.PruneNullColumns()
	assert.Equal(t, []string{"empty"}, dropped)
	assert.Equal(t, []string{"id", "name"}, tbl.Columns)
	_, ok := tbl.Rows[0]["empty"]
	assert.False(t, ok)
}

func TestTrimStringsKeepsEmpty(t *testing.T) {
	tbl := &Table{Columns: []string{"a", "b"}, Rows: []Row{{"a": "  x ", "b": "   "}}}
	tbl.TrimStrings()
	assert.Equal(t, "x", tbl.Rows[0]["a"])
	assert.Equal(t, "", tbl.Rows[0]["b"])
}

func TestKeyColumns(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		source  string
		want    []string
	}{
		{"plain id", []string{"ID", "name"}, "rds", []string{"ID"}},
		{"suffix", []string{"customer_id", "Order_ID", "identity"}, "rds", []string{"customer_id", "Order_ID"}},
		{"source id", []string{"hubspotid", "hubspot_id"}, "hubspot", []string{"hubspot_id"}},
		{"none", []string{"brand", "model"}, "rds", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := KeyColumns(tt.columns, tt.source, DefaultPrimaryKeyRules)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := KeyColumns([]string{"id"}, "x", []string{"("})
	assert.Error(t, err)
}

func TestDedupe(t *testing.T) {
	t.Run("by key", func(t *testing.T) {
		tbl := &Table{
			Columns: []string{"id", "v"},
			Rows:    []Row{{"id": int64(1), "v": "a"}, {"id": int64(1), "v": "b"}, {"id": int64(2), "v": "c"}},
		}
		assert.Equal(t, 1, tbl.Dedupe([]string{"id"}))
		assert.Len(t, tbl.Rows, 2)
		assert.Equal(t, "a", tbl.Rows[0]["v"])
	})

	t.Run("full row", func(t *testing.T) {
		tbl := &Table{
			Columns: []string{"a", "b"},
			Rows:    []Row{{"a": "x", "b": nil}, {"a": "x", "b": nil}, {"a": "x", "b": "nil"}},
		}
		assert.Equal(t, 1, tbl.Dedupe(nil))
		assert.Len(t, tbl.Rows, 2)
	})

	t.Run("int and float keys collapse", func(t *testing.T) {
		tbl := &Table{Columns: []string{"id"}, Rows: []Row{{"id": int64(3)}, {"id": float64(3)}, {"id": "3"}}}
		assert.Equal(t, 1, tbl.Dedupe([]string{"id"}))
	})
}

func TestDropNullRows(t *testing.T) {
	tbl := &Table{
		Columns: []string{"a", "b"},
		Rows:    []Row{{"a": nil, "b": nil}, {"a": "", "b": nil}, {}},
	}
	assert.Equal(t, 2, tbl.DropNullRows())
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, "", tbl.Rows[0]["a"])
}

func TestLeftJoin(t *testing.T) {
	left := &Table{
		Columns: []string{"crm_id", "name"},
		Rows: []Row{
			{"crm_id": "1", "name": "acme"},
			{"crm_id": "2", "name": "globex"},
			{"crm_id": nil, "name": "nobody"},
		},
	}
	right := &Table{
		Columns: []string{"customer_id", "name", "spend"},
		Rows: []Row{
			{"customer_id": int64(1), "name": "Acme Corp", "spend": 10.5},
			{"customer_id": int64(1), "name": "Acme EU", "spend": 3.0},
		},
	}

	out := left.LeftJoin(right, "crm_id", "customer_id", "rds_")
	assert.Equal(t, []string{"crm_id", "name", "customer_id", "rds_name", "spend"}, out.Columns)
	require.Len(t, out.Rows, 4)
	assert.Equal(t, "Acme Corp", out.Rows[0]["rds_name"])
	assert.Equal(t, "Acme EU", out.Rows[1]["rds_name"])
	assert.Equal(t, "globex", out.Rows[2]["name"])
	assert.Nil(t, out.Rows[2]["spend"])
	assert.Equal(t, "nobody", out.Rows[3]["name"])

	// Inputs are not modified.
	assert.NotContains(t, left.Rows[0], "spend")
}

func TestLeftJoinPrefixesCaseCollisions(t *testing.T) {
	left := &Table{Columns: []string{"id", "Name"}, Rows: []Row{{"id": "1", "Name": "acme"}}}
	right := &Table{Columns: []string{"id", "name"}, Rows: []Row{{"id": "1", "name": "Acme Corp"}}}

	out := left.LeftJoin(right, "id", "id", "rds_")
	assert.Equal(t, []string{"id", "Name", "rds_name"}, out.Columns)
	assert.Equal(t, "Acme Corp", out.Rows[0]["rds_name"])
}
