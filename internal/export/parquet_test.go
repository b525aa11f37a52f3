package export

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/fortuna/gridiron/internal/features"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTable struct {
	cols []features.Column
	rows [][]any
}

func (f *fakeTable) Schema() []features.Column { return f.cols }
func (f *fakeTable) Len() int                  { return len(f.rows) }
func (f *fakeTable) RowValues(i int) []any     { return f.rows[i] }

func sample() *fakeTable {
	return &fakeTable{
		cols: []features.Column{
			{Name: "player_id", Kind: features.KindInt},
			{Name: "position", Kind: features.KindText},
			{Name: "home_game", Kind: features.KindBool},
			{Name: "fantasy_points_3wk_avg", Kind: features.KindFloat},
		},
		rows: [][]any{
			{int64(1), "WR", true, sql.NullFloat64{Float64: 12.5, Valid: true}},
			{int64(2), "RB", false, sql.NullFloat64{}},
			{int64(3), sql.NullString{}, sql.NullBool{}, sql.NullFloat64{Float64: 3, Valid: true}},
		},
	}
}

func TestExport(t *testing.T) {
	w, err := NewWriter(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)

	path, err := w.Export("wr_features", sample())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(w.Dir(), "wr_features.parquet"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	info, err := f.Stat()
	require.NoError(t, err)

	pf, err := parquet.OpenFile(f, info.Size())
	require.NoError(t, err)
	assert.Equal(t, int64(3), pf.NumRows())

	var names []string
	for _, field := range pf.Schema().Fields() {
		names = append(names, field.Name())
		assert.True(t, field.Optional(), field.Name())
	}
	assert.ElementsMatch(t, []string{"player_id", "position", "home_game", "fantasy_points_3wk_avg"}, names)

	entries, err := os.ReadDir(w.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")
}

func TestExportEmptyTable(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)

	tbl := sample()
	tbl.rows = nil
	path, err := w.Export("te_features", tbl)
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestSchemaOfOrder(t *testing.T) {
	_, order := schemaOf("t", sample().cols)
	// fields sorted by name: fantasy_points_3wk_avg, home_game, player_id, position
	assert.Equal(t, []int{3, 2, 0, 1}, order)
}

func TestToRowLevels(t *testing.T) {
	_, order := schemaOf("t", sample().cols)
	row := toRow(sample().rows[1], order)

	require.Len(t, row, 4)
	assert.True(t, row[0].IsNull())
	assert.Equal(t, 0, row[0].DefinitionLevel())
	assert.Equal(t, 1, row[2].DefinitionLevel())
	assert.Equal(t, int64(2), row[2].Int64())
	assert.Equal(t, 2, row[2].Column())
}
