package export

import (
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fortuna/gridiron/internal/features"
	"github.com/parquet-go/parquet-go"
)

// Table is a feature table to export.
type Table interface {
	Schema() []features.Column
	Len() int
	RowValues(i int) []any
}

// Writer exports feature tables as parquet files into a directory.
type Writer struct {
	dir string
}

// NewWriter returns a writer for dir, creating it if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// Dir returns the export directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Export writes t to {dir}/{name}.parquet, replacing any previous file, and
// returns the path. The file is written beside the target and renamed into
// place so readers never see a partial export.
func (w *Writer) Export(name string, t Table) (string, error) {
	schema, order := schemaOf(name, t.Schema())

	path := filepath.Join(w.dir, name+".parquet")
	tmp, err := os.CreateTemp(w.dir, "."+name+"-*.parquet")
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	pw := parquet.NewWriter(tmp, schema, parquet.Compression(&parquet.Snappy))
	rows := make([]parquet.Row, 0, 256)
	flush := func() error {
		if len(rows) == 0 {
			return nil
		}
		_, err := pw.WriteRows(rows)
		rows = rows[:0]
		return err
	}

	for i := 0; i < t.Len(); i++ {
		rows = append(rows, toRow(t.RowValues(i), order))
		if len(rows) == cap(rows) {
			if err := flush(); err != nil {
				tmp.Close()
				return "", fmt.Errorf("write %s: %w", name, err)
			}
		}
	}
	if err := flush(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := pw.Close(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("close %s writer: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename %s: %w", name, err)
	}
	return path, nil
}

func leafOf(k features.ColumnKind) parquet.Node {
	switch k {
	case features.KindInt:
		return parquet.Int(64)
	case features.KindBool:
		return parquet.Leaf(parquet.BooleanType)
	case features.KindFloat:
		return parquet.Leaf(parquet.DoubleType)
	default:
		return parquet.String()
	}
}

// schemaOf builds an all-optional flat schema. Parquet orders group fields
// by name, so order maps each leaf column to its position in RowValues.
func schemaOf(name string, cols []features.Column) (*parquet.Schema, []int) {
	group := make(parquet.Group, len(cols))
	pos := make(map[string]int, len(cols))
	for i, c := range cols {
		group[c.Name] = parquet.Optional(leafOf(c.Kind))
		pos[c.Name] = i
	}
	schema := parquet.NewSchema(name, group)

	fields := schema.Fields()
	order := make([]int, len(fields))
	for i, f := range fields {
		order[i] = pos[f.Name()]
	}
	return schema, order
}

func toRow(vals []any, order []int) parquet.Row {
	row := make(parquet.Row, len(order))
	for col, src := range order {
		v := plain(vals[src])
		if v == nil {
			row[col] = parquet.NullValue().Level(0, 0, col)
			continue
		}
		row[col] = parquet.ValueOf(v).Level(0, 1, col)
	}
	return row
}

// plain unwraps sql.Null* values; nil means null.
func plain(v any) any {
	if valuer, ok := v.(driver.Valuer); ok {
		out, err := valuer.Value()
		if err != nil {
			return nil
		}
		return out
	}
	return v
}
