package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fortuna/gridiron/internal/features"
	"github.com/fortuna/gridiron/internal/store"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// ErrUnknownTable is returned for table names outside the feature outputs.
var ErrUnknownTable = errors.New("unknown feature table")

// Table is a persisted feature table: a fixed schema and positional rows.
type Table interface {
	Schema() []features.Column
	Len() int
	RowValues(i int) []any
}

// FeatureQuery filters a feature table read. Zero values mean no filter.
type FeatureQuery struct {
	Season   int
	Week     int
	PlayerID int64
	Limit    int
}

// DefaultFeatureLimit caps reads that don't set a limit.
const DefaultFeatureLimit = 500

// FeatureRepository writes and reads the pipeline's output tables.
type FeatureRepository struct {
	db *store.Database
}

// NewFeatureRepository creates a new feature repository
func NewFeatureRepository(db *store.Database) *FeatureRepository {
	return &FeatureRepository{db: db}
}

func checkTable(name string) error {
	for _, t := range features.OutputTables() {
		if t == name {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownTable, name)
}

func sqlType(k features.ColumnKind) string {
	switch k {
	case features.KindInt:
		return "BIGINT"
	case features.KindBool:
		return "BOOLEAN"
	case features.KindFloat:
		return "DOUBLE PRECISION"
	default:
		return "TEXT"
	}
}

// NamedTable pairs an output table name with its contents.
type NamedTable struct {
	Name  string
	Table Table
}

// ReplaceTable drops name and recreates it holding exactly the rows of t.
func (r *FeatureRepository) ReplaceTable(ctx context.Context, name string, t Table) error {
	return r.ReplaceTables(ctx, []NamedTable{{Name: name, Table: t}})
}

// ReplaceTables replaces every table in one transaction, so readers see
// either all previous tables or all new ones.
func (r *FeatureRepository) ReplaceTables(ctx context.Context, tables []NamedTable) error {
	for _, nt := range tables {
		if err := checkTable(nt.Name); err != nil {
			return err
		}
	}

	tx, err := r.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	for _, nt := range tables {
		if err := r.replaceInTx(ctx, tx, nt.Name, nt.Table); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

func (r *FeatureRepository) replaceInTx(ctx context.Context, tx *sql.Tx, name string, t Table) error {
	schema := t.Schema()
	cols := make([]string, len(schema))
	defs := make([]string, len(schema))
	for i, c := range schema {
		cols[i] = c.Name
		defs[i] = pq.QuoteIdentifier(c.Name) + " " + sqlType(c.Kind)
	}
	quoted := pq.QuoteIdentifier(name)

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoted); err != nil {
		return fmt.Errorf("dropping %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, "CREATE TABLE "+quoted+" (\n\t"+strings.Join(defs, ",\n\t")+"\n)"); err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}

	var err error
	if r.db.Driver() == store.DriverPostgres {
		err = copyRows(ctx, tx, name, cols, t)
	} else {
		err = insertRows(ctx, tx, r.db, quoted, cols, t)
	}
	if err != nil {
		return fmt.Errorf("loading %s: %w", name, err)
	}
	return nil
}

// copyRows bulk loads through COPY FROM STDIN.
func copyRows(ctx context.Context, tx *sql.Tx, name string, cols []string, t Table) error {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(name, cols...))
	if err != nil {
		return err
	}
	for i := 0; i < t.Len(); i++ {
		if _, err := stmt.ExecContext(ctx, t.RowValues(i)...); err != nil {
			stmt.Close()
			return err
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return err
	}
	return stmt.Close()
}

func insertRows(ctx context.Context, tx *sql.Tx, db *store.Database, quoted string, cols []string, t Table) error {
	quotedCols := make([]string, len(cols))
	params := make([]string, len(cols))
	for i, c := range cols {
		quotedCols[i] = pq.QuoteIdentifier(c)
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	query := "INSERT INTO " + quoted + " (" + strings.Join(quotedCols, ", ") + ") VALUES (" + strings.Join(params, ", ") + ")"

	stmt, err := tx.PrepareContext(ctx, db.Rebind(query))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := 0; i < t.Len(); i++ {
		if _, err := stmt.ExecContext(ctx, t.RowValues(i)...); err != nil {
			return err
		}
	}
	return nil
}

// ReadFeatures returns rows of a feature table as column → value maps,
// ordered by season, week and player.
func (r *FeatureRepository) ReadFeatures(ctx context.Context, name string, q FeatureQuery) ([]map[string]any, error) {
	if err := checkTable(name); err != nil {
		return nil, err
	}

	var where []string
	var args []any
	if q.Season > 0 {
		args = append(args, q.Season)
		where = append(where, fmt.Sprintf("season = $%d", len(args)))
	}
	if q.Week > 0 {
		args = append(args, q.Week)
		where = append(where, fmt.Sprintf("week = $%d", len(args)))
	}
	if q.PlayerID > 0 {
		args = append(args, q.PlayerID)
		where = append(where, fmt.Sprintf("player_id = $%d", len(args)))
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultFeatureLimit
	}
	args = append(args, limit)

	query := "SELECT * FROM " + pq.QuoteIdentifier(name)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY season, week, player_id LIMIT $%d", len(args))

	rows, err := r.db.DB().QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", name, err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}

	return out, rows.Err()
}

// TableExists reports whether name has been written at least once.
func (r *FeatureRepository) TableExists(ctx context.Context, name string) (bool, error) {
	if err := checkTable(name); err != nil {
		return false, err
	}
	rows, err := r.db.DB().QueryContext(ctx, "SELECT * FROM "+pq.QuoteIdentifier(name)+" LIMIT 0")
	if err != nil {
		if isUndefinedTable(err) {
			return false, nil
		}
		return false, fmt.Errorf("probe %s: %w", name, err)
	}
	rows.Close()
	return true, nil
}

// undefined_table
const pqUndefinedTable = "42P01"

func isUndefinedTable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUndefinedTable
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return strings.Contains(liteErr.Error(), "no such table")
	}
	return false
}
