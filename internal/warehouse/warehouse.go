// Package warehouse bulk-loads Store artifacts into the warehouse database
// and checks that the loaded tables match them.
package warehouse

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/techdengue/analytics/internal/config"
	"github.com/techdengue/analytics/internal/frame"
)

// Schema receives every artifact table.
const Schema = "techdengue"

// Warehouse is a pgx pool bound to the target schema.
type Warehouse struct {
	pool   *pgxpool.Pool
	schema string
}

// Open connects and pings the warehouse.
func Open(ctx context.Context, cfg config.DBConfig) (*Warehouse, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pcfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse warehouse dsn: %w", err)
	}
	pcfg.MaxConns = 4
	pcfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("open warehouse pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping warehouse %s: %w", cfg.Host, err)
	}
	return &Warehouse{pool: pool, schema: Schema}, nil
}

func (w *Warehouse) Close() { w.pool.Close() }

func (w *Warehouse) ident(table string) pgx.Identifier { return pgx.Identifier{w.schema, table} }

// ColumnType maps a frame kind to its PostgreSQL type.
func ColumnType(k frame.Kind) string {
	switch k {
	case frame.KindFloat:
		return "DOUBLE PRECISION"
	case frame.KindInt:
		return "BIGINT"
	case frame.KindBool:
		return "BOOLEAN"
	case frame.KindDate:
		return "DATE"
	case frame.KindTime:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

// CreateTableSQL renders the DDL of an artifact table.
func CreateTableSQL(ident pgx.Identifier, f *frame.Frame) string {
	kinds := f.Kinds()
	cols := f.Columns()
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = pgx.Identifier{c}.Sanitize() + " " + ColumnType(kinds[c])
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", ident.Sanitize(), strings.Join(defs, ", "))
}

// copyValue converts a frame value to what pgx encodes for its column type.
func copyValue(v any) any {
	switch x := v.(type) {
	case frame.Date:
		return x.Time()
	default:
		return x
	}
}

// Rows converts a frame to COPY rows.
func Rows(f *frame.Frame) [][]any {
	cols := f.Columns()
	out := make([][]any, f.Len())
	for i := range out {
		row := f.Row(i)
		vals := make([]any, len(cols))
		for j, c := range cols {
			vals[j] = copyValue(row.Get(c))
		}
		out[i] = vals
	}
	return out
}

// Ingest replaces the table of an artifact with the frame's rows. The table
// is recreated when its columns drifted; truncate and COPY share one
// transaction so readers never see a half-loaded table.
func (w *Warehouse) Ingest(ctx context.Context, table string, f *frame.Frame) (int64, error) {
	ident := w.ident(table)
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{w.schema}.Sanitize()); err != nil {
		return 0, fmt.Errorf("create schema: %w", err)
	}
	existing, err := columnsOf(ctx, tx, w.schema, table)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 && !sameColumns(existing, f.Columns()) {
		log.Printf("[warehouse] %s columns changed, recreating", table)
		if _, err := tx.Exec(ctx, "DROP TABLE "+ident.Sanitize()); err != nil {
			return 0, fmt.Errorf("drop %s: %w", table, err)
		}
	}
	if _, err := tx.Exec(ctx, CreateTableSQL(ident, f)); err != nil {
		return 0, fmt.Errorf("create %s: %w", table, err)
	}
	if _, err := tx.Exec(ctx, "TRUNCATE "+ident.Sanitize()); err != nil {
		return 0, fmt.Errorf("truncate %s: %w", table, err)
	}
	n, err := tx.CopyFrom(ctx, ident, f.Columns(), pgx.CopyFromRows(Rows(f)))
	if err != nil {
		return 0, fmt.Errorf("copy %s: %w", table, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit %s: %w", table, err)
	}
	log.Printf("[warehouse] loaded %d rows into %s.%s", n, w.schema, table)
	return n, nil
}

func columnsOf(ctx context.Context, tx pgx.Tx, schema, table string) ([]string, error) {
	rows, err := tx.Query(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	cols, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	return cols, nil
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Count returns the row count of an artifact table, or -1 when it does not exist.
func (w *Warehouse) Count(ctx context.Context, table string) (int64, error) {
	var exists bool
	err := w.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2)`,
		w.schema, table).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("lookup %s: %w", table, err)
	}
	if !exists {
		return -1, nil
	}
	var n int64
	if err := w.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+w.ident(table).Sanitize()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// HasKey reports whether table holds a row matching every key column.
func (w *Warehouse) HasKey(ctx context.Context, table string, key map[string]any) (bool, error) {
	conds := make([]string, 0, len(key))
	args := make([]any, 0, len(key))
	for col, v := range key {
		args = append(args, copyValue(v))
		conds = append(conds, fmt.Sprintf("%s = $%d", pgx.Identifier{col}.Sanitize(), len(args)))
	}
	q := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s)", w.ident(table).Sanitize(), strings.Join(conds, " AND "))
	var ok bool
	if err := w.pool.QueryRow(ctx, q, args...).Scan(&ok); err != nil {
		return false, fmt.Errorf("key lookup in %s: %w", table, err)
	}
	return ok, nil
}
