package db

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/techdengue/analytics/internal/frame"
)

// Column is one row of information_schema.columns.
type Column struct {
	Name     string `json:"name" yaml:"name"`
	DataType string `json:"data_type" yaml:"data_type"`
	UDTName  string `json:"udt_name" yaml:"udt_name"`
	Nullable bool   `json:"nullable" yaml:"nullable"`
}

// TableColumns lists the columns of table in ordinal order. table may be
// schema-qualified; the public schema is assumed otherwise.
func TableColumns(ctx context.Context, gdb *gorm.DB, r Retrier, table string) ([]Column, error) {
	schema, name := SplitTable(table)
	const q = `
		SELECT column_name, data_type, udt_name, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`
	var cols []Column
	err := r.Do(ctx, q, func() error {
		cols = cols[:0]
		rows, err := gdb.WithContext(ctx).Raw(q, schema, name).Rows()
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var c Column
			if err := rows.Scan(&c.Name, &c.DataType, &c.UDTName, &c.Nullable); err != nil {
				return err
			}
			cols = append(cols, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s not found", table)
	}
	return cols, nil
}

// CountRows returns SELECT COUNT(*) for table.
func CountRows(ctx context.Context, gdb *gorm.DB, r Retrier, table string) (int64, error) {
	q := "SELECT COUNT(*) FROM " + QuoteTable(table)
	var n int64
	err := r.Do(ctx, q, func() error {
		return gdb.WithContext(ctx).Raw(q).Row().Scan(&n)
	})
	return n, err
}

// SplitTable separates an optional schema prefix.
func SplitTable(table string) (schema, name string) {
	for i := 0; i < len(table); i++ {
		if table[i] == '.' {
			return table[:i], table[i+1:]
		}
	}
	return "public", table
}

// QuoteTable quotes a possibly schema-qualified table name.
func QuoteTable(table string) string {
	schema, name := SplitTable(table)
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(name)
}

// IsGeometry reports whether a column holds PostGIS geometry or geography.
func (c Column) IsGeometry() bool {
	return c.UDTName == "geometry" || c.UDTName == "geography"
}

// ReadTable selects every column of table, rendering geometry columns as
// GeoJSON strings. limit <= 0 reads the whole table.
func ReadTable(ctx context.Context, gdb *gorm.DB, r Retrier, table string, limit int) (*frame.Frame, error) {
	cols, err := TableColumns(ctx, gdb, r, table)
	if err != nil {
		return nil, err
	}
	q := "SELECT " + SelectList(cols) + " FROM " + QuoteTable(table)
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	return QueryFrame(ctx, gdb, r, q, args...)
}

// SelectList renders the projection for cols with geometries as GeoJSON.
func SelectList(cols []Column) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		id := pq.QuoteIdentifier(c.Name)
		if c.IsGeometry() {
			out += "ST_AsGeoJSON(" + id + ") AS " + id
		} else {
			out += id
		}
	}
	return out
}
