package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/techdengue/analytics/internal/frame"
)

// Retrier runs statements with a bounded retry budget and a fixed delay.
type Retrier struct {
	Attempts int
	Delay    time.Duration
}

// transient reports whether err is worth retrying. Server-side errors outside
// the connection, resource and operator-intervention classes are final.
func transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "08", "53", "57":
			return true
		}
		return false
	}
	return true
}

// Do calls fn until it succeeds, returns a non-transient error, or the budget runs out.
func (r Retrier) Do(ctx context.Context, query string, fn func() error) error {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if !transient(err) || i == attempts {
			break
		}
		log.Printf("[db] attempt %d/%d failed, retrying in %s: %v", i, attempts, r.Delay, err)
		select {
		case <-ctx.Done():
			return &QueryError{Query: query, Err: ctx.Err()}
		case <-time.After(r.Delay):
		}
	}
	return &QueryError{Query: query, Err: err}
}

// QueryFrame runs a read query and materializes every row into a frame,
// keeping the column order of the result set.
func QueryFrame(ctx context.Context, gdb *gorm.DB, r Retrier, query string, args ...any) (*frame.Frame, error) {
	var out *frame.Frame
	err := r.Do(ctx, query, func() error {
		rows, err := gdb.WithContext(ctx).Raw(query, args...).Rows()
		if err != nil {
			return err
		}
		defer rows.Close()
		f, err := scanFrame(rows)
		if err != nil {
			return err
		}
		out = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func scanFrame(rows *sql.Rows) (*frame.Frame, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("column types: %w", err)
	}
	cols := make([]string, len(types))
	numeric := make([]bool, len(types))
	for i, ct := range types {
		cols[i] = ct.Name()
		switch strings.ToUpper(ct.DatabaseTypeName()) {
		case "NUMERIC", "DECIMAL":
			numeric[i] = true
		}
	}
	f := frame.New(cols...)
	dest := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		vals := make([]any, len(cols))
		for i, v := range dest {
			vals[i] = cellValue(v, numeric[i])
		}
		if err := f.Append(vals...); err != nil {
			return nil, err
		}
	}
	return f, rows.Err()
}

func cellValue(v any, numeric bool) any {
	switch x := v.(type) {
	case []byte:
		v = string(x)
	case time.Time:
		return x.UTC()
	}
	if s, ok := v.(string); ok && numeric {
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return n
		}
	}
	return v
}
