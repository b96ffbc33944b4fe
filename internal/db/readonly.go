package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/techdengue/analytics/internal/frame"
)

var ErrNotReadOnly = errors.New("only SELECT or WITH statements are allowed")

// CheckReadOnly rejects anything but a single SELECT or WITH statement.
func CheckReadOnly(query string) error {
	q := strings.TrimSpace(query)
	q = strings.TrimSuffix(q, ";")
	if q == "" {
		return ErrNotReadOnly
	}
	if strings.Contains(q, ";") {
		return fmt.Errorf("%w: multiple statements", ErrNotReadOnly)
	}
	first := strings.ToUpper(strings.Fields(q)[0])
	if first != "SELECT" && first != "WITH" {
		return ErrNotReadOnly
	}
	return nil
}

// ReadOnlyQuery runs query inside a READ ONLY transaction, wrapping it to
// enforce limit when limit > 0.
func ReadOnlyQuery(ctx context.Context, gdb *gorm.DB, query string, limit int) (*frame.Frame, error) {
	if err := CheckReadOnly(query); err != nil {
		return nil, err
	}
	q := strings.TrimSuffix(strings.TrimSpace(query), ";")
	if limit > 0 {
		q = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", q, limit)
	}
	var out *frame.Frame
	err := gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SET TRANSACTION READ ONLY").Error; err != nil {
			return err
		}
		rows, err := tx.Raw(q).Rows()
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = scanFrame(rows)
		return err
	}, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, &QueryError{Query: q, Err: err}
	}
	return out, nil
}
