package sources

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/techdengue/analytics/internal/db"
	"github.com/techdengue/analytics/internal/frame"
)

// DefaultActivityColumn is the POI table column linking a point to its activity.
const DefaultActivityColumn = "id_atividade"

// GISAdapter reads the raw operational tables. Every statement is a
// parameterized SELECT; geometries come back as GeoJSON strings.
type GISAdapter struct {
	DB             *gorm.DB
	Retry          db.Retrier
	BancoTable     string
	POIsTable      string
	ActivityColumn string
}

// Banco reads up to limit rows of the banco table.
func (g *GISAdapter) Banco(ctx context.Context, limit int) (*frame.Frame, error) {
	return db.ReadTable(ctx, g.DB, g.Retry, g.BancoTable, limit)
}

// POIs reads up to limit POI rows, restricted to activityIDs when non-empty.
func (g *GISAdapter) POIs(ctx context.Context, activityIDs []string, limit int) (*frame.Frame, error) {
	if len(activityIDs) == 0 {
		return db.ReadTable(ctx, g.DB, g.Retry, g.POIsTable, limit)
	}
	cols, err := db.TableColumns(ctx, g.DB, g.Retry, g.POIsTable)
	if err != nil {
		return nil, err
	}
	actCol := g.ActivityColumn
	if actCol == "" {
		actCol = DefaultActivityColumn
	}
	found := false
	for _, c := range cols {
		if c.Name == actCol {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("table %s has no column %s", g.POIsTable, actCol)
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s::text = ANY(?::text[])",
		db.SelectList(cols), db.QuoteTable(g.POIsTable), pq.QuoteIdentifier(actCol))
	args := []any{pq.Array(activityIDs)}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	return db.QueryFrame(ctx, g.DB, g.Retry, q, args...)
}

// Table reads an arbitrary table, for snapshots and exports.
func (g *GISAdapter) Table(ctx context.Context, table string, limit int) (*frame.Frame, error) {
	return db.ReadTable(ctx, g.DB, g.Retry, table, limit)
}
