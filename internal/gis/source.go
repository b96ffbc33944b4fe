// Package gis serves the raw GIS tables through an ordered fallback chain of
// sources: the live database, the remote dataset, the local snapshot.
package gis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/techdengue/analytics/internal/frame"
	"github.com/techdengue/analytics/internal/sources"
	"github.com/techdengue/analytics/internal/store"
)

// Table selects one of the GIS tables.
type Table string

const (
	TableBanco Table = "banco"
	TablePOIs  Table = "pois"
)

// Artifact is the store artifact holding the snapshot of t.
func (t Table) Artifact() string {
	if t == TablePOIs {
		return store.GISPOIs
	}
	return store.GISBanco
}

// Query narrows a read.
type Query struct {
	Limit       int
	ActivityIDs []string
}

// Source is one link of the fallback chain.
type Source interface {
	Name() string
	Fetch(ctx context.Context, t Table, q Query) (*frame.Frame, error)
}

// DBSource reads the live GIS database.
type DBSource struct {
	Adapter *sources.GISAdapter
}

func (DBSource) Name() string { return "database" }

func (d DBSource) Fetch(ctx context.Context, t Table, q Query) (*frame.Frame, error) {
	if d.Adapter == nil || d.Adapter.DB == nil {
		return nil, errors.New("GIS database not configured")
	}
	if t == TablePOIs {
		return d.Adapter.POIs(ctx, q.ActivityIDs, q.Limit)
	}
	return d.Adapter.Banco(ctx, q.Limit)
}

// Loader reads a store artifact.
type Loader func(ctx context.Context, name string) (*frame.Frame, error)

// StoreSource serves the snapshot artifacts through load. The name is the
// provenance reported to clients, "remote" or "snapshot".
type StoreSource struct {
	Label string
	Load  Loader
}

func (s StoreSource) Name() string { return s.Label }

func (s StoreSource) Fetch(ctx context.Context, t Table, q Query) (*frame.Frame, error) {
	f, err := s.Load(ctx, t.Artifact())
	if err != nil {
		return nil, err
	}
	if t == TablePOIs && len(q.ActivityIDs) > 0 {
		want := make(map[string]bool, len(q.ActivityIDs))
		for _, id := range q.ActivityIDs {
			want[id] = true
		}
		if !f.Has(sources.DefaultActivityColumn) {
			return nil, fmt.Errorf("snapshot %s has no column %s", t.Artifact(), sources.DefaultActivityColumn)
		}
		f = f.Filter(func(r frame.Row) bool { return want[r.String(sources.DefaultActivityColumn)] })
	}
	if q.Limit > 0 {
		f = f.Slice(0, q.Limit)
	}
	return f, nil
}

// Result is a payload tagged with its provenance.
type Result struct {
	Frame  *frame.Frame
	Source string
	// Reason lists why earlier sources were skipped.
	Reason string
}

// Available reports whether any source answered.
func (r Result) Available() bool { return r.Frame != nil }

// Chain tries its sources in order and returns the first success.
type Chain struct {
	Sources []Source
}

func (c *Chain) Fetch(ctx context.Context, t Table, q Query) Result {
	var reasons []string
	for _, src := range c.Sources {
		f, err := src.Fetch(ctx, t, q)
		if err == nil {
			return Result{Frame: f, Source: src.Name(), Reason: strings.Join(reasons, "; ")}
		}
		log.Printf("[gis] %s %s unavailable: %v", src.Name(), t, err)
		reasons = append(reasons, fmt.Sprintf("%s: %v", src.Name(), err))
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "no GIS source configured")
	}
	return Result{Source: "none", Reason: strings.Join(reasons, "; ")}
}
