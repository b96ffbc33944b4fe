package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/techdengue/analytics/internal/db"
	"github.com/techdengue/analytics/internal/frame"
	"github.com/techdengue/analytics/internal/pipeline"
	"github.com/techdengue/analytics/internal/store"
)

// syncReport is what sync prints.
type syncReport struct {
	Pipeline  *pipeline.RunReport       `json:"pipeline,omitempty" yaml:"pipeline,omitempty"`
	Snapshots []pipeline.ArtifactResult `json:"snapshots,omitempty" yaml:"snapshots,omitempty"`
}

func (r syncReport) frame() *frame.Frame {
	f := frame.New("artifact", "rows", "status", "hash")
	add := func(res pipeline.ArtifactResult) {
		status := "written"
		switch {
		case res.Error != "":
			status = "error: " + res.Error
		case res.Skipped:
			status = "fresh, skipped"
		}
		_ = f.Append(res.Artifact, res.Rows, status, res.Hash)
	}
	if r.Pipeline != nil {
		for _, res := range r.Pipeline.Artifacts {
			add(res)
		}
	}
	for _, res := range r.Snapshots {
		add(res)
	}
	return f
}

func gisArtifacts() []string { return []string{store.GISPOIs, store.GISBanco} }

func syncCmd(a *app) *cobra.Command {
	var (
		table string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Rebuild store artifacts from the sources and snapshot the GIS tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if table != "" && !slices.Contains(store.Artifacts, table) {
				return fmt.Errorf("unknown table %q, expected one of %v", table, store.Artifacts)
			}
			ctx := cmd.Context()
			st := a.localStore()
			var report syncReport
			var runErr error

			if table == "" || slices.Contains(pipeline.Artifacts, table) {
				opts := pipeline.RunOptions{Force: force}
				if table != "" {
					opts.Only = []string{table}
				}
				report.Pipeline, runErr = pipeline.NewRunner(st, a.cfg.Pipeline).Run(ctx, opts)
				if errors.Is(runErr, pipeline.ErrValidationFailed) && report.Pipeline != nil && report.Pipeline.Validation != nil {
					for _, is := range report.Pipeline.Validation.Issues {
						printWarning(a.stderr, "[%s] %s: %s", is.Severity, is.Code, is.Message)
					}
				}
			}

			if runErr == nil || errors.Is(runErr, pipeline.ErrPartialRun) {
				snaps, err := a.snapshot(ctx, st, table, force)
				report.Snapshots = snaps
				if err != nil && runErr == nil {
					runErr = err
				}
			}

			if err := a.printSync(report); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().StringVarP(&table, "table", "t", "", "sync a single artifact")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "rewrite artifacts that are still fresh")
	return cmd
}

func (a *app) printSync(r syncReport) error {
	if a.output == outputJSON || a.output == outputYAML {
		return renderValue(a.stdout, a.output, r)
	}
	return render(a.stdout, a.output, r.frame())
}

// snapshot copies the GIS tables into the store. With no table selected a
// missing GIS configuration is a warning; naming a GIS table makes it an error.
func (a *app) snapshot(ctx context.Context, st *store.Store, table string, force bool) ([]pipeline.ArtifactResult, error) {
	var wanted []string
	for _, name := range gisArtifacts() {
		if table == "" || table == name {
			wanted = append(wanted, name)
		}
	}
	if len(wanted) == 0 {
		return nil, nil
	}

	var out, todo []string
	for _, name := range wanted {
		if !force && st.IsFresh(name) {
			out = append(out, name)
			continue
		}
		todo = append(todo, name)
	}
	results := make([]pipeline.ArtifactResult, 0, len(wanted))
	for _, name := range out {
		results = append(results, pipeline.ArtifactResult{Artifact: name, Skipped: true})
	}
	if len(todo) == 0 {
		return results, nil
	}

	gdb, err := a.connectGIS(ctx)
	if err != nil {
		if table == "" {
			printWarning(a.stderr, "GIS snapshots skipped: %v", err)
			return results, nil
		}
		return results, err
	}
	defer db.Close(gdb)
	ad := a.adapter(gdb)

	source := map[string]string{store.GISPOIs: ad.POIsTable, store.GISBanco: ad.BancoTable}
	var failed bool
	for _, name := range todo {
		res := pipeline.ArtifactResult{Artifact: name}
		f, err := ad.Table(ctx, source[name], 0)
		if err == nil {
			loaded := time.Now().UTC()
			var meta store.Metadata
			meta, err = st.Write(name, f.WithColumn(store.LoadColumn, func(frame.Row) any { return loaded }))
			res.Rows, res.Hash = meta.RowCount, meta.Hash
		}
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			res.Error = err.Error()
			failed = true
		}
		results = append(results, res)
	}
	if failed {
		return results, pipeline.ErrPartialRun
	}
	return results, nil
}

func syncStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-status",
		Short: "Show the store journal and artifact freshness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := a.localStore()
			journal, err := st.Journal()
			if err != nil {
				return err
			}
			f := frame.New("artifact", "rows", "last_sync", "fresh", "schema_version", "hash")
			for _, name := range store.Artifacts {
				meta, ok := journal[name]
				if !ok {
					_ = f.Append(name, nil, nil, false, nil, nil)
					continue
				}
				_ = f.Append(name, meta.RowCount, meta.LastSync.UTC(), st.IsFresh(name), meta.SchemaVersion, meta.Hash)
			}
			return render(a.stdout, a.output, f)
		},
	}
}
