package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/techdengue/analytics/internal/frame"
	"github.com/techdengue/analytics/internal/pipeline"
	"github.com/techdengue/analytics/internal/store"
	"github.com/techdengue/analytics/internal/warehouse"
)

// sampleKeys are the key columns checked per artifact by warehouse-validate.
// Artifacts without an entry are checked by row count only.
var sampleKeys = map[string][]string{
	store.FactActivities: pipeline.CanonicalKey,
	store.FactDengue:     {pipeline.ColCodigoIBGE6, pipeline.ColAno},
	store.DimMunicipios:  {pipeline.ColCodigoIBGE},
}

// loadArtifacts reads every local artifact that exists, skipping the rest.
func (a *app) loadArtifacts(st *store.Store) (map[string]*frame.Frame, []string, error) {
	out := make(map[string]*frame.Frame)
	var names []string
	for _, name := range store.Artifacts {
		if !st.Exists(name) {
			printWarning(a.stderr, "%s not in store, skipped", name)
			continue
		}
		f, err := st.LoadLocal(name)
		if err != nil {
			return nil, nil, fmt.Errorf("load %s: %w", name, err)
		}
		out[name] = f
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, nil, fmt.Errorf("store %s holds no artifacts; run sync first", st.Dir())
	}
	return out, names, nil
}

func warehouseIngestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "warehouse-ingest",
		Short: "Copy every store artifact into the warehouse schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.RequireWarehouse(); err != nil {
				return err
			}
			ctx := cmd.Context()
			frames, names, err := a.loadArtifacts(a.localStore())
			if err != nil {
				return err
			}
			w, err := warehouse.Open(ctx, a.cfg.Warehouse)
			if err != nil {
				return err
			}
			defer w.Close()

			out := frame.New("table", "rows")
			for _, name := range names {
				n, err := w.Ingest(ctx, name, frames[name])
				if err != nil {
					return err
				}
				_ = out.Append(warehouse.Schema+"."+name, n)
			}
			return render(a.stdout, a.output, out)
		},
	}
}

func warehouseValidateCmd(a *app) *cobra.Command {
	var sample int
	cmd := &cobra.Command{
		Use:   "warehouse-validate",
		Short: "Compare warehouse tables with the store artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if sample < 0 {
				return fmt.Errorf("--sample must not be negative")
			}
			if err := a.cfg.RequireWarehouse(); err != nil {
				return err
			}
			ctx := cmd.Context()
			frames, names, err := a.loadArtifacts(a.localStore())
			if err != nil {
				return err
			}
			w, err := warehouse.Open(ctx, a.cfg.Warehouse)
			if err != nil {
				return err
			}
			defer w.Close()

			checks := make([]warehouse.TableCheck, 0, len(names))
			for _, name := range names {
				checks = append(checks, warehouse.Check(ctx, w, name, frames[name], sampleKeys[name], sample))
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := a.printChecks(checks); err != nil {
				return err
			}
			return checksResult(checks)
		},
	}
	cmd.Flags().IntVarP(&sample, "sample", "s", 0, "number of keys to look up per table")
	return cmd
}

func (a *app) printChecks(checks []warehouse.TableCheck) error {
	if a.output == outputJSON || a.output == outputYAML {
		return renderValue(a.stdout, a.output, checks)
	}
	f := frame.New("table", "store_rows", "warehouse_rows", "sampled", "missing", "ok", "error")
	for _, c := range checks {
		_ = f.Append(c.Table, c.StoreRows, c.WarehouseRows, c.SampledKeys, c.MissingKeys, c.OK(), c.Error)
	}
	return render(a.stdout, a.output, f)
}

// checksResult maps failed checks to errMismatch.
func checksResult(checks []warehouse.TableCheck) error {
	var bad []string
	for _, c := range checks {
		if !c.OK() {
			bad = append(bad, c.Table)
		}
	}
	if len(bad) == 0 {
		return nil
	}
	slices.Sort(bad)
	return fmt.Errorf("%w: %v", errMismatch, bad)
}
