package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/techdengue/analytics/internal/db"
	"github.com/techdengue/analytics/internal/frame"
	"github.com/techdengue/analytics/internal/store"
	"github.com/techdengue/analytics/internal/warehouse"
)

func testConnectionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection",
		Short: "Check that the GIS database (and the warehouse, when configured) answer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			gdb, err := a.connectGIS(ctx)
			if err != nil {
				return fmt.Errorf("GIS database: %w", err)
			}
			db.Close(gdb)
			printSuccess(a.stdout, "GIS database %s/%s reachable", a.cfg.GIS.DB.Host, a.cfg.GIS.DB.Name)

			if !a.cfg.Warehouse.Configured() {
				printWarning(a.stdout, "warehouse not configured, skipped")
				return nil
			}
			w, err := warehouse.Open(ctx, a.cfg.Warehouse)
			if err != nil {
				return fmt.Errorf("warehouse: %w", err)
			}
			w.Close()
			printSuccess(a.stdout, "warehouse %s/%s reachable", a.cfg.Warehouse.Host, a.cfg.Warehouse.Name)
			return nil
		},
	}
}

func tableInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "table-info <table>",
		Short: "Show the columns and row count of a GIS table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			gdb, err := a.connectGIS(ctx)
			if err != nil {
				return err
			}
			defer db.Close(gdb)

			ad := a.adapter(gdb)
			cols, err := db.TableColumns(ctx, gdb, ad.Retry, args[0])
			if err != nil {
				return err
			}
			if len(cols) == 0 {
				return fmt.Errorf("table %s not found", args[0])
			}
			n, err := db.CountRows(ctx, gdb, ad.Retry, args[0])
			if err != nil {
				return err
			}
			if a.output == outputJSON || a.output == outputYAML {
				return renderValue(a.stdout, a.output, map[string]any{
					"table":   args[0],
					"rows":    n,
					"columns": cols,
				})
			}
			f := frame.New("column", "data_type", "udt_name", "nullable")
			for _, c := range cols {
				_ = f.Append(c.Name, c.DataType, c.UDTName, c.Nullable)
			}
			if err := render(a.stdout, a.output, f); err != nil {
				return err
			}
			if a.output == outputTable {
				fmt.Fprintf(a.stdout, "%s: %d rows\n", args[0], n)
			}
			return nil
		},
	}
}

func statsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Row counts of the GIS tables and the store artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f := frame.New("source", "name", "rows", "last_sync")

			gdb, err := a.connectGIS(ctx)
			if err != nil {
				printWarning(a.stderr, "GIS database unavailable: %v", err)
			} else {
				defer db.Close(gdb)
				ad := a.adapter(gdb)
				for _, t := range []string{a.cfg.GIS.BancoTable, a.cfg.GIS.POIsTable} {
					n, err := db.CountRows(ctx, gdb, ad.Retry, t)
					if err != nil {
						return err
					}
					_ = f.Append("gis", t, n, nil)
				}
			}

			journal, err := a.localStore().Journal()
			if err != nil {
				return err
			}
			for _, name := range store.Artifacts {
				meta, ok := journal[name]
				if !ok {
					_ = f.Append("store", name, nil, nil)
					continue
				}
				_ = f.Append("store", name, int64(meta.RowCount), meta.LastSync.UTC())
			}
			return render(a.stdout, a.output, f)
		},
	}
}

func queryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a read-only SELECT against the GIS database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := db.CheckReadOnly(args[0]); err != nil {
				return err
			}
			ctx := cmd.Context()
			gdb, err := a.connectGIS(ctx)
			if err != nil {
				return err
			}
			defer db.Close(gdb)

			f, err := db.ReadOnlyQuery(ctx, gdb, args[0], limit)
			if err != nil {
				return err
			}
			return render(a.stdout, a.output, f)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "maximum rows (0 for no limit)")
	return cmd
}
