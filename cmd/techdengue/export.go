package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"

	"github.com/techdengue/analytics/internal/db"
	"github.com/techdengue/analytics/internal/frame"
	"github.com/techdengue/analytics/internal/store"
)

// maxSheetName is the Excel limit on worksheet names.
const maxSheetName = 31

func exportCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "export <table> <output.{csv,xlsx,parquet}>",
		Short: "Export a store artifact or a GIS table to a file",
		Long: "Store artifacts are read from the store (remote when configured). " +
			"Any other name is read from the GIS database.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, out := args[0], args[1]
			if _, err := exportFormat(out); err != nil {
				return err
			}
			ctx := cmd.Context()

			var f *frame.Frame
			if slices.Contains(store.Artifacts, table) {
				st, err := a.store()
				if err != nil {
					return err
				}
				if f, err = st.Load(ctx, table); err != nil {
					return err
				}
				if limit > 0 {
					f = f.Slice(0, limit)
				}
			} else {
				gdb, err := a.connectGIS(ctx)
				if err != nil {
					return err
				}
				defer db.Close(gdb)
				if f, err = a.adapter(gdb).Table(ctx, table, limit); err != nil {
					return err
				}
			}

			if err := writeExport(out, table, f); err != nil {
				return err
			}
			printSuccess(a.stdout, "exported %d rows of %s to %s", f.Len(), table, out)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum rows (0 for all)")
	return cmd
}

func exportFormat(path string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch ext {
	case "csv", "xlsx", "parquet":
		return ext, nil
	}
	return "", fmt.Errorf("unsupported export format %q (csv, xlsx or parquet)", filepath.Ext(path))
}

// writeExport writes f to path in the format named by its extension.
func writeExport(path, sheet string, f *frame.Frame) error {
	format, err := exportFormat(path)
	if err != nil {
		return err
	}
	var data []byte
	switch format {
	case "csv":
		var buf bytes.Buffer
		if err := frame.WriteCSV(&buf, f); err != nil {
			return err
		}
		data = buf.Bytes()
	case "parquet":
		if data, err = frame.EncodeParquet(f); err != nil {
			return err
		}
	case "xlsx":
		return writeXLSX(path, sheet, f)
	}
	return os.WriteFile(path, data, 0o644)
}

func writeXLSX(path, sheet string, f *frame.Frame) error {
	if sheet == "" {
		sheet = "dados"
	}
	if r := []rune(sheet); len(r) > maxSheetName {
		sheet = string(r[:maxSheetName])
	}
	wb := excelize.NewFile()
	defer wb.Close()
	if err := wb.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	sw, err := wb.NewStreamWriter(sheet)
	if err != nil {
		return err
	}

	cols := f.Columns()
	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}
	for i := 0; i < f.Len(); i++ {
		row := f.Row(i)
		cells := make([]any, len(cols))
		for j, c := range cols {
			cells[j] = xlsxValue(row.Get(c))
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, cells); err != nil {
			return fmt.Errorf("xlsx row %d: %w", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	return wb.SaveAs(path)
}

// xlsxValue keeps numbers and booleans native; dates and timestamps are
// written in their text form.
func xlsxValue(v any) any {
	switch v.(type) {
	case nil:
		return nil
	case float64, int64, bool, string:
		return v
	default:
		return frame.Format(v)
	}
}
