// Command techdengue is the operator CLI: GIS inspection, store sync, exports
// and warehouse loads.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/techdengue/analytics/internal/config"
	"github.com/techdengue/analytics/internal/db"
	"github.com/techdengue/analytics/internal/pipeline"
	"github.com/techdengue/analytics/internal/sources"
	"github.com/techdengue/analytics/internal/store"
)

var Version = "dev"

// Exit codes.
const (
	exitOK         = 0
	exitError      = 1
	exitValidation = 2
	exitCanceled   = 130
)

// errMismatch marks a warehouse that disagrees with the store.
var errMismatch = errors.New("warehouse does not match the store")

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		return exitCanceled
	case errors.Is(err, pipeline.ErrValidationFailed), errors.Is(err, errMismatch):
		return exitValidation
	default:
		return exitError
	}
}

// app carries what every command shares.
type app struct {
	output string
	cfg    *config.Config
	stdout io.Writer
	stderr io.Writer
}

func (a *app) loadConfig() error {
	if err := checkOutput(a.output); err != nil {
		return err
	}
	if a.cfg != nil {
		return nil
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg
	return nil
}

func (a *app) store() (*store.Store, error) {
	remote, err := store.RemoteFromConfig(a.cfg.Store.RemoteURL, a.cfg.Store.S3URI)
	if err != nil {
		return nil, err
	}
	return store.New(store.Options{
		Dir:           a.cfg.Store.Dir,
		SchemaVersion: a.cfg.Pipeline.SchemaVersion,
		FreshTTL:      a.cfg.Store.FreshTTL,
		CacheTTL:      a.cfg.Store.CacheTTL,
		Remote:        remote,
	}), nil
}

// localStore ignores remote settings; sync and ingest work on local files.
func (a *app) localStore() *store.Store {
	return store.New(store.Options{
		Dir:           a.cfg.Store.Dir,
		SchemaVersion: a.cfg.Pipeline.SchemaVersion,
		FreshTTL:      a.cfg.Store.FreshTTL,
		CacheTTL:      a.cfg.Store.CacheTTL,
	})
}

func (a *app) connectGIS(ctx context.Context) (*gorm.DB, error) {
	if err := a.cfg.RequireGIS(); err != nil {
		return nil, err
	}
	return db.Connect(ctx, a.cfg.GIS.DB, db.DefaultOptions())
}

func (a *app) adapter(gdb *gorm.DB) *sources.GISAdapter {
	return &sources.GISAdapter{
		DB:         gdb,
		Retry:      db.Retrier{Attempts: 3, Delay: 2 * time.Second},
		BancoTable: a.cfg.GIS.BancoTable,
		POIsTable:  a.cfg.GIS.POIsTable,
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "techdengue",
		Short:         "TechDengue data operations",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
	}
	root.PersistentFlags().StringVarP(&a.output, "output", "o", outputTable, "output format: table, json, csv or yaml")
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.AddCommand(
		testConnectionCmd(a),
		tableInfoCmd(a),
		statsCmd(a),
		queryCmd(a),
		syncCmd(a),
		syncStatusCmd(a),
		exportCmd(a),
		warehouseIngestCmd(a),
		warehouseValidateCmd(a),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{stdout: os.Stdout, stderr: os.Stderr}
	err := newRootCmd(a).ExecuteContext(ctx)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, context.Canceled) {
			err = fmt.Errorf("%w: %v", context.Canceled, err)
		}
		printError(a.stderr, "%v", err)
	}
	stop()
	os.Exit(exitCode(err))
}
