package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/techdengue/analytics/internal/config"
	"github.com/techdengue/analytics/internal/frame"
	"github.com/techdengue/analytics/internal/sources"
	"github.com/techdengue/analytics/internal/store"
	"github.com/techdengue/analytics/internal/validate"
)

var (
	// ErrValidationFailed means the validator reported ERROR issues and nothing was written.
	ErrValidationFailed = errors.New("mega-planilha validation failed")
	// ErrPartialRun means at least one artifact failed while others may have been written.
	ErrPartialRun = errors.New("one or more artifacts failed")
)

// Artifacts are the store artifacts the pipeline produces.
var Artifacts = []string{store.FactActivities, store.FactDengue, store.DimMunicipios, store.GoldAnalise}

// ArtifactResult reports the outcome for one artifact.
type ArtifactResult struct {
	Artifact string `json:"artifact" yaml:"artifact"`
	Rows     int    `json:"rows" yaml:"rows"`
	Hash     string `json:"hash,omitempty" yaml:"hash,omitempty"`
	Skipped  bool   `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

// RunReport is what a run surfaces to the operator.
type RunReport struct {
	StartedAt        time.Time        `json:"started_at" yaml:"started_at"`
	Duration         time.Duration    `json:"duration_ns" yaml:"duration_ns"`
	Validation       *validate.Report `json:"validation,omitempty" yaml:"validation,omitempty"`
	Artifacts        []ArtifactResult `json:"artifacts" yaml:"artifacts"`
	DroppedRows      int              `json:"dropped_rows" yaml:"dropped_rows"`
	UnresolvedDengue int              `json:"unresolved_dengue" yaml:"unresolved_dengue"`
}

// Failed reports whether any artifact failed.
func (r *RunReport) Failed() bool {
	for _, a := range r.Artifacts {
		if a.Error != "" {
			return true
		}
	}
	return false
}

// RunOptions selects what a run writes.
type RunOptions struct {
	// Only restricts writes to these artifacts; empty means all.
	Only []string
	// Force rewrites artifacts that are still fresh.
	Force bool
}

// Runner executes the pipeline against a store.
type Runner struct {
	Store *store.Store
	Cfg   config.PipelineConfig
	Now   func() time.Time
}

func NewRunner(s *store.Store, cfg config.PipelineConfig) *Runner {
	return &Runner{Store: s, Cfg: cfg, Now: time.Now}
}

func (r *Runner) wanted(opts RunOptions, name string) bool {
	if len(opts.Only) == 0 {
		return true
	}
	for _, n := range opts.Only {
		if n == name {
			return true
		}
	}
	return false
}

// Run reads the sources, validates the mega-planilha, builds every artifact
// and writes the requested ones. A validation failure returns
// ErrValidationFailed without writing anything. Per-artifact failures are
// recorded in the report and surface as ErrPartialRun.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*RunReport, error) {
	now := r.Now
	if now == nil {
		now = time.Now
	}
	report := &RunReport{StartedAt: now().UTC()}
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	if !opts.Force && r.allFresh(opts) {
		for _, name := range Artifacts {
			if r.wanted(opts, name) {
				report.Artifacts = append(report.Artifacts, ArtifactResult{Artifact: name, Skipped: true})
			}
		}
		log.Printf("[pipeline] all requested artifacts are fresh, skipping (use force to rebuild)")
		return report, nil
	}

	sheet, err := sources.ReadMegaPlanilha(r.Cfg.MegaPlanilhaPath)
	if err != nil {
		return report, fmt.Errorf("read mega-planilha: %w", err)
	}
	rep := validate.Validate(sheet)
	report.Validation = &rep
	if !rep.OK {
		log.Printf("[pipeline] validation failed with %d errors, nothing written", len(rep.Errors()))
		return report, ErrValidationFailed
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	loadedAt := now()
	canonical := Canonical(sheet.Frame, loadedAt, r.Cfg.SchemaVersion)
	report.DroppedRows = sheet.Frame.Len() - rawRowsKept(sheet.Frame)
	log.Printf("[pipeline] canonical: %d raw rows -> %d activities", sheet.Frame.Len(), canonical.Len())

	var dim *frame.Frame
	dimErr := func() error {
		ibge, err := sources.ReadIBGE(r.Cfg.MegaPlanilhaPath)
		if err != nil {
			return err
		}
		dim = Dimension(ibge.Frame)
		return nil
	}()

	var dengue *frame.Frame
	dengueErr := func() error {
		paths, err := sources.DengueFiles(r.Cfg.DengueDir)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return fmt.Errorf("no dengue files in %s", r.Cfg.DengueDir)
		}
		files := make([]*sources.DengueFile, 0, len(paths))
		for _, p := range paths {
			f, err := sources.ReadDengueFile(p)
			if err != nil {
				return err
			}
			files = append(files, f)
		}
		res := BuildDengue(files, dim, r.Cfg.EpiWeekLimit)
		report.UnresolvedDengue = res.Unresolved
		dengue = res.Frame.WithColumn(ColDataCarga, func(frame.Row) any { return loadedAt.UTC() })
		return nil
	}()

	gold := Gold(canonical, dim, dengue)

	r.write(report, opts, store.FactActivities, canonical, nil)
	r.write(report, opts, store.DimMunicipios, withLoad(dim, loadedAt), dimErr)
	r.write(report, opts, store.FactDengue, dengue, dengueErr)
	r.write(report, opts, store.GoldAnalise, gold, nil)

	if report.Failed() {
		return report, ErrPartialRun
	}
	return report, nil
}

func (r *Runner) allFresh(opts RunOptions) bool {
	for _, name := range Artifacts {
		if r.wanted(opts, name) && !r.Store.IsFresh(name) {
			return false
		}
	}
	return true
}

func (r *Runner) write(report *RunReport, opts RunOptions, name string, f *frame.Frame, buildErr error) {
	if !r.wanted(opts, name) {
		return
	}
	res := ArtifactResult{Artifact: name}
	switch {
	case buildErr != nil:
		res.Error = buildErr.Error()
	case f == nil:
		res.Error = "no data"
	default:
		meta, err := r.Store.Write(name, f)
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Rows = meta.RowCount
			res.Hash = meta.Hash
		}
	}
	if res.Error != "" {
		log.Printf("[pipeline] %s failed: %s", name, res.Error)
	}
	report.Artifacts = append(report.Artifacts, res)
}

func withLoad(f *frame.Frame, at time.Time) *frame.Frame {
	if f == nil {
		return nil
	}
	return f.WithColumn(ColDataCarga, func(frame.Row) any { return at.UTC() })
}

// rawRowsKept counts raw rows with a complete canonical key.
func rawRowsKept(raw *frame.Frame) int {
	n := 0
	for i := 0; i < raw.Len(); i++ {
		row := raw.Row(i)
		if row.Get(sources.ColCodigoIBGE) != nil && row.Get(sources.ColDataMap) != nil && row.Get(sources.ColAtividade) != nil {
			n++
		}
	}
	return n
}
