// Package store is the analytical store: one parquet file per artifact in a
// single directory, plus a JSON journal tracking freshness and content hashes.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/techdengue/analytics/internal/frame"
)

// Artifact names.
const (
	FactActivities = "fato_atividades_techdengue"
	FactDengue     = "fato_dengue_historico"
	DimMunicipios  = "dim_municipios"
	GoldAnalise    = "analise_integrada"
	GISPOIs        = "gis_pois"
	GISBanco       = "gis_banco"
)

// Artifacts lists every artifact the store knows about, pipeline outputs first.
var Artifacts = []string{FactActivities, FactDengue, DimMunicipios, GoldAnalise, GISPOIs, GISBanco}

// LoadColumn is excluded from content hashes so reruns over the same input hash identically.
const LoadColumn = "data_carga"

const journalName = "_metadata.json"

var ErrNotFound = errors.New("artifact not found")

// Metadata is one journal entry.
type Metadata struct {
	LastSync      time.Time `json:"last_sync" yaml:"last_sync"`
	RowCount      int       `json:"row_count" yaml:"row_count"`
	Columns       []string  `json:"columns" yaml:"columns"`
	Hash          string    `json:"hash" yaml:"hash"`
	Path          string    `json:"path" yaml:"path"`
	SchemaVersion string    `json:"schema_version,omitempty" yaml:"schema_version,omitempty"`
}

// Options configures a Store.
type Options struct {
	Dir           string
	SchemaVersion string
	FreshTTL      time.Duration
	CacheTTL      time.Duration
	// Remote, when set, serves reads instead of the local directory.
	Remote Fetcher
	Now    func() time.Time
}

type Store struct {
	dir           string
	schemaVersion string
	freshTTL      time.Duration
	remote        Fetcher
	cache         *FileCache
	now           func() time.Time

	mu sync.Mutex // serializes journal rewrites
}

func New(opts Options) *Store {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		dir:           opts.Dir,
		schemaVersion: opts.SchemaVersion,
		freshTTL:      opts.FreshTTL,
		remote:        opts.Remote,
		cache:         NewFileCache(opts.CacheTTL, now),
		now:           now,
	}
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) Cache() *FileCache { return s.cache }

// Remote reports the remote source description, or "" for local reads.
func (s *Store) Remote() string {
	if s.remote == nil {
		return ""
	}
	return s.remote.Describe("")
}

// Path returns the local file path of an artifact.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name+".parquet")
}

// Write persists f as the named artifact and records it in the journal.
// The file is written to a temporary name and renamed into place.
func (s *Store) Write(name string, f *frame.Frame) (Metadata, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Metadata{}, fmt.Errorf("create store dir: %w", err)
	}
	data, err := frame.EncodeParquet(f)
	if err != nil {
		return Metadata{}, fmt.Errorf("encode %s: %w", name, err)
	}
	path := s.Path(name)
	if err := writeAtomic(path, data); err != nil {
		return Metadata{}, fmt.Errorf("write %s: %w", name, err)
	}
	meta := Metadata{
		LastSync:      s.now().UTC(),
		RowCount:      f.Len(),
		Columns:       f.Columns(),
		Hash:          f.Hash(LoadColumn),
		Path:          path,
		SchemaVersion: s.schemaVersion,
	}
	if err := s.updateJournal(name, meta); err != nil {
		return Metadata{}, err
	}
	log.Printf("[store] wrote %s (%d rows, hash %s)", name, meta.RowCount, meta.Hash)
	return meta, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *Store) journalPath() string { return filepath.Join(s.dir, journalName) }

func (s *Store) updateJournal(name string, meta Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.readJournal()
	if err != nil {
		return err
	}
	j[name] = meta
	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return err
	}
	if err := writeAtomic(s.journalPath(), data); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	return nil
}

func (s *Store) readJournal() (map[string]Metadata, error) {
	j := map[string]Metadata{}
	data, err := os.ReadFile(s.journalPath())
	if errors.Is(err, os.ErrNotExist) {
		return j, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse journal: %w", err)
	}
	return j, nil
}

// Journal returns every journal entry.
func (s *Store) Journal() (map[string]Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readJournal()
}

// Metadata returns the journal entry of an artifact.
func (s *Store) Metadata(name string) (Metadata, bool, error) {
	j, err := s.Journal()
	if err != nil {
		return Metadata{}, false, err
	}
	m, ok := j[name]
	return m, ok, nil
}

// IsFresh reports whether the artifact was synced within the freshness TTL.
// Staleness is advisory and never blocks reads.
func (s *Store) IsFresh(name string) bool {
	m, ok, err := s.Metadata(name)
	if err != nil || !ok {
		return false
	}
	return s.now().Sub(m.LastSync) < s.freshTTL
}

// Load returns the artifact as a frame the caller may freely mutate.
func (s *Store) Load(ctx context.Context, name string) (*frame.Frame, error) {
	if s.remote != nil {
		key := s.remote.Describe(name)
		return s.cache.GetRemote(key, func() (*frame.Frame, error) {
			data, err := s.remote.Fetch(ctx, name)
			if err != nil {
				return nil, err
			}
			return frame.ReadParquet(data)
		})
	}
	path := s.Path(name)
	return s.cache.GetLocal(path, func() (*frame.Frame, error) {
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		if err != nil {
			return nil, err
		}
		return frame.ReadParquet(data)
	})
}

// LoadLocal bypasses the remote source and the cache.
func (s *Store) LoadLocal(name string) (*frame.Frame, error) {
	data, err := os.ReadFile(s.Path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return frame.ReadParquet(data)
}

// Exists reports whether the artifact has a local file.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// Available lists the artifacts that can be loaded, in Artifacts order.
func (s *Store) Available(ctx context.Context) []string {
	var out []string
	for _, name := range Artifacts {
		if s.remote == nil {
			if s.Exists(name) {
				out = append(out, name)
			}
			continue
		}
		if _, err := s.Load(ctx, name); err == nil {
			out = append(out, name)
		}
	}
	return out
}
