package health

import (
	"time"

	"github.com/techdengue/analytics/internal/audit"
	"github.com/techdengue/analytics/internal/cache"
	"github.com/techdengue/analytics/internal/store"
)

// DatasetState is the availability of one artifact.
type DatasetState struct {
	Available bool       `json:"available"`
	Rows      int        `json:"rows,omitempty"`
	LastSync  *time.Time `json:"last_sync,omitempty"`
	Fresh     bool       `json:"fresh"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	OK                bool                    `json:"ok"`
	Version           string                  `json:"version"`
	Datasets          map[string]DatasetState `json:"datasets"`
	DBConnected       bool                    `json:"db_connected"`
	Cache             string                  `json:"cache"`
	DatasetsAvailable int                     `json:"datasets_available"`
	Issues            []string                `json:"issues,omitempty"`
}

// Features reports which optional integrations are active.
type Features struct {
	RealWeather    bool `json:"real_weather"`
	LLMRisk        bool `json:"llm_risk"`
	GISDatabase    bool `json:"gis_database"`
	GISOptional    bool `json:"gis_optional"`
	RemoteDatasets bool `json:"remote_datasets"`
	ErrorReporting bool `json:"error_reporting"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Version        string      `json:"version"`
	StartedAt      time.Time   `json:"started_at"`
	UptimeSeconds  int64       `json:"uptime_seconds"`
	DatasetSource  string      `json:"dataset_source"`
	CacheBackend   string      `json:"cache_backend"`
	RateLimitStore string      `json:"rate_limit_backend"`
	Cache          cache.Stats `json:"cache"`
	Features       Features    `json:"features"`
}

// MonitorResponse is the dashboard payload of GET /monitor.
type MonitorResponse struct {
	GeneratedAt time.Time               `json:"generated_at"`
	Datasets    map[string]DatasetState `json:"datasets"`
	Requests    audit.Stats             `json:"requests"`
	Cache       cache.Stats             `json:"cache"`
	FileCache   store.FileCacheStats    `json:"file_cache"`
	Quality     int                     `json:"quality_score"`
}

// Check is one quality check.
type Check struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Penalty int    `json:"penalty"`
	Detail  string `json:"detail,omitempty"`
}

// QualityReport is the body of GET /quality.
type QualityReport struct {
	Score     int               `json:"score"`
	Checks    []Check           `json:"checks"`
	Integrity []store.Integrity `json:"integrity"`
}

// CatalogEntry describes one artifact in GET /datasets.
type CatalogEntry struct {
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Available     bool       `json:"available"`
	Rows          int        `json:"rows"`
	Columns       []string   `json:"columns,omitempty"`
	LastSync      *time.Time `json:"last_sync,omitempty"`
	Hash          string     `json:"hash,omitempty"`
	SchemaVersion string     `json:"schema_version,omitempty"`
	Fresh         bool       `json:"fresh"`
	Endpoint      string     `json:"endpoint,omitempty"`
}

var descriptions = map[string]struct{ text, endpoint string }{
	store.FactActivities: {"Atividades TechDengue deduplicadas por (codigo_ibge, data_map, nomenclatura_atividade)", "/facts"},
	store.FactDengue:     {"Casos de dengue por municipio e ano", "/dengue"},
	store.DimMunicipios:  {"Dimensao de municipios de MG com regionalizacao e populacao", "/municipios"},
	store.GoldAnalise:    {"Agregado mensal por municipio com casos e taxa de incidencia", "/gold/analise"},
	store.GISPOIs:        {"Snapshot da tabela de POIs do banco GIS", "/gis/pois"},
	store.GISBanco:       {"Snapshot da tabela banco_techdengue do banco GIS", "/gis/banco"},
}
