package datasets

// Summary group_by values.
const (
	GroupMunicipio  = "municipio"
	GroupCodigoIBGE = "codigo_ibge"
	GroupAtividade  = "atividade"
)

// SummaryRow aggregates the activity facts of one group.
type SummaryRow struct {
	Key               string  `json:"key"`
	Atividades        int64   `json:"total_atividades"`
	POIs              float64 `json:"total_pois"`
	Devolutivas       float64 `json:"total_devolutivas"`
	Hectares          float64 `json:"total_hectares"`
	Municipios        int     `json:"municipios,omitempty"`
	PrimeiraAtividade string  `json:"primeira_atividade,omitempty"`
	UltimaAtividade   string  `json:"ultima_atividade,omitempty"`
}

// SummaryResponse is the body of GET /facts/summary.
type SummaryResponse struct {
	GroupBy string       `json:"group_by"`
	Totals  SummaryRow   `json:"totals"`
	Groups  int          `json:"total_groups"`
	Items   []SummaryRow `json:"items"`
}

// Municipio is the body of GET /municipios/{ibge}.
type Municipio struct {
	Dimension map[string]any   `json:"municipio"`
	Dengue    []map[string]any `json:"dengue"`
	Atividade *SummaryRow      `json:"atividades,omitempty"`
}
