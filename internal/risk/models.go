package risk

import "github.com/techdengue/analytics/internal/weather"

// Trends derived from year-over-year variation.
const (
	TrendUp     = "aumentando"
	TrendDown   = "diminuindo"
	TrendStable = "estavel"
)

// Request carries the inputs of one analysis. Optional inputs left nil do
// not contribute to the score.
type Request struct {
	Municipio           string   `json:"municipio"`
	CodigoIBGE          string   `json:"codigo_ibge,omitempty"`
	CasosRecentes       int      `json:"casos_recentes"`
	CasosAnoAnterior    int      `json:"casos_ano_anterior"`
	Populacao           *float64 `json:"populacao,omitempty"`
	TemperaturaMedia    *float64 `json:"temperatura_media,omitempty"`
	UmidadeMedia        *float64 `json:"umidade_media,omitempty"`
	CoberturaSaneamento *float64 `json:"cobertura_saneamento,omitempty"`
}

// Response is the classified outcome of an analysis.
type Response struct {
	Municipio         string   `json:"municipio"`
	CodigoIBGE        string   `json:"codigo_ibge,omitempty"`
	NivelRisco        string   `json:"nivel_risco"`
	Score             float64  `json:"score"`
	Tendencia         string   `json:"tendencia"`
	FatoresPrincipais []string `json:"fatores_principais"`
	Recomendacoes     []string `json:"recomendacoes"`
	Confianca         float64  `json:"confianca"`
	ModeloUsado       string   `json:"modelo_usado"`
}

// Alert summarizes a set of responses.
type Alert struct {
	Alerta     string   `json:"alerta"`
	Nivel      string   `json:"nivel"`
	Criticos   int      `json:"municipios_criticos"`
	Altos      int      `json:"municipios_alto_risco"`
	Mensagem   string   `json:"mensagem"`
	Municipios []string `json:"municipios_afetados,omitempty"`
}

// Dashboard is the body of GET /api/v1/risk/dashboard.
type Dashboard struct {
	Total    int            `json:"total"`
	PorNivel map[string]int `json:"por_nivel"`
	Alerta   Alert          `json:"alerta"`
	Items    []Response     `json:"items"`
}

var validLevels = map[string]bool{
	weather.LevelLow:      true,
	weather.LevelMedium:   true,
	weather.LevelHigh:     true,
	weather.LevelCritical: true,
}

var validTrends = map[string]bool{TrendUp: true, TrendDown: true, TrendStable: true}

var recommendations = map[string][]string{
	weather.LevelCritical: {
		"Declarar estado de alerta epidemiológico no município",
		"Ativar sala de situação e plano de contingência",
		"Realizar mutirões de eliminação de criadouros",
		"Ampliar atendimento e hidratação na rede de saúde",
		"Intensificar mapeamento de POIs com drones",
	},
	weather.LevelHigh: {
		"Intensificar vistorias nos bairros com mais casos",
		"Reforçar campanhas de comunicação com a população",
		"Preparar a rede de saúde para aumento de demanda",
		"Priorizar bloqueio de transmissão nas áreas com casos",
	},
	weather.LevelMedium: {
		"Manter vistorias periódicas e LIRAa em dia",
		"Orientar a população sobre prevenção",
		"Monitorar semanalmente a evolução dos casos",
	},
	weather.LevelLow: {
		"Manter vigilância de rotina",
		"Acompanhar indicadores climáticos",
	},
}

// Recommendations returns the fixed recommendation list of a level.
func Recommendations(level string) []string {
	return append([]string(nil), recommendations[level]...)
}
