package risk

import (
	"context"
	"fmt"
	"math"

	"github.com/techdengue/analytics/internal/weather"
)

// Rule weights. They add up to 100.
const (
	weightIncidence  = 35
	weightVariation  = 25
	weightTemp       = 15
	weightHumidity   = 15
	weightSanitation = 10
)

const (
	// incidenceCeiling is the per 100k incidence that earns the full weight.
	incidenceCeiling = 300.0
	// trendThreshold is the variation, in percent, beyond which a trend is reported.
	trendThreshold = 10.0

	ruleConfidence = 0.7
	ruleModel      = "rule-based-v1"
)

// Analyzer produces a risk response from a request.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (Response, error)
	Name() string
}

// Rules is the deterministic weighted-score analyzer.
type Rules struct{}

func (Rules) Name() string { return ruleModel }

// Variation is the year-over-year change in percent. A rise from zero counts
// as 100 %.
func Variation(recent, previous int) float64 {
	switch {
	case previous > 0:
		return float64(recent-previous) / float64(previous) * 100
	case recent > 0:
		return 100
	default:
		return 0
	}
}

// Trend classifies a variation.
func Trend(variation float64) string {
	switch {
	case variation > trendThreshold:
		return TrendUp
	case variation < -trendThreshold:
		return TrendDown
	default:
		return TrendStable
	}
}

// Incidence is cases per 100k inhabitants, zero when population is unknown.
func Incidence(cases int, population *float64) float64 {
	if population == nil || *population <= 0 {
		return 0
	}
	return float64(cases) / *population * 100_000
}

func clamp01(x float64) float64 { return math.Min(math.Max(x, 0), 1) }

// Analyze scores a request. It never fails.
func (Rules) Analyze(_ context.Context, req Request) (Response, error) {
	var score float64
	var factors []string

	inc := Incidence(req.CasosRecentes, req.Populacao)
	if inc > 0 {
		score += weightIncidence * clamp01(inc/incidenceCeiling)
		factors = append(factors, fmt.Sprintf("Incidência de %.1f casos por 100 mil habitantes", inc))
	}

	variation := Variation(req.CasosRecentes, req.CasosAnoAnterior)
	if variation > 0 {
		score += weightVariation * clamp01(variation/100)
		factors = append(factors, fmt.Sprintf("Aumento de %.0f%% nos casos em relação ao ano anterior", variation))
	}

	if t := req.TemperaturaMedia; t != nil {
		switch {
		case *t >= 25 && *t <= 30:
			score += weightTemp
			factors = append(factors, fmt.Sprintf("Temperatura média favorável ao vetor (%.1f °C)", *t))
		case *t >= 20 && *t <= 32:
			score += weightTemp / 2
			factors = append(factors, fmt.Sprintf("Temperatura média moderadamente favorável (%.1f °C)", *t))
		}
	}

	if h := req.UmidadeMedia; h != nil {
		switch {
		case *h >= 80:
			score += weightHumidity
			factors = append(factors, fmt.Sprintf("Umidade elevada (%.0f%%)", *h))
		case *h >= 60:
			score += weightHumidity / 2
			factors = append(factors, fmt.Sprintf("Umidade moderada (%.0f%%)", *h))
		}
	}

	if s := req.CoberturaSaneamento; s != nil {
		gap := clamp01((100 - *s) / 100)
		score += weightSanitation * gap
		if *s < 60 {
			factors = append(factors, fmt.Sprintf("Baixa cobertura de saneamento (%.0f%%)", *s))
		}
	}

	if len(factors) == 0 {
		factors = []string{"Nenhum fator de risco relevante identificado"}
	}
	score = math.Min(math.Round(score*10)/10, 100)
	level := weather.Level(score)
	return Response{
		Municipio:         req.Municipio,
		CodigoIBGE:        req.CodigoIBGE,
		NivelRisco:        level,
		Score:             score,
		Tendencia:         Trend(variation),
		FatoresPrincipais: factors,
		Recomendacoes:     Recommendations(level),
		Confianca:         ruleConfidence,
		ModeloUsado:       ruleModel,
	}, nil
}
