package weather

import "math"

// Favorability sub-score weights. They add up to 100.
const (
	weightTemperature = 40
	weightHumidity    = 35
	weightRain        = 15
	weightWind        = 10
)

// ramp maps x linearly from 0 at lo to 1 at hi, clamped.
func ramp(x, lo, hi float64) float64 {
	if hi == lo {
		return 0
	}
	return math.Min(math.Max((x-lo)/(hi-lo), 0), 1)
}

func temperatureScore(c float64) float64 {
	switch {
	case c >= 25 && c <= 30:
		return 1
	case c < 25:
		return ramp(c, 15, 25)
	default:
		return 1 - ramp(c, 30, 35)
	}
}

func humidityScore(pct float64) float64 {
	if pct >= 80 {
		return 1
	}
	return ramp(pct, 40, 80)
}

func rainScore(mm float64) float64 {
	switch {
	case mm >= 1 && mm <= 10:
		return 1
	case mm < 1:
		return ramp(mm, 0, 1)
	default:
		return 1 - ramp(mm, 10, 30)
	}
}

func windScore(ms float64) float64 {
	if ms <= 1 {
		return 1
	}
	return 1 - ramp(ms, 1, 10)
}

// Favorability is the [0, 100] index of how favorable the weather is to the
// vector: warm, humid, light rain, little wind.
func Favorability(tempC, humidityPct, rain1hMM, windMS float64) float64 {
	score := weightTemperature*temperatureScore(tempC) +
		weightHumidity*humidityScore(humidityPct) +
		weightRain*rainScore(rain1hMM) +
		weightWind*windScore(windMS)
	score = math.Round(score*10) / 10
	return math.Min(math.Max(score, 0), 100)
}

// Risk levels shared with the risk analyzer.
const (
	LevelLow      = "baixo"
	LevelMedium   = "moderado"
	LevelHigh     = "alto"
	LevelCritical = "critico"
)

// Level classifies a [0, 100] score.
func Level(score float64) string {
	switch {
	case score >= 75:
		return LevelCritical
	case score >= 50:
		return LevelHigh
	case score >= 25:
		return LevelMedium
	default:
		return LevelLow
	}
}

var recommendations = map[string][]string{
	LevelCritical: {
		"Intensificar vistorias e eliminação de criadouros imediatamente",
		"Acionar equipes de tratamento focal e bloqueio de transmissão",
		"Emitir alerta à população sobre água parada",
		"Priorizar áreas com maior concentração de POIs",
	},
	LevelHigh: {
		"Ampliar frequência de vistorias nas áreas de risco",
		"Reforçar campanhas de conscientização",
		"Monitorar diariamente as condições climáticas",
	},
	LevelMedium: {
		"Manter vistorias de rotina",
		"Orientar moradores sobre prevenção de criadouros",
	},
	LevelLow: {
		"Manter monitoramento regular",
	},
}

// Recommendations returns the fixed recommendation list of a level.
func Recommendations(level string) []string {
	return append([]string(nil), recommendations[level]...)
}
