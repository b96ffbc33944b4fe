package risk

import "github.com/techdengue/analytics/internal/weather"

// Alert kinds.
const (
	AlertNone     = "nenhum"
	AlertOutbreak = "surto"
	AlertEpidemic = "epidemia"
)

// EpidemicAlert scans a set of responses: three or more critical
// municipalities raise an epidemic, one critical or five high an outbreak.
func EpidemicAlert(items []Response) Alert {
	a := Alert{Alerta: AlertNone, Nivel: "normal"}
	for _, it := range items {
		switch it.NivelRisco {
		case weather.LevelCritical:
			a.Criticos++
			a.Municipios = append(a.Municipios, it.Municipio)
		case weather.LevelHigh:
			a.Altos++
		}
	}
	switch {
	case a.Criticos >= 3:
		a.Alerta, a.Nivel = AlertEpidemic, "critical"
		a.Mensagem = "Situação epidêmica: múltiplos municípios em risco crítico"
	case a.Criticos >= 1 || a.Altos >= 5:
		a.Alerta, a.Nivel = AlertOutbreak, "high"
		a.Mensagem = "Risco de surto: municípios em risco crítico ou alto"
	default:
		a.Mensagem = "Sem alerta regional"
	}
	return a
}
