package weather

import "time"

// Data sources of a weather reading.
const (
	SourceOpenWeather = "openweathermap"
	SourceSimulated   = "simulado"
)

// SimulatedMarker is appended to the description of mock readings.
const SimulatedMarker = "(dados simulados)"

// Current is the weather of one city with its favorability index.
type Current struct {
	Cidade          string    `json:"cidade"`
	Estado          string    `json:"estado"`
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	Temperatura     float64   `json:"temperatura"`
	SensacaoTermica float64   `json:"sensacao_termica"`
	TemperaturaMin  float64   `json:"temperatura_min"`
	TemperaturaMax  float64   `json:"temperatura_max"`
	Umidade         float64   `json:"umidade"`
	Pressao         float64   `json:"pressao"`
	VelocidadeVento float64   `json:"velocidade_vento"`
	Chuva1h         float64   `json:"chuva_1h"`
	Nuvens          float64   `json:"nuvens"`
	Descricao       string    `json:"descricao"`
	Icone           string    `json:"icone,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	Fonte           string    `json:"fonte"`
	Favorabilidade  float64   `json:"indice_favorabilidade_dengue"`
}

// ClimateRisk is the body of GET /api/v1/weather/{city}/risk.
type ClimateRisk struct {
	Cidade         string   `json:"cidade"`
	Favorabilidade float64  `json:"indice_favorabilidade_dengue"`
	NivelRisco     string   `json:"nivel_risco"`
	Recomendacoes  []string `json:"recomendacoes"`
	Clima          Current  `json:"clima"`
}

// owResponse is the subset of the OpenWeather current weather payload we read.
type owResponse struct {
	Weather []struct {
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		TempMin   float64 `json:"temp_min"`
		TempMax   float64 `json:"temp_max"`
		Pressure  float64 `json:"pressure"`
		Humidity  float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Rain struct {
		OneHour float64 `json:"1h"`
	} `json:"rain"`
	Clouds struct {
		All float64 `json:"all"`
	} `json:"clouds"`
	Dt int64 `json:"dt"`
}
