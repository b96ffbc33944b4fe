package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/techdengue/analytics/internal/provider"
)

// BaseURL is the OpenWeather current weather endpoint.
const BaseURL = "https://api.openweathermap.org/data/2.5/weather"

// Client calls OpenWeather with metric units and Portuguese descriptions.
type Client struct {
	apiKey  string
	baseURL string
	http    *provider.HTTP
}

// NewClient allows 50 calls per minute, under the free plan's 60.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: BaseURL,
		http:    provider.NewHTTP("openweather", 10*time.Second, 50, 5),
	}
}

// WithBaseURL points the client at another endpoint.
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = u
	return c
}

// Fetch returns the current weather at a coordinate.
func (c *Client) Fetch(ctx context.Context, city City) (Current, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(city.Lat, 'f', 4, 64))
	params.Set("lon", strconv.FormatFloat(city.Lon, 'f', 4, 64))
	params.Set("units", "metric")
	params.Set("lang", "pt_br")
	params.Set("appid", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return Current{}, fmt.Errorf("create request: %w", err)
	}
	body, err := c.http.Do(ctx, req)
	if err != nil {
		return Current{}, err
	}
	var ow owResponse
	if err := json.Unmarshal(body, &ow); err != nil {
		return Current{}, fmt.Errorf("decode openweather response: %w", err)
	}

	out := Current{
		Cidade:          city.Name,
		Estado:          "MG",
		Latitude:        city.Lat,
		Longitude:       city.Lon,
		Temperatura:     ow.Main.Temp,
		SensacaoTermica: ow.Main.FeelsLike,
		TemperaturaMin:  ow.Main.TempMin,
		TemperaturaMax:  ow.Main.TempMax,
		Umidade:         ow.Main.Humidity,
		Pressao:         ow.Main.Pressure,
		VelocidadeVento: ow.Wind.Speed,
		Chuva1h:         ow.Rain.OneHour,
		Nuvens:          ow.Clouds.All,
		Timestamp:       time.Unix(ow.Dt, 0).UTC(),
		Fonte:           SourceOpenWeather,
	}
	if len(ow.Weather) > 0 {
		out.Descricao, out.Icone = ow.Weather[0].Description, ow.Weather[0].Icon
	}
	out.Favorabilidade = Favorability(out.Temperatura, out.Umidade, out.Chuva1h, out.VelocidadeVento)
	return out, nil
}
