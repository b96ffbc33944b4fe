// Package weather provides current weather for the principal MG cities and
// a dengue favorability index derived from it.
package weather

import (
	"context"
	"errors"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/techdengue/analytics/internal/cache"
	"github.com/techdengue/analytics/internal/provider"
)

// CacheTTL is how long a reading is reused.
const CacheTTL = 30 * time.Minute

var ErrUnknownCity = errors.New("city not in dictionary")

// Fetcher returns a live reading.
type Fetcher interface {
	Fetch(ctx context.Context, city City) (Current, error)
}

// Service answers weather lookups, degrading to simulated readings when the
// provider is missing or failing.
type Service struct {
	fetcher Fetcher
	cache   *cache.Cache
	now     func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewService builds a service. A nil fetcher always simulates.
func NewService(f Fetcher, c *cache.Cache) *Service {
	return &Service{
		fetcher: f,
		cache:   c,
		now:     time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Init wires the OpenWeather client when a key is configured.
func Init(cfg provider.Config, c *cache.Cache) *Service {
	if cfg.OpenWeatherKey == "" {
		log.Printf("[weather] %v", provider.ErrMissingOpenWeatherKey)
		return NewService(nil, c)
	}
	log.Println("Weather module initialized (openweathermap)")
	return NewService(NewClient(cfg.OpenWeatherKey), c)
}

// Live reports whether readings come from the provider.
func (s *Service) Live() bool { return s.fetcher != nil }

// Current returns the reading of a named city, cached for 30 minutes.
func (s *Service) Current(ctx context.Context, name string) (Current, error) {
	city, ok := Lookup(name)
	if !ok {
		return Current{}, ErrUnknownCity
	}
	return cache.Remember(ctx, s.cache, "weather", NormalizeCity(name), CacheTTL, func() (Current, error) {
		if s.fetcher == nil {
			return s.simulate(city), nil
		}
		cur, err := s.fetcher.Fetch(ctx, city)
		if err != nil {
			provider.LogFallback("weather", "simulated reading", err)
			return s.simulate(city), nil
		}
		return cur, nil
	})
}

// All returns the readings of every dictionary city, in name order.
func (s *Service) All(ctx context.Context) []Current {
	out := make([]Current, 0, len(Cities))
	for _, k := range CityKeys() {
		if cur, err := s.Current(ctx, k); err == nil {
			out = append(out, cur)
		}
	}
	return out
}

// Risk classifies the climatic risk of a city.
func (s *Service) Risk(ctx context.Context, name string) (ClimateRisk, error) {
	cur, err := s.Current(ctx, name)
	if err != nil {
		return ClimateRisk{}, err
	}
	level := Level(cur.Favorabilidade)
	return ClimateRisk{
		Cidade:         cur.Cidade,
		Favorabilidade: cur.Favorabilidade,
		NivelRisco:     level,
		Recomendacoes:  Recommendations(level),
		Clima:          cur,
	}, nil
}

func round1(x float64) float64 { return math.Round(x*10) / 10 }

// simulate draws a plausible MG reading.
func (s *Service) simulate(city City) Current {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.rnd
	temp := round1(18 + r.Float64()*14)
	cur := Current{
		Cidade:          city.Name,
		Estado:          "MG",
		Latitude:        city.Lat,
		Longitude:       city.Lon,
		Temperatura:     temp,
		SensacaoTermica: round1(temp + r.Float64()*3 - 1),
		TemperaturaMin:  round1(temp - 2 - r.Float64()*3),
		TemperaturaMax:  round1(temp + 2 + r.Float64()*3),
		Umidade:         math.Round(45 + r.Float64()*50),
		Pressao:         math.Round(1008 + r.Float64()*12),
		VelocidadeVento: round1(r.Float64() * 6),
		Nuvens:          math.Round(r.Float64() * 100),
		Descricao:       "céu parcialmente nublado " + SimulatedMarker,
		Timestamp:       s.now().UTC(),
		Fonte:           SourceSimulated,
	}
	if r.Float64() < 0.4 {
		cur.Chuva1h = round1(r.Float64() * 12)
		cur.Descricao = "chuva leve " + SimulatedMarker
	}
	cur.Favorabilidade = Favorability(cur.Temperatura, cur.Umidade, cur.Chuva1h, cur.VelocidadeVento)
	return cur
}
