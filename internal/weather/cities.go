package weather

import (
	"sort"
	"strings"

	"github.com/techdengue/analytics/internal/sources"
)

// City is an entry of the city dictionary.
type City struct {
	Name string  `json:"nome"`
	Lat  float64 `json:"latitude"`
	Lon  float64 `json:"longitude"`
}

// Cities are the principal MG municipalities with known coordinates, keyed
// by normalized name.
var Cities = map[string]City{
	"belo horizonte":       {"Belo Horizonte", -19.9167, -43.9345},
	"uberlandia":           {"Uberlândia", -18.9186, -48.2772},
	"contagem":             {"Contagem", -19.9320, -44.0539},
	"juiz de fora":         {"Juiz de Fora", -21.7642, -43.3503},
	"betim":                {"Betim", -19.9678, -44.1983},
	"montes claros":        {"Montes Claros", -16.7350, -43.8617},
	"ribeirao das neves":   {"Ribeirão das Neves", -19.7669, -44.0869},
	"uberaba":              {"Uberaba", -19.7472, -47.9381},
	"governador valadares": {"Governador Valadares", -18.8511, -41.9494},
	"ipatinga":             {"Ipatinga", -19.4683, -42.5367},
	"sete lagoas":          {"Sete Lagoas", -19.4658, -44.2467},
	"divinopolis":          {"Divinópolis", -20.1389, -44.8839},
	"santa luzia":          {"Santa Luzia", -19.7697, -43.8514},
	"ibirite":              {"Ibirité", -20.0219, -44.0589},
	"pocos de caldas":      {"Poços de Caldas", -21.7878, -46.5614},
	"patos de minas":       {"Patos de Minas", -18.5789, -46.5183},
	"pouso alegre":         {"Pouso Alegre", -22.2300, -45.9364},
	"teofilo otoni":        {"Teófilo Otoni", -17.8575, -41.5053},
	"barbacena":            {"Barbacena", -21.2258, -43.7736},
	"varginha":             {"Varginha", -21.5514, -45.4303},
	"conselheiro lafaiete": {"Conselheiro Lafaiete", -20.6603, -43.7861},
	"itabira":              {"Itabira", -19.6192, -43.2269},
	"araguari":             {"Araguari", -18.6489, -48.1872},
	"passos":               {"Passos", -20.7189, -46.6097},
	"coronel fabriciano":   {"Coronel Fabriciano", -19.5186, -42.6289},
}

// NormalizeCity lowercases, strips accents and turns hyphens into spaces, so
// "Belo-Horizonte" and "belo horizonte" resolve alike.
func NormalizeCity(name string) string {
	name = strings.ReplaceAll(name, "-", " ")
	name = strings.ReplaceAll(name, "_", " ")
	return strings.ToLower(sources.FoldASCII(name))
}

// Lookup resolves a city name through the dictionary.
func Lookup(name string) (City, bool) {
	c, ok := Cities[NormalizeCity(name)]
	return c, ok
}

// CityKeys returns the dictionary keys in sorted order.
func CityKeys() []string {
	keys := make([]string, 0, len(Cities))
	for k := range Cities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
