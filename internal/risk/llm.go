package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/techdengue/analytics/internal/provider"
)

const (
	// GroqURL is the OpenAI-compatible chat completion endpoint.
	GroqURL = "https://api.groq.com/openai/v1/chat/completions"

	DefaultModel = "llama-3.3-70b-versatile"

	llmConfidence = 0.85
)

var errIncompleteAnswer = errors.New("llm answer is missing required fields")

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Answer is the JSON object the model is asked to return.
type Answer struct {
	NivelRisco        string   `json:"nivel_risco"`
	Score             *float64 `json:"score"`
	Tendencia         string   `json:"tendencia"`
	FatoresPrincipais []string `json:"fatores_principais"`
	Recomendacoes     []string `json:"recomendacoes"`
}

// LLM asks a chat completion model for the analysis and falls back to
// Fallback on any failure.
type LLM struct {
	APIKey   string
	Model    string
	URL      string
	HTTP     *provider.HTTP
	Fallback Analyzer
}

// NewLLM returns a Groq-backed analyzer with a 30 s timeout.
func NewLLM(apiKey, model string) *LLM {
	if model == "" {
		model = DefaultModel
	}
	return &LLM{
		APIKey:   apiKey,
		Model:    model,
		URL:      GroqURL,
		HTTP:     provider.NewHTTP("groq", 30*time.Second, 30, 5),
		Fallback: Rules{},
	}
}

func (l *LLM) Name() string { return "groq:" + l.Model }

// Analyze returns the model's answer, or the fallback analysis when the call
// or its parsing fails.
func (l *LLM) Analyze(ctx context.Context, req Request) (Response, error) {
	resp, err := l.ask(ctx, req)
	if err == nil {
		return resp, nil
	}
	if l.Fallback == nil {
		return Response{}, err
	}
	provider.LogFallback("risk", l.Fallback.Name(), err)
	return l.Fallback.Analyze(ctx, req)
}

func (l *LLM) ask(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(chatRequest{
		Model: l.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(req)},
		},
		Temperature:    0.2,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return Response{}, fmt.Errorf("encode chat request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.URL, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+l.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	raw, err := l.HTTP.Do(ctx, httpReq)
	if err != nil {
		return Response{}, err
	}
	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err != nil {
		return Response{}, fmt.Errorf("decode chat response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return Response{}, errIncompleteAnswer
	}
	answer, err := ParseAnswer(chat.Choices[0].Message.Content)
	if err != nil {
		return Response{}, err
	}
	score := math.Min(math.Max(*answer.Score, 0), 100)
	recs := answer.Recomendacoes
	if len(recs) == 0 {
		recs = Recommendations(answer.NivelRisco)
	}
	return Response{
		Municipio:         req.Municipio,
		CodigoIBGE:        req.CodigoIBGE,
		NivelRisco:        answer.NivelRisco,
		Score:             score,
		Tendencia:         answer.Tendencia,
		FatoresPrincipais: answer.FatoresPrincipais,
		Recomendacoes:     recs,
		Confianca:         llmConfidence,
		ModeloUsado:       l.Name(),
	}, nil
}

// StripFences removes a surrounding markdown code fence, if any.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ParseAnswer decodes and checks the model's JSON content.
func ParseAnswer(content string) (Answer, error) {
	var a Answer
	if err := json.Unmarshal([]byte(StripFences(content)), &a); err != nil {
		return a, fmt.Errorf("decode llm answer: %w", err)
	}
	a.NivelRisco = strings.ToLower(strings.TrimSpace(a.NivelRisco))
	a.Tendencia = strings.ToLower(strings.TrimSpace(a.Tendencia))
	if !validLevels[a.NivelRisco] || !validTrends[a.Tendencia] || a.Score == nil || len(a.FatoresPrincipais) == 0 {
		return a, errIncompleteAnswer
	}
	return a, nil
}

const systemPrompt = `Você é um epidemiologista especialista em arboviroses no estado de Minas Gerais.
Analise o risco de dengue do município com base nos dados fornecidos e responda SOMENTE com um objeto JSON com os campos:
"nivel_risco" (um de: baixo, moderado, alto, critico),
"score" (número de 0 a 100),
"tendencia" (um de: aumentando, diminuindo, estavel),
"fatores_principais" (lista de textos curtos),
"recomendacoes" (lista de ações práticas para a vigilância municipal).`

func optional(v *float64, unit string) string {
	if v == nil {
		return "não informado"
	}
	return fmt.Sprintf("%.1f%s", *v, unit)
}

func userPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Município: %s", req.Municipio)
	if req.CodigoIBGE != "" {
		fmt.Fprintf(&b, " (IBGE %s)", req.CodigoIBGE)
	}
	fmt.Fprintf(&b, "\nCasos recentes: %d\n", req.CasosRecentes)
	fmt.Fprintf(&b, "Casos no ano anterior: %d\n", req.CasosAnoAnterior)
	fmt.Fprintf(&b, "Variação anual: %.1f%%\n", Variation(req.CasosRecentes, req.CasosAnoAnterior))
	fmt.Fprintf(&b, "População: %s\n", optional(req.Populacao, ""))
	if inc := Incidence(req.CasosRecentes, req.Populacao); inc > 0 {
		fmt.Fprintf(&b, "Incidência: %.1f casos por 100 mil habitantes\n", inc)
	}
	fmt.Fprintf(&b, "Temperatura média: %s\n", optional(req.TemperaturaMedia, " °C"))
	fmt.Fprintf(&b, "Umidade média: %s\n", optional(req.UmidadeMedia, "%"))
	fmt.Fprintf(&b, "Cobertura de saneamento: %s\n", optional(req.CoberturaSaneamento, "%"))
	return b.String()
}
