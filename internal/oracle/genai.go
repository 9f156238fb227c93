package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/nao1215/consentscan/internal/assemble"
	"github.com/nao1215/consentscan/internal/classify"
	"github.com/nao1215/consentscan/internal/model"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// ErrMissingAPIKey is returned by NewGenAI without an API key.
var ErrMissingAPIKey = errors.New("genai API key is required")

// generator is the part of *genai.Models the oracle uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GenAI asks a Gemini model for classifications and risk assessments.
// Every request asks for JSON matching a response schema; the answer is
// still validated because the model is untrusted.
type GenAI struct {
	models generator
	model  string
	logger *slog.Logger
}

var (
	_ classify.Oracle       = (*GenAI)(nil)
	_ assemble.RiskAssessor = (*GenAI)(nil)
)

// GenAIOption configures a GenAI oracle.
type GenAIOption func(*GenAI)

// WithModel sets the model name.
func WithModel(name string) GenAIOption {
	return func(g *GenAI) {
		if name != "" {
			g.model = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) GenAIOption {
	return func(g *GenAI) {
		g.logger = logger
	}
}

// withGenerator replaces the API client. Used by tests.
func withGenerator(gen generator) GenAIOption {
	return func(g *GenAI) {
		g.models = gen
	}
}

// NewGenAI creates a GenAI oracle for the Gemini API.
func NewGenAI(ctx context.Context, apiKey string, opts ...GenAIOption) (*GenAI, error) {
	g := &GenAI{model: DefaultModel, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	if g.models != nil {
		return g, nil
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	g.models = client.Models
	return g, nil
}

const classifyInstruction = `You are a privacy compliance auditor. Classify each web technology observed on a website.
For every item return its id unchanged, one category and a one-sentence purpose.
Categories:
- NECESSARY: required for the site to work (session, security, load balancing, consent storage).
- FUNCTIONAL: remembers choices the visitor made (language, region, player settings).
- ANALYTICS: measures visits or behavior.
- MARKETING: advertising, retargeting, cross-site tracking, social media pixels.
- UNKNOWN: you cannot tell.
Answer for every item. Do not invent ids.`

var categoryNames = []string{"NECESSARY", "FUNCTIONAL", "ANALYTICS", "MARKETING", "UNKNOWN"}

func classificationSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"id":       {Type: genai.TypeString},
				"category": {Type: genai.TypeString, Enum: categoryNames},
				"purpose":  {Type: genai.TypeString},
			},
			Required: []string{"id", "category", "purpose"},
		},
	}
}

// Classify implements classify.Oracle.
func (g *GenAI) Classify(ctx context.Context, items []classify.Item) ([]classify.Result, error) {
	payload, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode items: %w", err)
	}
	text, err := g.generate(ctx, classifyInstruction, "Items:\n"+string(payload), classificationSchema())
	if err != nil {
		return nil, err
	}
	return ParseClassification(text)
}

const riskInstruction = `You are a privacy compliance auditor. Given the consent violations found on a website,
assess the aggregate risk under GDPR, the ePrivacy Directive and CCPA.
A PRE_CONSENT_VIOLATION means the technology ran before the visitor made any choice.
A POST_REJECTION_VIOLATION means it ran after the visitor rejected consent.
For each regulation return a level (none, low, medium, high, critical) and a two-sentence assessment.`

var riskLevels = []string{
	string(model.RiskNone),
	string(model.RiskLow),
	string(model.RiskMedium),
	string(model.RiskHigh),
	string(model.RiskCritical),
}

func riskSchema() *genai.Schema {
	regulation := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"level":      {Type: genai.TypeString, Enum: riskLevels},
			"assessment": {Type: genai.TypeString},
		},
		Required: []string{"level", "assessment"},
	}
	props := make(map[string]*genai.Schema, len(assemble.Regulations))
	for _, reg := range assemble.Regulations {
		props[reg] = regulation
	}
	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: props,
		Required:   append([]string(nil), assemble.Regulations...),
	}
}

// AssessRisk implements assemble.RiskAssessor.
func (g *GenAI) AssessRisk(ctx context.Context, in assemble.RiskInput) (map[string]model.RegulationRisk, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode risk input: %w", err)
	}
	text, err := g.generate(ctx, riskInstruction, "Scan:\n"+string(payload), riskSchema())
	if err != nil {
		return nil, err
	}
	return ParseRisk(text)
}

func (g *GenAI) generate(ctx context.Context, instruction, prompt string, schema *genai.Schema) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(instruction, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    schema,
	}
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("genai generate failed: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty response", classify.ErrMalformedResponse)
	}
	g.logger.Debug("genai response", "model", g.model, "bytes", len(text))
	return text, nil
}

// stripFences removes a Markdown code fence around a JSON answer.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimPrefix(text, "json")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// ParseClassification decodes a classification answer.
// Entries without an id are dropped; unknown category labels become UNKNOWN.
func ParseClassification(text string) ([]classify.Result, error) {
	var raw []struct {
		ID       string `json:"id"`
		Category string `json:"category"`
		Purpose  string `json:"purpose"`
	}
	if err := json.Unmarshal([]byte(stripFences(text)), &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", classify.ErrMalformedResponse, err)
	}
	out := make([]classify.Result, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r.ID) == "" {
			continue
		}
		out = append(out, classify.Result{
			ID:       strings.TrimSpace(r.ID),
			Category: model.ParseCategory(r.Category),
			Purpose:  strings.TrimSpace(r.Purpose),
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no results", classify.ErrMalformedResponse)
	}
	return out, nil
}

// ParseRisk decodes a risk answer. Regulations with an invalid level are
// dropped; an answer with no usable regulation is malformed.
func ParseRisk(text string) (map[string]model.RegulationRisk, error) {
	var raw map[string]struct {
		Level      string `json:"level"`
		Assessment string `json:"assessment"`
	}
	if err := json.Unmarshal([]byte(stripFences(text)), &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", classify.ErrMalformedResponse, err)
	}
	out := make(map[string]model.RegulationRisk, len(raw))
	for _, reg := range assemble.Regulations {
		r, ok := raw[reg]
		if !ok {
			continue
		}
		level, ok := parseLevel(r.Level)
		if !ok {
			continue
		}
		out[reg] = model.RegulationRisk{Level: level, Assessment: strings.TrimSpace(r.Assessment)}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no regulation assessed", classify.ErrMalformedResponse)
	}
	return out, nil
}

func parseLevel(s string) (model.RiskLevel, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, l := range riskLevels {
		if s == l {
			return model.RiskLevel(l), true
		}
	}
	return "", false
}
