package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

// DefaultScoringModel is used when no model is configured.
const DefaultScoringModel = "gemini-2.0-flash"

// GeminiAnalyzer scores transcripts with a Gemini model constrained to a
// JSON response schema.
type GeminiAnalyzer struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// NewGeminiAnalyzer builds an analyzer. Model may be empty.
func NewGeminiAnalyzer(ctx context.Context, apiKey, model string, logger *slog.Logger) (*GeminiAnalyzer, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("scoring api key must not be empty")
	}
	if model == "" {
		model = DefaultScoringModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create scoring client: %w", err)
	}
	return &GeminiAnalyzer{client: client, model: model, logger: logger}, nil
}

// Analyze runs one scoring pass. Transport failures, unparseable output,
// and missing required scores all return errors; the caller decides
// whether to retry.
func (g *GeminiAnalyzer) Analyze(ctx context.Context, req Request) (*Analysis, error) {
	prompt := buildScoringPrompt(req)
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), scoringConfig())
	if err != nil {
		return nil, fmt.Errorf("generate analysis: %w", err)
	}

	text := cleanJSONResponse(result.Text())
	var analysis Analysis
	if err := json.Unmarshal([]byte(text), &analysis); err != nil {
		g.logger.Debug("unparseable analysis response", "error", err)
		return nil, fmt.Errorf("parse analysis response: %w", err)
	}
	if err := analysis.Validate(); err != nil {
		return nil, err
	}
	return &analysis, nil
}

func scoringConfig() *genai.GenerateContentConfig {
	score := &genai.Schema{Type: genai.TypeNumber}
	return &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"overallScore":         score,
				"communicationScore":   score,
				"technicalScore":       score,
				"responseQualityScore": score,
				"strengths":            {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
				"weaknesses":           {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
				"feedback":             {Type: genai.TypeString},
				"questions": {
					Type: genai.TypeArray,
					Items: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"question": {Type: genai.TypeString},
							"answer":   {Type: genai.TypeString},
							"score":    score,
							"feedback": {Type: genai.TypeString},
						},
						Required: []string{"question", "answer", "score", "feedback"},
					},
				},
				"improvementTip": {Type: genai.TypeString},
			},
			Required: []string{
				"overallScore", "communicationScore", "technicalScore",
				"responseQualityScore", "strengths", "weaknesses",
				"feedback", "questions", "improvementTip",
			},
		},
	}
}

func buildScoringPrompt(req Request) string {
	return fmt.Sprintf(`You are an expert interview coach. Score the following live interview for the position of %s at %s.

Job description:
%s

The interviewer asked %d questions.

Transcript:
%s

Score each dimension from 0 to 100. Be specific in feedback and ground every observation in the transcript. Provide one concrete improvement tip the candidate can apply in their next interview.`,
		req.Job.Title, req.Job.Company, req.Job.Description, req.QuestionCount,
		FormatTranscript(req.Entries))
}

// cleanJSONResponse strips markdown code fences and surrounding prose some
// models wrap around JSON output despite the response schema.
func cleanJSONResponse(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "{"); i > 0 {
		if j := strings.LastIndex(text, "}"); j > i {
			text = text[i : j+1]
		}
	}
	return text
}
