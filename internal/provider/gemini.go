package provider

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

const geminiProviderName = "gemini"

var geminiModelAliases = map[string]string{
	"gemini-pro": "gemini-1.5-pro",
}

type GeminiAdapter struct {
	apiKey  string
	enabled bool
	logger  zerolog.Logger
}

func NewGeminiAdapter(apiKey string, logger zerolog.Logger) *GeminiAdapter {
	return &GeminiAdapter{
		apiKey:  apiKey,
		enabled: apiKey != "",
		logger:  logger.With().Str("provider", geminiProviderName).Logger(),
	}
}

func (a *GeminiAdapter) Name() string { return geminiProviderName }

func (a *GeminiAdapter) Supports(modelID string) bool {
	return hasPrefix(modelID, "gemini-")
}

func (a *GeminiAdapter) Generate(ctx context.Context, req GenerateRequest) (*Result, error) {
	if !a.enabled {
		a.logger.Debug().Str("model", req.Model).Msg("backend disabled, synthesizing placeholder rows")
		return &Result{Rows: placeholderRows(req), Provider: geminiProviderName, Model: req.Model}, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  a.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gemini client")
	}

	apiModel := req.Model
	if mapped, ok := geminiModelAliases[req.Model]; ok {
		apiModel = mapped
	}

	resp, err := client.Models.GenerateContent(ctx, apiModel, genai.Text(req.Prompt), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: buildSystemPrompt(req)}},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "gemini generation failed")
	}

	rows, err := parseRows(geminiProviderName, resp.Text())
	if err != nil {
		return nil, err
	}

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return &Result{
		Rows:       rows,
		Provider:   geminiProviderName,
		Model:      req.Model,
		TokensUsed: tokens,
	}, nil
}
