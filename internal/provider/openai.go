package provider

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const openAIProviderName = "openai"

type OpenAIAdapter struct {
	client  openai.Client
	enabled bool
	logger  zerolog.Logger
}

func NewOpenAIAdapter(apiKey string, logger zerolog.Logger) *OpenAIAdapter {
	a := &OpenAIAdapter{
		enabled: apiKey != "",
		logger:  logger.With().Str("provider", openAIProviderName).Logger(),
	}
	if a.enabled {
		a.client = openai.NewClient(option.WithAPIKey(apiKey))
	}
	return a
}

func (a *OpenAIAdapter) Name() string { return openAIProviderName }

func (a *OpenAIAdapter) Supports(modelID string) bool {
	return hasPrefix(modelID, "gpt-", "o1", "o3")
}

func (a *OpenAIAdapter) Generate(ctx context.Context, req GenerateRequest) (*Result, error) {
	if !a.enabled {
		a.logger.Debug().Str("model", req.Model).Msg("backend disabled, synthesizing placeholder rows")
		return &Result{Rows: placeholderRows(req), Provider: openAIProviderName, Model: req.Model}, nil
	}

	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(buildSystemPrompt(req)),
			openai.UserMessage(req.Prompt),
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "openai completion failed")
	}
	if len(resp.Choices) == 0 {
		return nil, &InvalidResponseFormatError{Provider: openAIProviderName, Cause: errors.New("no choices in response")}
	}

	rows, err := parseRows(openAIProviderName, resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	return &Result{
		Rows:       rows,
		Provider:   openAIProviderName,
		Model:      req.Model,
		TokensUsed: int(resp.Usage.TotalTokens),
	}, nil
}
