package provider

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const anthropicProviderName = "anthropic"

// Friendly marketplace ids map to concrete API model names.
var anthropicModelAliases = map[string]string{
	"claude-3.5": "claude-3-5-sonnet-latest",
	"claude-3":   "claude-3-opus-latest",
}

type AnthropicAdapter struct {
	client  anthropic.Client
	enabled bool
	logger  zerolog.Logger
}

func NewAnthropicAdapter(apiKey string, logger zerolog.Logger) *AnthropicAdapter {
	a := &AnthropicAdapter{
		enabled: apiKey != "",
		logger:  logger.With().Str("provider", anthropicProviderName).Logger(),
	}
	if a.enabled {
		a.client = anthropic.NewClient(option.WithAPIKey(apiKey))
	}
	return a
}

func (a *AnthropicAdapter) Name() string { return anthropicProviderName }

func (a *AnthropicAdapter) Supports(modelID string) bool {
	return hasPrefix(modelID, "claude-")
}

func (a *AnthropicAdapter) Generate(ctx context.Context, req GenerateRequest) (*Result, error) {
	if !a.enabled {
		a.logger.Debug().Str("model", req.Model).Msg("backend disabled, synthesizing placeholder rows")
		return &Result{Rows: placeholderRows(req), Provider: anthropicProviderName, Model: req.Model}, nil
	}

	apiModel := req.Model
	if mapped, ok := anthropicModelAliases[req.Model]; ok {
		apiModel = mapped
	}

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(apiModel),
		MaxTokens: 8192,
		System: []anthropic.TextBlockParam{
			{Text: buildSystemPrompt(req)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "anthropic message failed")
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	rows, err := parseRows(anthropicProviderName, text.String())
	if err != nil {
		return nil, err
	}
	return &Result{
		Rows:       rows,
		Provider:   anthropicProviderName,
		Model:      req.Model,
		TokensUsed: int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}, nil
}
