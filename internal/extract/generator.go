package extract

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/transcript-sync/internal/model"
	"github.com/sells-group/transcript-sync/pkg/anthropic"
)

// GenerateRequest is one structured-output call to the language model.
type GenerateRequest struct {
	// System holds the fixed instructions.
	System string
	// Document is the shared source text. It is sent as a cached block so
	// every shard of the same transcript reuses it.
	Document    string
	Prompt      string
	Schema      map[string]any
	Temperature float64
	MaxTokens   int64
}

// GenerateResponse is the raw text answer and its token usage.
type GenerateResponse struct {
	Text  string
	Model string
	Usage model.TokenUsage
}

// Generator produces text for a prompt. Implementations may return empty
// or malformed output; Extractor retries those.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
}

// AnthropicGenerator adapts an Anthropic client to Generator.
type AnthropicGenerator struct {
	client anthropic.Client
	model  string
}

// NewAnthropicGenerator returns a Generator calling modelID through client.
func NewAnthropicGenerator(client anthropic.Client, modelID string) *AnthropicGenerator {
	return &AnthropicGenerator{client: client, model: modelID}
}

// Model returns the model id used for every request.
func (g *AnthropicGenerator) Model() string { return g.model }

// Generate implements Generator.
func (g *AnthropicGenerator) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	temp := req.Temperature
	msgReq := anthropic.MessageRequest{
		Model:       g.model,
		MaxTokens:   req.MaxTokens,
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: &temp,
	}
	if req.Document != "" {
		msgReq.System = anthropic.BuildCachedSystemBlocks(req.System, req.Document)
	} else if req.System != "" {
		msgReq.System = []anthropic.SystemBlock{{Text: req.System}}
	}

	resp, err := g.client.CreateMessage(ctx, msgReq)
	if err != nil {
		return GenerateResponse{}, eris.Wrap(err, "extract: generate")
	}

	return GenerateResponse{
		Text:  resp.Text(),
		Model: resp.Model,
		Usage: model.TokenUsage{
			InputTokens:         int(resp.Usage.InputTokens),
			OutputTokens:        int(resp.Usage.OutputTokens),
			CacheCreationTokens: int(resp.Usage.CacheCreationInputTokens),
			CacheReadTokens:     int(resp.Usage.CacheReadInputTokens),
		},
	}, nil
}
