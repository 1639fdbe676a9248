// Package extract splits transcript extraction into independently retried
// schema shards and merges their results.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/transcript-sync/internal/config"
	"github.com/sells-group/transcript-sync/internal/model"
	"github.com/sells-group/transcript-sync/internal/resilience"
)

// Sentinel errors for unusable model output. All are retried.
var (
	ErrEmptyResponse   = eris.New("extract: empty response")
	ErrMalformedOutput = eris.New("extract: malformed output")
	ErrSchemaMismatch  = eris.New("extract: output does not match schema")
	// ErrGeneratorPanic wraps a panic raised while generating one attempt.
	ErrGeneratorPanic = eris.New("extract: generator panicked")
)

const systemPrompt = `You extract structured data from a sales meeting transcript.
Answer with a single JSON object that matches the given JSON schema and nothing else.
Use null for any field the transcript does not mention. Do not guess.`

// Options configures an Extractor.
type Options struct {
	// Parallelism bounds concurrent shards when extracting in parallel.
	Parallelism int
	// Retry is applied to each shard. ShouldRetry defaults to retrying every
	// failure.
	Retry       resilience.RetryConfig
	Temperature float64
	MaxTokens   int64
}

// OptionsFrom builds Options from the extraction config section.
func OptionsFrom(cfg config.ExtractionConfig) Options {
	return Options{
		Parallelism: cfg.Parallelism,
		Retry:       resilience.FromSchedule(cfg.MaxAttempts, cfg.BackoffMs, cfg.ShardTimeoutSecs),
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}
}

// ShardResult is the outcome of one shard. Err is set when every attempt
// failed; Fields is then empty.
type ShardResult struct {
	Shard    string
	Fields   map[string]any
	Usage    model.TokenUsage
	Attempts int
	Err      error
}

// Extractor runs shards against a Generator.
type Extractor struct {
	gen  Generator
	opts Options
	log  *zap.Logger
}

// New returns an Extractor with defaults applied to opts.
func New(gen Generator, opts Options) *Extractor {
	if opts.Parallelism <= 0 {
		opts.Parallelism = 3
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	if opts.Retry.MaxAttempts <= 0 && len(opts.Retry.Schedule) == 0 {
		opts.Retry = resilience.FixedSchedule(3, time.Second, 2*time.Second)
		opts.Retry.AttemptTimeout = 90 * time.Second
	}
	if opts.Retry.ShouldRetry == nil {
		opts.Retry.ShouldRetry = func(error) bool { return true }
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.RetryLogger("llm", "extract shard")
	}
	return &Extractor{
		gen:  gen,
		opts: opts,
		log:  zap.L().With(zap.String("component", "extract")),
	}
}

// ExtractAll runs every shard of set over text and merges the results.
// Failed shards contribute no keys and are listed in FailedShards.
func (e *Extractor) ExtractAll(ctx context.Context, text string, set *ShardSet, parallel bool) model.ExtractionResult {
	result := model.ExtractionResult{Fields: make(map[string]any)}
	var mu sync.Mutex

	merge := func(r ShardResult) {
		mu.Lock()
		defer mu.Unlock()
		result.Usage.Add(r.Usage)
		if r.Err != nil {
			result.FailedShards = append(result.FailedShards, r.Shard)
			return
		}
		for k, v := range r.Fields {
			result.Fields[k] = v
		}
	}

	if !parallel {
		for _, sh := range set.Shards() {
			merge(e.ExtractShard(ctx, text, sh))
		}
	} else {
		g := new(errgroup.Group)
		g.SetLimit(e.opts.Parallelism)
		for _, sh := range set.Shards() {
			g.Go(func() error {
				merge(e.ExtractShard(ctx, text, sh))
				return nil
			})
		}
		_ = g.Wait()
	}

	sort.Strings(result.FailedShards)
	if len(result.FailedShards) > 0 {
		e.log.Warn("shards failed",
			zap.Strings("shards", result.FailedShards),
			zap.Int("fields", len(result.Fields)),
		)
	}
	return result
}

// ExtractShard runs one shard with retry. It never returns an error value
// directly: exhaustion is reported through ShardResult.Err.
func (e *Extractor) ExtractShard(ctx context.Context, text string, shard *Shard) ShardResult {
	res := ShardResult{Shard: shard.Name}

	prompt, err := buildPrompt(shard)
	if err != nil {
		res.Err = err
		res.Fields = map[string]any{}
		return res
	}

	fields, err := resilience.DoVal(ctx, e.opts.Retry, func(ctx context.Context) (map[string]any, error) {
		res.Attempts++
		return e.attempt(ctx, text, shard, prompt, &res.Usage)
	})
	if err != nil {
		e.log.Warn("shard exhausted retries",
			zap.String("shard", shard.Name),
			zap.Int("attempts", res.Attempts),
			zap.Error(err),
		)
		res.Err = err
		res.Fields = map[string]any{}
		return res
	}
	res.Fields = fields
	return res
}

func (e *Extractor) attempt(ctx context.Context, text string, shard *Shard, prompt string, usage *model.TokenUsage) (out map[string]any, err error) {
	// Panics are confined to the shard, including on errgroup goroutines.
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = eris.Wrapf(ErrGeneratorPanic, "shard %s: %v", shard.Name, r)
		}
	}()

	resp, err := e.gen.Generate(ctx, GenerateRequest{
		System:      systemPrompt,
		Document:    text,
		Prompt:      prompt,
		Schema:      shard.Schema,
		Temperature: e.opts.Temperature,
		MaxTokens:   e.opts.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	usage.Add(resp.Usage)

	out, err = parseObject(resp.Text)
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("shard %s", shard.Name))
	}
	out = shard.project(out)
	if err = shard.Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

// parseObject decodes the first JSON object in text.
func parseObject(text string) (map[string]any, error) {
	raw := cleanJSON(text)
	if raw == "" {
		return nil, ErrEmptyResponse
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, eris.Wrap(ErrMalformedOutput, err.Error())
	}
	if out == nil {
		return nil, ErrMalformedOutput
	}
	return out, nil
}

func buildPrompt(shard *Shard) (string, error) {
	schema, err := json.MarshalIndent(shard.Schema, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("extract: marshal schema %s", shard.Name))
	}
	var b strings.Builder
	if shard.Description != "" {
		fmt.Fprintf(&b, "Extract: %s\n\n", shard.Description)
	}
	b.WriteString("JSON schema:\n")
	b.Write(schema)
	b.WriteString("\n\nReturn only the JSON object.")
	return b.String(), nil
}

// cleanJSON strips markdown fences and extracts the JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
