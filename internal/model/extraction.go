package model

// Shard is one independently schema-typed slice of the full extraction task.
type Shard struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description"`
	Schema      map[string]any `json:"schema" yaml:"schema"`
}

// Keys returns the property names the shard's schema declares.
func (s Shard) Keys() []string {
	props, _ := s.Schema["properties"].(map[string]any)
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	return keys
}

// TokenUsage tracks LLM token consumption.
type TokenUsage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheCreationTokens int `json:"cache_creation_tokens"`
	CacheReadTokens     int `json:"cache_read_tokens"`
}

// Total returns all billed tokens.
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens + u.CacheCreationTokens + u.CacheReadTokens
}

// Add accumulates another usage into u.
func (u *TokenUsage) Add(o TokenUsage) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.CacheCreationTokens += o.CacheCreationTokens
	u.CacheReadTokens += o.CacheReadTokens
}

// ExtractionResult is the merged output of every shard for one meeting.
// A missing key means the owning shard failed; a nil value means the field
// was explicitly absent from the transcript.
type ExtractionResult struct {
	Fields       map[string]any `json:"fields"`
	FailedShards []string       `json:"failed_shards,omitempty"`
	Usage        TokenUsage     `json:"usage"`
}

// Empty reports whether no shard produced any field.
func (r ExtractionResult) Empty() bool {
	return len(r.Fields) == 0
}
