package extract

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/transcript-sync/internal/model"
)

//go:embed shards.yaml
var defaultShardsYAML []byte

// Shard is a model.Shard with its compiled schema.
type Shard struct {
	model.Shard
	schema *jsonschema.Schema
	keys   map[string]bool
}

// Validate checks v against the shard's schema.
func (s *Shard) Validate(v map[string]any) error {
	if err := s.schema.Validate(v); err != nil {
		return eris.Wrap(ErrSchemaMismatch, fmt.Sprintf("shard %s: %v", s.Name, err))
	}
	return nil
}

// project keeps only the declared properties of v.
func (s *Shard) project(v map[string]any) map[string]any {
	out := make(map[string]any, len(s.keys))
	for k, val := range v {
		if s.keys[k] {
			out[k] = val
		}
	}
	return out
}

// ShardSet is a validated collection of shards with disjoint field keys.
type ShardSet struct {
	shards []*Shard
}

type shardFile struct {
	Shards []model.Shard `yaml:"shards"`
}

// NewShardSet compiles every shard's schema and rejects empty, duplicate
// or overlapping shards.
func NewShardSet(shards []model.Shard) (*ShardSet, error) {
	if len(shards) == 0 {
		return nil, eris.New("extract: shard set is empty")
	}

	names := make(map[string]bool, len(shards))
	owner := make(map[string]string)
	set := &ShardSet{shards: make([]*Shard, 0, len(shards))}

	for _, sh := range shards {
		if sh.Name == "" {
			return nil, eris.New("extract: shard without name")
		}
		if names[sh.Name] {
			return nil, eris.Errorf("extract: duplicate shard %q", sh.Name)
		}
		names[sh.Name] = true

		keys := sh.Keys()
		if len(keys) == 0 {
			return nil, eris.Errorf("extract: shard %q declares no properties", sh.Name)
		}
		keySet := make(map[string]bool, len(keys))
		for _, k := range keys {
			if prev, ok := owner[k]; ok {
				return nil, eris.Errorf("extract: field %q declared by shards %q and %q", k, prev, sh.Name)
			}
			owner[k] = sh.Name
			keySet[k] = true
		}

		schema, err := compileSchema(sh.Name, sh.Schema)
		if err != nil {
			return nil, err
		}
		set.shards = append(set.shards, &Shard{Shard: sh, schema: schema, keys: keySet})
	}
	return set, nil
}

// LoadShardSet reads a shard set from a YAML file. An empty path loads the
// built-in set.
func LoadShardSet(path string) (*ShardSet, error) {
	if path == "" {
		return DefaultShardSet()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "extract: read shard file")
	}
	return parseShardSet(data)
}

// DefaultShardSet returns the built-in shard set for first sales meetings.
func DefaultShardSet() (*ShardSet, error) {
	return parseShardSet(defaultShardsYAML)
}

func parseShardSet(data []byte) (*ShardSet, error) {
	var f shardFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "extract: parse shard file")
	}
	return NewShardSet(f.Shards)
}

func compileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("extract: marshal schema %s", name))
	}
	url := name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(b)); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("extract: add schema %s", name))
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("extract: compile schema %s", name))
	}
	return compiled, nil
}

// Shards returns the shards in declaration order.
func (s *ShardSet) Shards() []*Shard {
	return s.shards
}

// Len returns the number of shards.
func (s *ShardSet) Len() int {
	return len(s.shards)
}

// Keys returns every field key across all shards, sorted.
func (s *ShardSet) Keys() []string {
	var keys []string
	for _, sh := range s.shards {
		for k := range sh.keys {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
