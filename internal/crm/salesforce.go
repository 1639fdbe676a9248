// Package crm adapts the Salesforce client to the searches and field writes
// the sync pipeline needs.
package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/transcript-sync/internal/config"
	"github.com/sells-group/transcript-sync/internal/model"
	"github.com/sells-group/transcript-sync/internal/resilience"
	"github.com/sells-group/transcript-sync/pkg/salesforce"
)

// WriteResult is the CRM-side verdict of a field write.
type WriteResult struct {
	Status            model.SyncStatus
	UpdatedFieldCount int
	Message           string
}

// Config selects the SObject searched and written.
type Config struct {
	SObject     string
	NameField   string
	SearchLimit int
	ExtraFields []string
	FieldMap    map[string]string
}

// ConfigFrom builds a Config from the salesforce config section.
func ConfigFrom(cfg config.SalesforceConfig) Config {
	return Config{
		SObject:     cfg.SObject,
		NameField:   cfg.NameField,
		SearchLimit: cfg.SearchLimit,
		FieldMap:    cfg.FieldMap,
	}
}

// Salesforce implements exact-name search and structured field writes.
type Salesforce struct {
	client  salesforce.Client
	cfg     Config
	breaker *resilience.CircuitBreaker
	log     *zap.Logger
}

// NewSalesforce wraps client. A nil breaker disables circuit breaking.
func NewSalesforce(client salesforce.Client, cfg Config, breaker *resilience.CircuitBreaker) *Salesforce {
	if cfg.SObject == "" {
		cfg.SObject = "Account"
	}
	if cfg.NameField == "" {
		cfg.NameField = "Name"
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 10
	}
	return &Salesforce{
		client:  client,
		cfg:     cfg,
		breaker: breaker,
		log:     zap.L().With(zap.String("component", "crm")),
	}
}

// SearchByExactName returns the records whose name field equals name or one
// of its variants. Verification of the match is left to the caller.
func (s *Salesforce) SearchByExactName(ctx context.Context, name string, variants []string, limit int) ([]model.ExternalMatch, error) {
	if limit <= 0 {
		limit = s.cfg.SearchLimit
	}
	names := searchNames(name, variants)

	recs, err := salesforce.FindByNames(ctx, s.client, salesforce.NameQuery{
		SObject:   s.cfg.SObject,
		NameField: s.cfg.NameField,
		Names:     names,
		Extra:     s.cfg.ExtraFields,
		Limit:     limit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "crm: search by name")
	}

	out := make([]model.ExternalMatch, 0, len(recs))
	for _, r := range recs {
		fields := make(map[string]string, len(r.Fields))
		for k, v := range r.Fields {
			if k == "Id" || k == s.cfg.NameField {
				continue
			}
			fields[k] = v
		}
		out = append(out, model.ExternalMatch{RecordID: r.ID, DisplayName: r.Name, Fields: fields})
	}
	return out, nil
}

// searchNames returns variants with name in front unless it is already
// listed. Matcher variants start with the name itself.
func searchNames(name string, variants []string) []string {
	if slices.Contains(variants, name) {
		return variants
	}
	return append([]string{name}, variants...)
}

// WriteStructuredFields maps extracted fields onto CRM field names and
// updates recordID. Rejections by Salesforce come back as a WriteResult;
// an error means the CRM could not be reached or did not answer.
func (s *Salesforce) WriteStructuredFields(ctx context.Context, recordID string, fields map[string]any) (WriteResult, error) {
	payload := s.MapFields(fields)
	if len(payload) == 0 {
		s.log.Warn("no writable fields", zap.String("record_id", recordID))
		return WriteResult{Status: model.SyncSkipped, Message: "no writable fields"}, nil
	}

	write := func(ctx context.Context) error {
		return salesforce.UpdateFields(ctx, s.client, s.cfg.SObject, recordID, payload)
	}
	var err error
	if s.breaker != nil {
		err = s.breaker.Execute(ctx, write)
	} else {
		err = write(ctx)
	}
	if err == nil {
		return WriteResult{Status: model.SyncSuccess, UpdatedFieldCount: len(payload)}, nil
	}

	if errors.Is(err, resilience.ErrCircuitOpen) || ctx.Err() != nil || resilience.IsTransient(err) {
		return WriteResult{}, eris.Wrap(err, fmt.Sprintf("crm: write %s", recordID))
	}

	status := Classify(err)
	s.log.Warn("crm write rejected",
		zap.String("record_id", recordID),
		zap.String("sync_status", string(status)),
		zap.Error(err),
	)
	return WriteResult{Status: status, Message: err.Error()}, nil
}

// MapFields renames keys through the field map, drops nil values and
// flattens lists and objects into text.
func (s *Salesforce) MapFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if v == nil {
			continue
		}
		target := k
		if mapped, ok := s.cfg.FieldMap[k]; ok {
			if mapped == "" {
				continue
			}
			target = mapped
		}
		out[target] = flatten(v)
	}
	return out
}

// Preflight compares the mapped target fields against the SObject's
// updateable fields and returns the ones Salesforce would reject.
func (s *Salesforce) Preflight(ctx context.Context) ([]string, error) {
	desc, err := s.client.DescribeSObject(ctx, s.cfg.SObject)
	if err != nil {
		return nil, eris.Wrap(err, "crm: preflight")
	}
	writable := desc.Updateable()

	var missing []string
	for _, target := range s.cfg.FieldMap {
		if target != "" && !writable[target] {
			missing = append(missing, target)
		}
	}
	sort.Strings(missing)
	if len(missing) > 0 {
		s.log.Warn("mapped fields are not updateable",
			zap.String("sobject", s.cfg.SObject),
			zap.Strings("fields", missing),
		)
	}
	return missing, nil
}

func flatten(v any) any {
	switch x := v.(type) {
	case []any:
		parts := make([]string, 0, len(x))
		for _, e := range x {
			if e == nil {
				continue
			}
			parts = append(parts, fmt.Sprint(flatten(e)))
		}
		return strings.Join(parts, "; ")
	case map[string]any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return v
	}
}
