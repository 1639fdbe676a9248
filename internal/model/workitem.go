package model

import "time"

// SkipReason labels why a source meeting did not become a WorkItem.
type SkipReason string

const (
	SkipNoText            SkipReason = "no_text"
	SkipNotFirst          SkipReason = "not_first"
	SkipNoTitleMatch      SkipReason = "no_title_match"
	SkipCRMNotExact       SkipReason = "zoho_not_exact"
	SkipAlreadyStructured SkipReason = "already_structured"
	SkipError             SkipReason = "error"
)

// SkipReasons lists every reason in reporting order.
var SkipReasons = []SkipReason{
	SkipNotFirst,
	SkipAlreadyStructured,
	SkipNoTitleMatch,
	SkipCRMNotExact,
	SkipNoText,
	SkipError,
}

// Valid reports whether r belongs to the closed set of skip reasons.
func (r SkipReason) Valid() bool {
	for _, known := range SkipReasons {
		if r == known {
			return true
		}
	}
	return false
}

// ExternalMatch references the CRM record a meeting was verified against.
type ExternalMatch struct {
	RecordID    string            `json:"record_id"`
	DisplayName string            `json:"display_name"`
	Fields      map[string]string `json:"fields,omitempty"`
}

// WorkItem is one discovered, verified and scored meeting ready for
// extraction. It is never modified after discovery returns it.
type WorkItem struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	AccountID     string         `json:"account_id,omitempty"`
	MatchedName   string         `json:"matched_name,omitempty"`
	ExternalMatch *ExternalMatch `json:"external_match,omitempty"`
	PriorityScore float64        `json:"priority_score"`
	PayloadSize   int            `json:"payload_size"`
	CreatedAt     time.Time      `json:"created_at"`
	Text          string         `json:"-"`
}

// SkipRecord is a visited meeting that did not qualify.
type SkipRecord struct {
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Reason  SkipReason `json:"reason"`
	Message string     `json:"message,omitempty"`
}

// ResultKind discriminates a DiscoveryResult.
type ResultKind string

const (
	KindWorkItem ResultKind = "work_item"
	KindSkip     ResultKind = "skip"
)

// DiscoveryResult is the per-meeting verdict of a discovery pass: exactly one
// of Item or Skip is set, as indicated by Kind.
type DiscoveryResult struct {
	Kind ResultKind  `json:"kind"`
	Item *WorkItem   `json:"item,omitempty"`
	Skip *SkipRecord `json:"skip,omitempty"`
}

// Accept wraps a qualifying item.
func Accept(item WorkItem) DiscoveryResult {
	return DiscoveryResult{Kind: KindWorkItem, Item: &item}
}

// Reject wraps a skip record.
func Reject(id, title string, reason SkipReason, msg string) DiscoveryResult {
	return DiscoveryResult{
		Kind: KindSkip,
		Skip: &SkipRecord{ID: id, Title: title, Reason: reason, Message: msg},
	}
}
