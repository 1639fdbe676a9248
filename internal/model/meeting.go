package model

import "time"

// Meeting is a transcript record held by the work source.
type Meeting struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	AccountID      string         `json:"account_id,omitempty"`
	TextContent    string         `json:"text_content,omitempty"`
	Structured     bool           `json:"structured"`
	StructuredData map[string]any `json:"structured_data,omitempty"`
	StructuredAt   *time.Time     `json:"structured_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// MeetingPage is one page of a paginated meeting listing.
type MeetingPage struct {
	Items   []Meeting `json:"items"`
	HasNext bool      `json:"has_next"`
}

// ListMeetingsQuery selects one page of meetings. Page is 1-based.
type ListMeetingsQuery struct {
	Page             int    `json:"page"`
	PageSize         int    `json:"page_size"`
	AccountFilter    string `json:"account_filter,omitempty"`
	UnstructuredOnly bool   `json:"unstructured_only"`
}
