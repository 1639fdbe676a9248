package salesforce

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// Record is a generic SObject row with its Id and name field lifted out.
type Record struct {
	ID     string
	Name   string
	Fields map[string]string
}

// NameQuery selects records whose name field equals one of Names.
type NameQuery struct {
	SObject   string
	NameField string
	Names     []string
	Extra     []string // additional fields to select
	Limit     int
}

// BuildNameSOQL renders the SOQL for q. Names are de-duplicated and sorted
// so identical inputs always produce the same statement.
func BuildNameSOQL(q NameQuery) (string, error) {
	if q.SObject == "" || q.NameField == "" {
		return "", eris.New("sf: sobject and name field are required")
	}

	seen := make(map[string]bool, len(q.Names))
	var quoted []string
	for _, n := range q.Names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		quoted = append(quoted, "'"+escapeSoql(n)+"'")
	}
	if len(quoted) == 0 {
		return "", eris.New("sf: no names to search")
	}
	sort.Strings(quoted)

	fields := []string{"Id", q.NameField}
	for _, f := range q.Extra {
		if f != "Id" && f != q.NameField {
			fields = append(fields, f)
		}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	return fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s) LIMIT %d",
		strings.Join(fields, ", "), q.SObject, q.NameField, strings.Join(quoted, ", "), limit,
	), nil
}

// FindByNames runs a name lookup and returns matching records in the order
// Salesforce returned them.
func FindByNames(ctx context.Context, c Client, q NameQuery) ([]Record, error) {
	soql, err := BuildNameSOQL(q)
	if err != nil {
		return nil, err
	}

	var rows []map[string]any
	if err := c.Query(ctx, soql, &rows); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find %s by name", q.SObject))
	}

	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec := Record{Fields: make(map[string]string, len(row))}
		for k, v := range row {
			if k == "attributes" || v == nil {
				continue
			}
			rec.Fields[k] = fmt.Sprint(v)
		}
		rec.ID = rec.Fields["Id"]
		rec.Name = rec.Fields[q.NameField]
		if rec.ID == "" {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// UpdateFields writes fields onto an existing record.
func UpdateFields(ctx context.Context, c Client, sObject, id string, fields map[string]any) error {
	if id == "" {
		return eris.New("sf: record id is required")
	}
	if len(fields) == 0 {
		return eris.New("sf: no fields to update")
	}
	if err := c.UpdateOne(ctx, sObject, id, fields); err != nil {
		return eris.Wrap(err, fmt.Sprintf("sf: update fields %s %s", sObject, id))
	}
	return nil
}

// escapeSoql escapes backslashes and single quotes in SOQL string literals.
func escapeSoql(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "'", `\'`)
}
