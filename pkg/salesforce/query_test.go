package salesforce

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildNameSOQL(t *testing.T) {
	soql, err := BuildNameSOQL(NameQuery{
		SObject:   "Account",
		NameField: "Name",
		Names:     []string{"田中 太郎", "田中太郎", "田中 太郎", " "},
		Extra:     []string{"Id", "OwnerId"},
		Limit:     5,
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT Id, Name, OwnerId FROM Account WHERE Name IN ('田中 太郎', '田中太郎') LIMIT 5", soql)
}

func TestBuildNameSOQL_Errors(t *testing.T) {
	_, err := BuildNameSOQL(NameQuery{NameField: "Name", Names: []string{"a"}})
	assert.Error(t, err)

	_, err = BuildNameSOQL(NameQuery{SObject: "Account", NameField: "Name", Names: []string{"", "  "}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no names")
}

func TestBuildNameSOQL_DefaultLimit(t *testing.T) {
	soql, err := BuildNameSOQL(NameQuery{SObject: "Contact", NameField: "LastName", Names: []string{"Doe"}})
	require.NoError(t, err)
	assert.Contains(t, soql, "LIMIT 10")
}

func TestFindByNames(t *testing.T) {
	var gotSOQL string
	c := &mockClient{
		queryFn: func(_ context.Context, soql string, out any) error {
			gotSOQL = soql
			rows := out.(*[]map[string]any)
			*rows = []map[string]any{
				{"attributes": map[string]any{"type": "Account"}, "Id": "001A", "Name": "O'Brien"},
				{"Id": nil, "Name": "no id"},
				{"Id": "001B", "Name": "Obrien", "Score__c": 3.5},
			}
			return nil
		},
	}

	recs, err := FindByNames(context.Background(), c, NameQuery{SObject: "Account", NameField: "Name", Names: []string{"O'Brien"}})
	require.NoError(t, err)
	assert.Contains(t, gotSOQL, `'O\'Brien'`)
	require.Len(t, recs, 2)
	assert.Equal(t, "001A", recs[0].ID)
	assert.Equal(t, "O'Brien", recs[0].Name)
	assert.NotContains(t, recs[0].Fields, "attributes")
	assert.Equal(t, "3.5", recs[1].Fields["Score__c"])
}

func TestFindByNames_QueryError(t *testing.T) {
	c := &mockClient{
		queryFn: func(context.Context, string, any) error { return errors.New("INVALID_SESSION_ID") },
	}
	_, err := FindByNames(context.Background(), c, NameQuery{SObject: "Account", NameField: "Name", Names: []string{"x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "find Account by name")
	assert.Contains(t, err.Error(), "INVALID_SESSION_ID")
}

func TestUpdateFields(t *testing.T) {
	var gotID string
	c := &mockClient{
		updateOneFn: func(_ context.Context, sObject, id string, fields map[string]any) error {
			assert.Equal(t, "Account", sObject)
			gotID = id
			return nil
		},
	}
	require.NoError(t, UpdateFields(context.Background(), c, "Account", "001A", map[string]any{"A__c": 1}))
	assert.Equal(t, "001A", gotID)

	assert.Error(t, UpdateFields(context.Background(), c, "Account", "", map[string]any{"A__c": 1}))
	assert.Error(t, UpdateFields(context.Background(), c, "Account", "001A", nil))
}

func TestEscapeSoql(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"O'Brien", `O\'Brien`},
		{`back\slash`, `back\\slash`},
		{`'; DELETE`, `\'; DELETE`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeSoql(tt.in))
	}
}
