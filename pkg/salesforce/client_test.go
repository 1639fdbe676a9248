package salesforce

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// mockClient implements Client for testing.
type mockClient struct {
	queryFn           func(ctx context.Context, soql string, out any) error
	updateOneFn       func(ctx context.Context, sObjectName string, id string, fields map[string]any) error
	describeSObjectFn func(ctx context.Context, name string) (*SObjectDescription, error)
}

func (m *mockClient) Query(ctx context.Context, soql string, out any) error {
	if m.queryFn != nil {
		return m.queryFn(ctx, soql, out)
	}
	return nil
}

func (m *mockClient) UpdateOne(ctx context.Context, sObjectName string, id string, fields map[string]any) error {
	if m.updateOneFn != nil {
		return m.updateOneFn(ctx, sObjectName, id, fields)
	}
	return nil
}

func (m *mockClient) DescribeSObject(ctx context.Context, name string) (*SObjectDescription, error) {
	if m.describeSObjectFn != nil {
		return m.describeSObjectFn(ctx, name)
	}
	return &SObjectDescription{Name: name, Label: name}, nil
}

func TestMockClientImplementsInterface(t *testing.T) {
	t.Parallel()
	var _ Client = (*mockClient)(nil)
}

func TestNewClientReturnsClient(t *testing.T) {
	// Verify the type satisfies the interface.
	var _ Client = (*sfClient)(nil)

	// NewClient wraps a salesforce.Salesforce instance.
	client := NewClient(nil)
	require.NotNil(t, client)
	var _ Client = client //nolint:staticcheck // interface compliance check
}

func TestWithRateLimit(t *testing.T) {
	t.Run("sets limiter", func(t *testing.T) {
		c := NewClient(nil, WithRateLimit(10)).(*sfClient)
		require.NotNil(t, c.limiter)
		assert.Equal(t, rate.Limit(10), c.limiter.Limit())
		assert.Equal(t, 10, c.limiter.Burst())
	})

	t.Run("zero rate skips limiter", func(t *testing.T) {
		c := NewClient(nil, WithRateLimit(0)).(*sfClient)
		assert.Nil(t, c.limiter)
	})

	t.Run("negative rate skips limiter", func(t *testing.T) {
		c := NewClient(nil, WithRateLimit(-5)).(*sfClient)
		assert.Nil(t, c.limiter)
	})

	t.Run("no option means no limiter", func(t *testing.T) {
		c := NewClient(nil).(*sfClient)
		assert.Nil(t, c.limiter)
	})

	t.Run("fractional rate gets burst of 1", func(t *testing.T) {
		c := NewClient(nil, WithRateLimit(0.5)).(*sfClient)
		require.NotNil(t, c.limiter)
		assert.Equal(t, 1, c.limiter.Burst())
	})
}

func TestRateLimiter_CancelledContext(t *testing.T) {
	// Create a limiter with zero burst so Wait always blocks.
	c := &sfClient{
		limiter: rate.NewLimiter(rate.Every(time.Hour), 0),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately.

	err := c.wait(ctx)
	assert.Error(t, err)
}

func TestDial_MissingClientID(t *testing.T) {
	_, err := Dial(Creds{KeyPath: "/nonexistent"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client id is required")
}

func TestDial_MissingKey(t *testing.T) {
	_, err := Dial(Creds{ClientID: "abc", KeyPath: "/nonexistent/key.pem"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read JWT private key")
}

func TestSObjectDescription_Updateable(t *testing.T) {
	desc := &SObjectDescription{Fields: []SObjectField{
		{Name: "Id", Updateable: false},
		{Name: "Budget__c", Updateable: true},
	}}
	got := desc.Updateable()
	assert.True(t, got["Budget__c"])
	assert.False(t, got["Id"])
}

func TestSObjectDescription_Decode(t *testing.T) {
	body := `{"name":"Account","label":"Account","fields":[{"name":"Budget__c","label":"Budget","type":"string","length":255,"updateable":true}]}`

	var desc SObjectDescription
	require.NoError(t, json.Unmarshal([]byte(body), &desc))
	assert.Equal(t, "Account", desc.Name)
	require.Len(t, desc.Fields, 1)
	assert.Equal(t, 255, desc.Fields[0].Length)
	assert.True(t, desc.Updateable()["Budget__c"])
}
