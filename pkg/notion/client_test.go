package notion

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// MockClient is a testify mock of Client for the query-helper tests.
type MockClient struct {
	mock.Mock
}

var _ Client = (*MockClient)(nil)

func (m *MockClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	ret := m.Called(ctx, dbID, req)
	if ret.Get(0) == nil {
		return nil, ret.Error(1)
	}
	return ret.Get(0).(*notionapi.DatabaseQueryResponse), ret.Error(1)
}

func (m *MockClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	ret := m.Called(ctx, req)
	if ret.Get(0) == nil {
		return nil, ret.Error(1)
	}
	return ret.Get(0).(*notionapi.Page), ret.Error(1)
}

func (m *MockClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	ret := m.Called(ctx, pageID, req)
	if ret.Get(0) == nil {
		return nil, ret.Error(1)
	}
	return ret.Get(0).(*notionapi.Page), ret.Error(1)
}

func TestNewClient_DefaultThrottle(t *testing.T) {
	t.Parallel()
	c, ok := NewClient("secret-token").(*apiClient)
	require.True(t, ok)
	require.NotNil(t, c.limiter)
	assert.Equal(t, rate.Limit(3), c.limiter.Limit())
	assert.Equal(t, 1, c.limiter.Burst())
}

func TestWithRateLimit_Custom(t *testing.T) {
	t.Parallel()
	c := NewClient("secret-token", WithRateLimit(10)).(*apiClient)
	require.NotNil(t, c.limiter)
	assert.Equal(t, rate.Limit(10), c.limiter.Limit())
	assert.Equal(t, 10, c.limiter.Burst())
}

func TestWithRateLimit_Disabled(t *testing.T) {
	t.Parallel()
	c := NewClient("secret-token", WithRateLimit(0)).(*apiClient)
	assert.Nil(t, c.limiter)
	assert.NoError(t, c.throttle(context.Background()))
}

func TestThrottle_CancelledContext(t *testing.T) {
	t.Parallel()
	c := NewClient("secret-token").(*apiClient)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, c.throttle(ctx))
}
