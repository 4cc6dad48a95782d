package collector_test

import (
	"context"
	"testing"
	"time"

	"github.com/qepting91/reddit-link-harvester/internal/collector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClientPaginates(t *testing.T) {
	now := time.Date(2026, 1, 28, 12, 0, 0, 0, time.UTC)
	mc := &collector.MockClient{Pages: 2, Spacing: time.Hour, Now: func() time.Time { return now }}
	ctx := context.Background()

	first, err := mc.Listing(ctx, "golang", collector.Newest, "", 3)
	require.NoError(t, err)
	require.Len(t, first.Items, 3)
	assert.Equal(t, "mock_1", first.After)
	assert.Equal(t, "mock_golang_0", first.Items[0].ID)
	assert.Equal(t, now, first.Items[0].CreatedAt)
	assert.True(t, first.Items[0].CreatedAt.After(first.Items[2].CreatedAt))

	second, err := mc.Listing(ctx, "golang", collector.Newest, first.After, 3)
	require.NoError(t, err)
	require.Len(t, second.Items, 3)
	assert.Empty(t, second.After)
	assert.Equal(t, "mock_golang_3", second.Items[0].ID)

	done, err := mc.Listing(ctx, "golang", collector.Newest, "mock_2", 3)
	require.NoError(t, err)
	assert.Empty(t, done.Items)
}

func TestMockClientRankedViewsAreNotTimeOrdered(t *testing.T) {
	mc := collector.NewMockClient()
	page, err := mc.Listing(context.Background(), "golang", collector.Hot, "", 3)
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, "mock_golang_2", page.Items[0].ID)
	assert.True(t, page.Items[0].CreatedAt.Before(page.Items[2].CreatedAt))
}

func TestMockClientBadCursor(t *testing.T) {
	_, err := collector.NewMockClient().Listing(context.Background(), "golang", collector.Newest, "t3_zzz", 3)
	assert.Error(t, err)
}
