package queue_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/price-tracker/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/canonical"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/metrics"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/queue"
	th "github.com/jonesrussell/north-cloud/price-tracker/internal/testhelpers"
)

func setup(t *testing.T) (*queue.Coordinator, *th.MemStore) {
	t.Helper()

	store := th.NewMemStore()
	th.SeedAccounts(store)
	return queue.NewCoordinator(store, th.Registry(), metrics.NewUnregistered(), logger.NewNop()), store
}

func TestEnqueue_Idempotent(t *testing.T) {
	t.Parallel()

	c, store := setup(t)
	ctx := context.Background()
	raw := "https://amazon.com/Some-Gadget/dp/B08N5WRWNW/ref=sr_1_1?tag=aff-20"

	first, err := c.Enqueue(ctx, raw, th.UserID)
	require.NoError(t, err)
	require.NotNil(t, first.Entry)
	assert.True(t, first.Created)
	assert.Equal(t, th.ProductURL, first.Entry.URL)
	assert.Equal(t, canonical.IdentityHash(th.ProductURL), first.Entry.IdentityHash)

	second, err := c.Enqueue(ctx, raw, th.UserID)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Entry.ID, second.Entry.ID)

	assert.Len(t, store.Queue(), 1)
}

func TestEnqueue_SameURLDifferentRequesters(t *testing.T) {
	t.Parallel()

	c, store := setup(t)
	ctx := context.Background()

	_, err := c.Enqueue(ctx, th.ProductURL, th.UserID)
	require.NoError(t, err)
	_, err = c.Enqueue(ctx, "https://smile.amazon.com/dp/B08N5WRWNW", th.OtherUserID)
	require.NoError(t, err)

	entries := store.Queue()
	require.Len(t, entries, 2)
	assert.Equal(t, entries[0].IdentityHash, entries[1].IdentityHash, "aliases share one identity")
}

func TestEnqueue_ExistingProduct(t *testing.T) {
	t.Parallel()

	c, store := setup(t)
	p := store.AddProduct(domain.Product{
		IdentityHash: canonical.IdentityHash(th.ProductURL), Shop: "amazon", URL: th.ProductURL,
	})

	result, err := c.Enqueue(context.Background(), th.ProductURL+"?ref=x", th.UserID)

	require.NoError(t, err)
	require.NotNil(t, result.Product)
	assert.Equal(t, p.ID, result.Product.ID)
	assert.Nil(t, result.Entry)
	assert.Empty(t, store.Queue())
}

func TestEnqueue_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		url       string
		requester string
		wantCode  domain.ValidationCode
		notFound  bool
	}{
		{name: "malformed", url: "https://www.amazon.com/%zz", requester: th.UserID, wantCode: domain.CodeInvalidURL},
		{name: "unsupported shop", url: "https://shop.example.com/p/1", requester: th.UserID, wantCode: domain.CodeUnsupportedShop},
		{name: "listing page", url: "https://www.amazon.com/s?k=kettle", requester: th.UserID, wantCode: domain.CodeNotASingleProductURL},
		{name: "unknown requester", url: th.ProductURL, requester: "nobody", notFound: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, store := setup(t)
			_, err := c.Enqueue(context.Background(), tt.url, tt.requester)

			if tt.notFound {
				require.ErrorIs(t, err, domain.ErrNotFound)
			} else {
				var ve *domain.ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, tt.wantCode, ve.Code)
			}
			assert.Empty(t, store.Queue())
		})
	}
}

func TestPull_OrderAndSkip(t *testing.T) {
	t.Parallel()

	c, _ := setup(t)
	ctx := context.Background()

	for _, raw := range []string{
		"https://www.wildberries.ru/catalog/1234567/detail.aspx",
		"https://www.amazon.com/dp/B08N5WRWNW",
		"https://www.ebay.com/itm/123456789012",
	} {
		_, err := c.Enqueue(ctx, raw, th.UserID)
		require.NoError(t, err)
	}

	entries, err := c.Pull(ctx, th.CrawlerID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "https://www.amazon.com/dp/B08N5WRWNW", entries[0].URL)
	assert.Equal(t, "https://www.ebay.com/itm/123456789012", entries[1].URL)
	assert.Equal(t, "https://www.wildberries.ru/catalog/1234567/detail.aspx", entries[2].URL)

	require.NoError(t, c.SkipForCrawler(ctx, entries[0].IdentityHash, th.CrawlerID))

	mine, err := c.Pull(ctx, th.CrawlerID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	theirs, err := c.Pull(ctx, th.OtherCrawlerID)
	require.NoError(t, err)
	assert.Len(t, theirs, 3, "skip only excludes the marking crawler")
}

func TestPull_UnknownCrawler(t *testing.T) {
	t.Parallel()

	c, _ := setup(t)
	_, err := c.Pull(context.Background(), "ghost")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResolve_DeletesAllRequesters(t *testing.T) {
	t.Parallel()

	c, store := setup(t)
	ctx := context.Background()

	a, err := c.Enqueue(ctx, th.ProductURL, th.UserID)
	require.NoError(t, err)
	_, err = c.Enqueue(ctx, th.ProductURL, th.OtherUserID)
	require.NoError(t, err)
	_, err = c.Enqueue(ctx, "https://www.ebay.com/itm/123456789012", th.UserID)
	require.NoError(t, err)

	n, err := c.Resolve(ctx, a.Entry.IdentityHash)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	remaining := store.Queue()
	require.Len(t, remaining, 1)
	assert.Equal(t, "https://www.ebay.com/itm/123456789012", remaining[0].URL)
}
