package lifecycle_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/price-tracker/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/lifecycle"
	th "github.com/jonesrussell/north-cloud/price-tracker/internal/testhelpers"
)

func ptr[T any](v T) *T { return &v }

func setup(t *testing.T) (*th.MemStore, *lifecycle.Manager) {
	t.Helper()

	store := th.NewMemStore()
	th.SeedAccounts(store)
	return store, lifecycle.NewManager(store, logger.NewNop())
}

func okRecord(productID string, inStock bool, discount float64) domain.HistoryRecord {
	return domain.HistoryRecord{
		ProductID:     productID,
		CrawlerID:     th.CrawlerID,
		Status:        domain.StatusOK,
		OriginalPrice: ptr(50.0),
		DiscountPrice: ptr(discount),
		InStock:       inStock,
	}
}

func TestManager_StatusFlips(t *testing.T) {
	t.Parallel()

	store, m := setup(t)
	p := store.AddProduct(domain.Product{IdentityHash: "h", URL: th.ProductURL})
	ctx := context.Background()

	require.NoError(t, m.MoveToHold(ctx, p.ID))
	got, _ := store.Product(p.ID)
	assert.Equal(t, domain.ProductStatusHold, got.Status)

	require.NoError(t, m.MoveToActive(ctx, p.ID))
	got, _ = store.Product(p.ID)
	assert.Equal(t, domain.ProductStatusActive, got.Status)

	require.ErrorIs(t, m.MoveToHold(ctx, "missing"), domain.ErrNotFound)
}

func TestManager_Attach(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		history   []domain.HistoryRecord
		wantPrice float64
	}{
		{name: "no history", wantPrice: 0},
		{name: "in stock", history: []domain.HistoryRecord{okRecord("", true, 38)}, wantPrice: 38},
		{
			name:      "latest out of stock",
			history:   []domain.HistoryRecord{okRecord("", true, 38), okRecord("", false, 30)},
			wantPrice: 0,
		},
		{
			name: "not found after in stock",
			history: []domain.HistoryRecord{
				okRecord("", true, 38),
				{CrawlerID: th.CrawlerID, Status: domain.StatusNotFound},
			},
			wantPrice: 38,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store, m := setup(t)
			p := store.AddProduct(domain.Product{IdentityHash: "h", URL: th.ProductURL})
			for _, rec := range tt.history {
				rec.ProductID = p.ID
				store.AddHistory(rec)
			}

			o, created, err := m.Attach(context.Background(), th.UserID, p.ID)
			require.NoError(t, err)
			assert.True(t, created)
			assert.InDelta(t, tt.wantPrice, o.Price, 0.001)
		})
	}
}

func TestManager_AttachActivatesHeldProduct(t *testing.T) {
	t.Parallel()

	store, m := setup(t)
	p := store.AddProduct(domain.Product{IdentityHash: "h", URL: th.ProductURL, Status: domain.ProductStatusHold})
	ctx := context.Background()

	_, created, err := m.Attach(ctx, th.UserID, p.ID)
	require.NoError(t, err)
	assert.True(t, created)

	got, _ := store.Product(p.ID)
	assert.Equal(t, domain.ProductStatusActive, got.Status)

	_, created, err = m.Attach(ctx, th.UserID, p.ID)
	require.NoError(t, err)
	assert.False(t, created, "second attach is a no-op")
}

func TestManager_AttachUnknown(t *testing.T) {
	t.Parallel()

	store, m := setup(t)
	p := store.AddProduct(domain.Product{IdentityHash: "h", URL: th.ProductURL})

	_, _, err := m.Attach(context.Background(), "missing-user", p.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = m.Attach(context.Background(), th.UserID, "missing-product")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestManager_Detach(t *testing.T) {
	t.Parallel()

	store, m := setup(t)
	p := store.AddProduct(domain.Product{IdentityHash: "h", URL: th.ProductURL})
	store.AddOwnership(th.UserID, p.ID, 38)
	store.AddOwnership(th.OtherUserID, p.ID, 38)
	store.AddSubscription(th.UserID, p.ID)
	ctx := context.Background()

	held, err := m.Detach(ctx, th.UserID, p.ID)
	require.NoError(t, err)
	assert.False(t, held)
	assert.False(t, store.HasSubscription(th.UserID, p.ID))
	_, owned := store.Ownership(th.UserID, p.ID)
	assert.False(t, owned)

	held, err = m.Detach(ctx, th.OtherUserID, p.ID)
	require.NoError(t, err)
	assert.True(t, held, "last owner leaving holds the product")
	got, _ := store.Product(p.ID)
	assert.Equal(t, domain.ProductStatusHold, got.Status)

	_, err = m.Detach(ctx, th.OtherUserID, p.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, created, err := m.Attach(ctx, th.UserID, p.ID)
	require.NoError(t, err)
	assert.True(t, created)
	got, _ = store.Product(p.ID)
	assert.Equal(t, domain.ProductStatusActive, got.Status)
}

func TestManager_DetachRollsBack(t *testing.T) {
	t.Parallel()

	store, m := setup(t)
	p := store.AddProduct(domain.Product{IdentityHash: "h", URL: th.ProductURL})
	store.AddOwnership(th.UserID, p.ID, 38)
	store.AddSubscription(th.UserID, p.ID)
	store.FailOn("SetProductStatus", nil)

	_, err := m.Detach(context.Background(), th.UserID, p.ID)
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, owned := store.Ownership(th.UserID, p.ID)
	assert.True(t, owned)
	assert.True(t, store.HasSubscription(th.UserID, p.ID))
}

func TestManager_LockFailureLeavesOwnershipsUntouched(t *testing.T) {
	t.Parallel()

	store, m := setup(t)
	p := store.AddProduct(domain.Product{IdentityHash: "h", URL: th.ProductURL})
	store.AddOwnership(th.UserID, p.ID, 38)
	store.AddSubscription(th.UserID, p.ID)
	store.FailOn("LockProduct", nil)
	ctx := context.Background()

	_, err := m.Detach(ctx, th.UserID, p.ID)
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	_, owned := store.Ownership(th.UserID, p.ID)
	assert.True(t, owned)
	assert.True(t, store.HasSubscription(th.UserID, p.ID))

	_, _, err = m.Attach(ctx, th.OtherUserID, p.ID)
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	_, owned = store.Ownership(th.OtherUserID, p.ID)
	assert.False(t, owned)

	loaded := p
	_, _, err = m.AttachLoaded(ctx, th.OtherUserID, &loaded)
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	_, owned = store.Ownership(th.OtherUserID, p.ID)
	assert.False(t, owned)
}

func TestManager_AttachLoadedUsesStoredStatus(t *testing.T) {
	t.Parallel()

	store, m := setup(t)
	p := store.AddProduct(domain.Product{IdentityHash: "h", URL: th.ProductURL, Status: domain.ProductStatusHold})

	stale := p
	stale.Status = domain.ProductStatusActive
	_, created, err := m.AttachLoaded(context.Background(), th.UserID, &stale)
	require.NoError(t, err)
	assert.True(t, created)

	got, _ := store.Product(p.ID)
	assert.Equal(t, domain.ProductStatusActive, got.Status, "held product reactivated")
	assert.Equal(t, domain.ProductStatusActive, stale.Status)
}

func TestManager_ConcurrentDetachHoldsProduct(t *testing.T) {
	t.Parallel()

	store, m := setup(t)
	p := store.AddProduct(domain.Product{IdentityHash: "h", URL: th.ProductURL})
	store.AddOwnership(th.UserID, p.ID, 38)
	store.AddOwnership(th.OtherUserID, p.ID, 38)

	var (
		wg    sync.WaitGroup
		holds atomic.Int32
	)
	for _, userID := range []string{th.UserID, th.OtherUserID} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			held, err := m.Detach(context.Background(), userID, p.ID)
			assert.NoError(t, err)
			if held {
				holds.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), holds.Load())
	got, _ := store.Product(p.ID)
	assert.Equal(t, domain.ProductStatusHold, got.Status)
}

func TestManager_Subscriptions(t *testing.T) {
	t.Parallel()

	store, m := setup(t)
	p := store.AddProduct(domain.Product{IdentityHash: "h", URL: th.ProductURL})
	ctx := context.Background()

	_, err := m.Subscribe(ctx, th.UserID, p.ID, domain.SubscriptionNotifyOnRestock, nil)
	require.ErrorIs(t, err, domain.ErrNotFound, "only owners subscribe")

	store.AddOwnership(th.UserID, p.ID, 0)
	s, err := m.Subscribe(ctx, th.UserID, p.ID, domain.SubscriptionNotifyOnRestock, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.True(t, store.HasSubscription(th.UserID, p.ID))

	_, err = m.Subscribe(ctx, th.UserID, p.ID, "notify_on_discount", nil)
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, domain.CodeInvalidSubscription, vErr.Code)

	require.NoError(t, m.Unsubscribe(ctx, th.UserID, p.ID, domain.SubscriptionNotifyOnRestock))
	assert.False(t, store.HasSubscription(th.UserID, p.ID))
	require.ErrorIs(t, m.Unsubscribe(ctx, th.UserID, p.ID, domain.SubscriptionNotifyOnRestock), domain.ErrNotFound)
}

func TestManager_OutdatedProducts(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store, m := setup(t)
	m.WithClock(func() time.Time { return now })

	stale := store.AddProduct(domain.Product{IdentityHash: "a", URL: "https://a", CreatedAt: now.Add(-72 * time.Hour)})
	staler := store.AddProduct(domain.Product{IdentityHash: "b", URL: "https://b", CreatedAt: now.Add(-96 * time.Hour)})
	fresh := store.AddProduct(domain.Product{IdentityHash: "c", URL: "https://c", CreatedAt: now.Add(-96 * time.Hour)})
	held := store.AddProduct(domain.Product{
		IdentityHash: "d", URL: "https://d", Status: domain.ProductStatusHold, CreatedAt: now.Add(-96 * time.Hour),
	})
	onlySkipped := store.AddProduct(domain.Product{IdentityHash: "e", URL: "https://e", CreatedAt: now.Add(-48 * time.Hour)})

	rec := okRecord(fresh.ID, true, 38)
	rec.CreatedAt = now.Add(-time.Hour)
	store.AddHistory(rec)
	store.AddHistory(domain.HistoryRecord{
		ProductID: onlySkipped.ID, CrawlerID: th.CrawlerID, Status: domain.StatusSkip, CreatedAt: now.Add(-time.Hour),
	})

	got, err := m.OutdatedProducts(context.Background(), 24, 0)
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, p := range got {
		ids = append(ids, p.ID)
		assert.NotEqual(t, held.ID, p.ID, "held products are never outdated")
	}
	assert.Equal(t, []string{staler.ID, stale.ID, onlySkipped.ID}, ids)

	got, err = m.OutdatedProducts(context.Background(), 24, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, staler.ID, got[0].ID)

	_, err = m.OutdatedProducts(context.Background(), -1, 10)
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestManager_View(t *testing.T) {
	t.Parallel()

	store, m := setup(t)
	p := store.AddProduct(domain.Product{IdentityHash: "h", URL: th.ProductURL, Title: "Kettle"})
	store.AddOwnership(th.UserID, p.ID, 38)
	store.AddHistory(okRecord(p.ID, true, 45))
	store.AddHistory(okRecord(p.ID, true, 38))
	store.AddHistory(domain.HistoryRecord{ProductID: p.ID, CrawlerID: th.CrawlerID, Status: domain.StatusNotFound})

	view, err := m.View(context.Background(), th.UserID, p.ID, 0)
	require.NoError(t, err)

	assert.InDelta(t, 38.0, view.CurrentPrice, 0.001)
	assert.InDelta(t, 38.0, view.LowestPrice, 0.001)
	assert.InDelta(t, 45.0, view.HighestPrice, 0.001)
	assert.Len(t, view.History, 3)
	assert.Equal(t, domain.StatusNotFound, view.History[0].Status, "newest first")
	assert.True(t, view.Summary.RecentInStock)

	_, err = m.View(context.Background(), th.OtherUserID, p.ID, 0)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
