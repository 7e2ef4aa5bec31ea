package testhelpers

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
)

// --- products ---

func (m *MemStore) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	var out *domain.Product
	err := m.view("GetProduct", func(st *memState) error {
		p, ok := st.products[id]
		if !ok {
			return domain.NewNotFound("product", id)
		}
		out = &p
		return nil
	})
	return out, err
}

func (m *MemStore) GetProductByHash(_ context.Context, hash string) (*domain.Product, error) {
	var out *domain.Product
	err := m.view("GetProductByHash", func(st *memState) error {
		for _, p := range st.products {
			if p.IdentityHash == hash {
				out = &p
				return nil
			}
		}
		return domain.NewNotFound("product", hash)
	})
	return out, err
}

// LockProduct is GetProduct; InTx already serializes transactions.
func (m *MemStore) LockProduct(_ context.Context, id string) (*domain.Product, error) {
	var out *domain.Product
	err := m.view("LockProduct", func(st *memState) error {
		p, ok := st.products[id]
		if !ok {
			return domain.NewNotFound("product", id)
		}
		out = &p
		return nil
	})
	return out, err
}

func (m *MemStore) CreateProduct(_ context.Context, p *domain.Product) error {
	return m.view("CreateProduct", func(st *memState) error {
		if w := m.shared.raceWinner; w != nil {
			m.shared.raceWinner = nil
			if w.CreatedAt.IsZero() {
				w.CreatedAt = m.stamp()
				w.UpdatedAt = w.CreatedAt
			}
			if w.Status == "" {
				w.Status = domain.ProductStatusActive
			}
			st.products[w.ID] = *w
			if m.tx != nil {
				m.shared.state.products[w.ID] = *w
			}
		}

		for _, existing := range st.products {
			if existing.IdentityHash == p.IdentityHash {
				return domain.ErrIdentityConflict
			}
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if p.Status == "" {
			p.Status = domain.ProductStatusActive
		}
		p.CreatedAt = m.stamp()
		p.UpdatedAt = p.CreatedAt
		st.products[p.ID] = *p
		return nil
	})
}

func (m *MemStore) SetProductStatus(_ context.Context, id string, status domain.ProductStatus) error {
	return m.view("SetProductStatus", func(st *memState) error {
		p, ok := st.products[id]
		if !ok {
			return domain.NewNotFound("product", id)
		}
		p.Status = status
		p.UpdatedAt = m.stamp()
		st.products[id] = p
		return nil
	})
}

func (m *MemStore) SetProductTitle(_ context.Context, id, title string) error {
	return m.view("SetProductTitle", func(st *memState) error {
		p, ok := st.products[id]
		if !ok {
			return domain.NewNotFound("product", id)
		}
		p.Title = title
		p.UpdatedAt = m.stamp()
		st.products[id] = p
		return nil
	})
}

func (m *MemStore) ListOutdatedProducts(_ context.Context, cutoff time.Time, limit int) ([]domain.OutdatedProduct, error) {
	out := []domain.OutdatedProduct{}
	err := m.view("ListOutdatedProducts", func(st *memState) error {
		for _, p := range st.products {
			if p.Status != domain.ProductStatusActive {
				continue
			}
			last := p.CreatedAt
			for _, rec := range st.history {
				if rec.ProductID == p.ID && rec.Status != domain.StatusSkip && rec.CreatedAt.After(last) {
					last = rec.CreatedAt
				}
			}
			if last.Before(cutoff) {
				out = append(out, domain.OutdatedProduct{ID: p.ID, Shop: p.Shop, URL: p.URL, LastCrawledAt: last})
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastCrawledAt.Equal(out[j].LastCrawledAt) {
			return out[i].LastCrawledAt.Before(out[j].LastCrawledAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

// --- history ---

func (m *MemStore) InsertHistory(_ context.Context, rec *domain.HistoryRecord) error {
	return m.view("InsertHistory", func(st *memState) error {
		if _, ok := st.products[rec.ProductID]; !ok {
			return domain.StoreUnavailable("insert history", domain.NewNotFound("product", rec.ProductID))
		}
		if rec.Status != domain.StatusOK && rec.Status != domain.StatusSkip &&
			(rec.OriginalPrice != nil || rec.DiscountPrice != nil || rec.InStock) {
			return domain.StoreUnavailable("insert history", errPricelessStatus)
		}
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		rec.CreatedAt = m.stamp()
		st.history = append(st.history, *rec)
		return nil
	})
}

func (m *MemStore) LatestOKHistory(_ context.Context, productID string) (*domain.HistoryRecord, error) {
	var out *domain.HistoryRecord
	err := m.view("LatestOKHistory", func(st *memState) error {
		for _, rec := range st.history {
			if rec.ProductID != productID || rec.Status != domain.StatusOK {
				continue
			}
			if out == nil || rec.CreatedAt.After(out.CreatedAt) {
				r := rec
				out = &r
			}
		}
		if out == nil {
			return domain.NewNotFound("history", productID)
		}
		return nil
	})
	return out, err
}

func (m *MemStore) RecentHistory(_ context.Context, productID string, limit int) ([]domain.PricePoint, error) {
	var recs []domain.HistoryRecord
	err := m.view("RecentHistory", func(st *memState) error {
		for _, rec := range st.history {
			if rec.ProductID == productID && rec.Status != domain.StatusSkip {
				recs = append(recs, rec)
			}
		}
		return nil
	})
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].CreatedAt.After(recs[j].CreatedAt) })
	if len(recs) > limit {
		recs = recs[:limit]
	}

	points := make([]domain.PricePoint, 0, len(recs))
	for _, rec := range recs {
		points = append(points, domain.PricePoint{
			OriginalPrice: rec.OriginalPrice,
			DiscountPrice: rec.DiscountPrice,
			InStock:       rec.InStock,
			Status:        rec.Status,
			CreatedAt:     rec.CreatedAt,
		})
	}
	return points, err
}

func (m *MemStore) HistoryStats(_ context.Context, productID string) (domain.HistoryStats, error) {
	var stats domain.HistoryStats
	err := m.view("HistoryStats", func(st *memState) error {
		for _, rec := range st.history {
			if rec.ProductID != productID || rec.Status == domain.StatusSkip {
				continue
			}
			stats.HasHistory = true
			if rec.Status == domain.StatusOK && rec.InStock {
				stats.WasInStock = true
			}
		}
		return nil
	})
	return stats, err
}

// --- queue ---

func (m *MemStore) InsertQueueEntry(_ context.Context, e *domain.QueueEntry) (bool, error) {
	created := false
	err := m.view("InsertQueueEntry", func(st *memState) error {
		key := queueKey(e.URL, e.IdentityHash, e.RequestedBy)
		if existing, ok := st.queue[key]; ok {
			*e = existing
			return nil
		}
		e.ID = uuid.NewString()
		e.SkipForCrawler = nil
		e.CreatedAt = m.stamp()
		st.queue[key] = *e
		created = true
		return nil
	})
	return created, err
}

func (m *MemStore) QueueEntriesByHash(_ context.Context, hash string) ([]domain.QueueEntry, error) {
	var out []domain.QueueEntry
	err := m.view("QueueEntriesByHash", func(st *memState) error {
		out = sortedQueue(st.queue, func(e domain.QueueEntry) bool { return e.IdentityHash == hash })
		return nil
	})
	return out, err
}

func (m *MemStore) ListQueueForCrawler(_ context.Context, crawlerID string) ([]domain.QueueEntry, error) {
	var out []domain.QueueEntry
	err := m.view("ListQueueForCrawler", func(st *memState) error {
		out = sortedQueue(st.queue, func(e domain.QueueEntry) bool {
			return e.SkipForCrawler == nil || *e.SkipForCrawler != crawlerID
		})
		return nil
	})
	return out, err
}

func (m *MemStore) SkipQueueForCrawler(_ context.Context, hash, crawlerID string) (int64, error) {
	var n int64
	err := m.view("SkipQueueForCrawler", func(st *memState) error {
		for key, e := range st.queue {
			if e.IdentityHash == hash {
				id := crawlerID
				e.SkipForCrawler = &id
				st.queue[key] = e
				n++
			}
		}
		return nil
	})
	return n, err
}

func (m *MemStore) DeleteQueueByHash(_ context.Context, hash string) (int64, error) {
	var n int64
	err := m.view("DeleteQueueByHash", func(st *memState) error {
		for key, e := range st.queue {
			if e.IdentityHash == hash {
				delete(st.queue, key)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (m *MemStore) CountQueue(context.Context) (int, error) {
	var n int
	err := m.view("CountQueue", func(st *memState) error {
		n = len(st.queue)
		return nil
	})
	return n, err
}

// --- ownerships and subscriptions ---

func (m *MemStore) GetOwnership(_ context.Context, userID, productID string) (*domain.Ownership, error) {
	var out *domain.Ownership
	err := m.view("GetOwnership", func(st *memState) error {
		o, ok := st.ownerships[ownerKey(userID, productID)]
		if !ok {
			return domain.NewNotFound("ownership", productID)
		}
		out = &o
		return nil
	})
	return out, err
}

func (m *MemStore) CreateOwnership(_ context.Context, o *domain.Ownership) (bool, error) {
	created := false
	err := m.view("CreateOwnership", func(st *memState) error {
		if o.Price < 0 {
			return domain.StoreUnavailable("create ownership", errNegativePrice)
		}
		key := ownerKey(o.UserID, o.ProductID)
		if existing, ok := st.ownerships[key]; ok {
			*o = existing
			return nil
		}
		o.ID = uuid.NewString()
		o.CreatedAt = m.stamp()
		o.UpdatedAt = o.CreatedAt
		st.ownerships[key] = *o
		created = true
		return nil
	})
	return created, err
}

func (m *MemStore) DeleteOwnership(_ context.Context, userID, productID string) error {
	return m.view("DeleteOwnership", func(st *memState) error {
		key := ownerKey(userID, productID)
		if _, ok := st.ownerships[key]; !ok {
			return domain.NewNotFound("ownership", productID)
		}
		delete(st.ownerships, key)
		return nil
	})
}

func (m *MemStore) CountOwnerships(_ context.Context, productID string) (int, error) {
	var n int
	err := m.view("CountOwnerships", func(st *memState) error {
		for _, o := range st.ownerships {
			if o.ProductID == productID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (m *MemStore) BackfillOwnershipPrices(_ context.Context, productID string, price float64) (int64, error) {
	var n int64
	err := m.view("BackfillOwnershipPrices", func(st *memState) error {
		for key, o := range st.ownerships {
			if o.ProductID == productID && o.Price == 0 {
				o.Price = price
				o.UpdatedAt = m.stamp()
				st.ownerships[key] = o
				n++
			}
		}
		return nil
	})
	return n, err
}

func (m *MemStore) ListRecipients(_ context.Context, productID string, restockOnly bool) ([]domain.Recipient, error) {
	out := []domain.Recipient{}
	err := m.view("ListRecipients", func(st *memState) error {
		for _, o := range st.ownerships {
			if o.ProductID != productID {
				continue
			}
			u, ok := st.users[o.UserID]
			if !ok || u.TelegramChatID == nil {
				continue
			}
			if restockOnly {
				if _, subscribed := st.subscriptions[subscriptionKey(o.UserID, productID, domain.SubscriptionNotifyOnRestock)]; !subscribed {
					continue
				}
			}
			out = append(out, domain.Recipient{UserID: u.ID, TelegramChatID: *u.TelegramChatID})
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, err
}

func (m *MemStore) UpsertSubscription(_ context.Context, s *domain.Subscription) error {
	return m.view("UpsertSubscription", func(st *memState) error {
		key := subscriptionKey(s.UserID, s.ProductID, s.Type)
		if existing, ok := st.subscriptions[key]; ok {
			s.ID = existing.ID
			s.CreatedAt = existing.CreatedAt
		} else {
			s.ID = uuid.NewString()
			s.CreatedAt = m.stamp()
		}
		st.subscriptions[key] = *s
		return nil
	})
}

func (m *MemStore) DeleteSubscription(_ context.Context, userID, productID string, typ domain.SubscriptionType) error {
	return m.view("DeleteSubscription", func(st *memState) error {
		key := subscriptionKey(userID, productID, typ)
		if _, ok := st.subscriptions[key]; !ok {
			return domain.NewNotFound("subscription", string(typ))
		}
		delete(st.subscriptions, key)
		return nil
	})
}

func (m *MemStore) DeleteSubscriptionsForOwner(_ context.Context, userID, productID string) error {
	return m.view("DeleteSubscriptionsForOwner", func(st *memState) error {
		for key, s := range st.subscriptions {
			if s.UserID == userID && s.ProductID == productID {
				delete(st.subscriptions, key)
			}
		}
		return nil
	})
}

// --- accounts ---

func (m *MemStore) GetUser(_ context.Context, id string) (*domain.User, error) {
	var out *domain.User
	err := m.view("GetUser", func(st *memState) error {
		u, ok := st.users[id]
		if !ok {
			return domain.NewNotFound("user", id)
		}
		out = &u
		return nil
	})
	return out, err
}

func (m *MemStore) GetCrawler(_ context.Context, id string) (*domain.Crawler, error) {
	var out *domain.Crawler
	err := m.view("GetCrawler", func(st *memState) error {
		c, ok := st.crawlers[id]
		if !ok {
			return domain.NewNotFound("crawler", id)
		}
		out = &c
		return nil
	})
	return out, err
}

// --- notifications ---

func (m *MemStore) InsertNotification(_ context.Context, n *domain.Notification) error {
	return m.view("InsertNotification", func(st *memState) error {
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		n.Status = domain.NotificationPending
		n.CreatedAt = m.stamp()
		st.notifications[n.ID] = *n
		return nil
	})
}

func (m *MemStore) ClaimNotification(_ context.Context, id string) (bool, error) {
	claimed := false
	err := m.view("ClaimNotification", func(st *memState) error {
		n, ok := st.notifications[id]
		if !ok || n.Status != domain.NotificationPending || n.AttemptedAt != nil {
			return nil
		}
		now := m.stamp()
		n.AttemptedAt = &now
		st.notifications[id] = n
		claimed = true
		return nil
	})
	return claimed, err
}

func (m *MemStore) ClaimUnattemptedNotifications(_ context.Context, olderThan time.Duration, limit int) ([]domain.Notification, error) {
	var out []domain.Notification
	err := m.view("ClaimUnattemptedNotifications", func(st *memState) error {
		cutoff := m.shared.clock().Add(-olderThan)
		for _, n := range st.notifications {
			if n.Status == domain.NotificationPending && n.AttemptedAt == nil && n.CreatedAt.Before(cutoff) {
				out = append(out, n)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
		if len(out) > limit {
			out = out[:limit]
		}
		for i := range out {
			now := m.stamp()
			out[i].AttemptedAt = &now
			st.notifications[out[i].ID] = out[i]
		}
		return nil
	})
	return out, err
}

func (m *MemStore) MarkNotificationSent(_ context.Context, id string) error {
	return m.view("MarkNotificationSent", func(st *memState) error {
		n, ok := st.notifications[id]
		if !ok {
			return domain.NewNotFound("notification", id)
		}
		now := m.stamp()
		n.Status = domain.NotificationSent
		n.SentAt = &now
		n.ErrorMessage = nil
		st.notifications[id] = n
		return nil
	})
}

func (m *MemStore) MarkNotificationFailed(_ context.Context, id, errMsg string) error {
	return m.view("MarkNotificationFailed", func(st *memState) error {
		n, ok := st.notifications[id]
		if !ok {
			return domain.NewNotFound("notification", id)
		}
		n.Status = domain.NotificationFailed
		n.ErrorMessage = &errMsg
		st.notifications[id] = n
		return nil
	})
}
