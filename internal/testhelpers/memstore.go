// Package testhelpers provides in-memory fakes shared by package tests.
package testhelpers

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/price-tracker/internal/database"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
)

// ErrInjected is the default error returned by an operation registered with FailOn.
var ErrInjected = errors.New("injected store failure")

type memState struct {
	users         map[string]domain.User
	crawlers      map[string]domain.Crawler
	products      map[string]domain.Product
	history       []domain.HistoryRecord
	queue         map[string]domain.QueueEntry
	ownerships    map[string]domain.Ownership
	subscriptions map[string]domain.Subscription
	notifications map[string]domain.Notification
}

func newMemState() *memState {
	return &memState{
		users:         map[string]domain.User{},
		crawlers:      map[string]domain.Crawler{},
		products:      map[string]domain.Product{},
		queue:         map[string]domain.QueueEntry{},
		ownerships:    map[string]domain.Ownership{},
		subscriptions: map[string]domain.Subscription{},
		notifications: map[string]domain.Notification{},
	}
}

func (s *memState) clone() *memState {
	return &memState{
		users:         maps.Clone(s.users),
		crawlers:      maps.Clone(s.crawlers),
		products:      maps.Clone(s.products),
		history:       slices.Clone(s.history),
		queue:         maps.Clone(s.queue),
		ownerships:    maps.Clone(s.ownerships),
		subscriptions: maps.Clone(s.subscriptions),
		notifications: maps.Clone(s.notifications),
	}
}

type memShared struct {
	mu        sync.Mutex
	txMu      sync.Mutex
	state     *memState
	failOn    map[string]error
	clock     func() time.Time
	lastStamp time.Time
	// raceWinner is inserted by the next CreateProduct, which then loses.
	raceWinner *domain.Product
}

// MemStore is an in-memory database.Store. Transactions are serialized and
// work on a copy of the state that replaces it on commit.
type MemStore struct {
	shared *memShared
	// tx is non-nil for transaction-bound stores.
	tx *memState
}

var _ database.Store = (*MemStore)(nil)

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{shared: &memShared{
		state:  newMemState(),
		failOn: map[string]error{},
		clock:  time.Now,
	}}
}

// SetClock overrides the time source used for created_at columns.
func (m *MemStore) SetClock(clock func() time.Time) {
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()
	m.shared.clock = clock
}

// FailOn makes the named method return err (ErrInjected when nil).
func (m *MemStore) FailOn(method string, err error) {
	if err == nil {
		err = ErrInjected
	}
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()
	m.shared.failOn[method] = err
}

// SimulateCreateRace makes the next CreateProduct behave as if winner had
// been committed by a concurrent caller just before it.
func (m *MemStore) SimulateCreateRace(winner domain.Product) {
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()
	m.shared.raceWinner = &winner
}

// view runs fn on the state visible to this handle.
func (m *MemStore) view(method string, fn func(st *memState) error) error {
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()

	if err, ok := m.shared.failOn[method]; ok {
		return domain.StoreUnavailable(method, err)
	}
	if m.tx != nil {
		return fn(m.tx)
	}
	return fn(m.shared.state)
}

// stamp returns a strictly increasing timestamp. Callers hold mu.
func (m *MemStore) stamp() time.Time {
	t := m.shared.clock()
	if !t.After(m.shared.lastStamp) {
		t = m.shared.lastStamp.Add(time.Microsecond)
	}
	m.shared.lastStamp = t
	return t
}

// InTx implements database.Store.
func (m *MemStore) InTx(ctx context.Context, fn func(tx database.Store) error) error {
	if m.tx != nil {
		return fn(m)
	}
	if err := ctx.Err(); err != nil {
		return domain.StoreUnavailable("begin transaction", err)
	}

	m.shared.txMu.Lock()
	defer m.shared.txMu.Unlock()

	m.shared.mu.Lock()
	snapshot := m.shared.state.clone()
	m.shared.mu.Unlock()

	if err := fn(&MemStore{shared: m.shared, tx: snapshot}); err != nil {
		return err
	}

	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()
	if err, ok := m.shared.failOn["Commit"]; ok {
		return domain.StoreUnavailable("commit transaction", err)
	}
	m.shared.state = snapshot
	return nil
}

// Ping implements database.Store.
func (m *MemStore) Ping(context.Context) error {
	return m.view("Ping", func(*memState) error { return nil })
}

// --- seeding and inspection ---

// AddUser seeds a user. An empty chatID means not telegram-linked.
func (m *MemStore) AddUser(id, chatID string) {
	u := domain.User{ID: id}
	if chatID != "" {
		u.TelegramChatID = &chatID
	}
	_ = m.view("", func(st *memState) error {
		u.CreatedAt = m.stamp()
		st.users[id] = u
		return nil
	})
}

// AddCrawler seeds a crawler.
func (m *MemStore) AddCrawler(id, name string) {
	_ = m.view("", func(st *memState) error {
		st.crawlers[id] = domain.Crawler{ID: id, Name: name, CreatedAt: m.stamp()}
		return nil
	})
}

// AddProduct seeds a product, filling defaults.
func (m *MemStore) AddProduct(p domain.Product) domain.Product {
	_ = m.view("", func(st *memState) error {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if p.Status == "" {
			p.Status = domain.ProductStatusActive
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = m.stamp()
		}
		p.UpdatedAt = p.CreatedAt
		st.products[p.ID] = p
		return nil
	})
	return p
}

// AddHistory seeds a history record. A zero CreatedAt takes the next stamp.
func (m *MemStore) AddHistory(rec domain.HistoryRecord) {
	_ = m.view("", func(st *memState) error {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = m.stamp()
		}
		st.history = append(st.history, rec)
		return nil
	})
}

// AddOwnership seeds an ownership.
func (m *MemStore) AddOwnership(userID, productID string, price float64) {
	_ = m.view("", func(st *memState) error {
		now := m.stamp()
		st.ownerships[ownerKey(userID, productID)] = domain.Ownership{
			ID: uuid.NewString(), UserID: userID, ProductID: productID,
			Price: price, CreatedAt: now, UpdatedAt: now,
		}
		return nil
	})
}

// AddSubscription seeds a notify_on_restock subscription.
func (m *MemStore) AddSubscription(userID, productID string) {
	_ = m.view("", func(st *memState) error {
		s := domain.Subscription{
			ID: uuid.NewString(), UserID: userID, ProductID: productID,
			Type: domain.SubscriptionNotifyOnRestock, CreatedAt: m.stamp(),
		}
		st.subscriptions[subscriptionKey(userID, productID, s.Type)] = s
		return nil
	})
}

// Product returns the committed product.
func (m *MemStore) Product(id string) (domain.Product, bool) {
	var p domain.Product
	var ok bool
	_ = m.view("", func(st *memState) error {
		p, ok = st.products[id]
		return nil
	})
	return p, ok
}

// Products returns all committed products.
func (m *MemStore) Products() []domain.Product {
	var out []domain.Product
	_ = m.view("", func(st *memState) error {
		out = slices.Collect(maps.Values(st.products))
		return nil
	})
	return out
}

// History returns the committed history of a product in insertion order.
func (m *MemStore) History(productID string) []domain.HistoryRecord {
	var out []domain.HistoryRecord
	_ = m.view("", func(st *memState) error {
		for _, rec := range st.history {
			if rec.ProductID == productID {
				out = append(out, rec)
			}
		}
		return nil
	})
	return out
}

// AllHistory returns every committed history record.
func (m *MemStore) AllHistory() []domain.HistoryRecord {
	var out []domain.HistoryRecord
	_ = m.view("", func(st *memState) error {
		out = slices.Clone(st.history)
		return nil
	})
	return out
}

// Queue returns committed queue entries sorted by url and requester.
func (m *MemStore) Queue() []domain.QueueEntry {
	var out []domain.QueueEntry
	_ = m.view("", func(st *memState) error {
		out = sortedQueue(st.queue, func(domain.QueueEntry) bool { return true })
		return nil
	})
	return out
}

// Ownership returns the committed ownership.
func (m *MemStore) Ownership(userID, productID string) (domain.Ownership, bool) {
	var o domain.Ownership
	var ok bool
	_ = m.view("", func(st *memState) error {
		o, ok = st.ownerships[ownerKey(userID, productID)]
		return nil
	})
	return o, ok
}

// HasSubscription reports whether a committed notify_on_restock subscription exists.
func (m *MemStore) HasSubscription(userID, productID string) bool {
	var ok bool
	_ = m.view("", func(st *memState) error {
		_, ok = st.subscriptions[subscriptionKey(userID, productID, domain.SubscriptionNotifyOnRestock)]
		return nil
	})
	return ok
}

// Notifications returns committed notifications ordered by creation.
func (m *MemStore) Notifications() []domain.Notification {
	var out []domain.Notification
	_ = m.view("", func(st *memState) error {
		out = slices.Collect(maps.Values(st.notifications))
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func ownerKey(userID, productID string) string {
	return userID + "|" + productID
}

func subscriptionKey(userID, productID string, typ domain.SubscriptionType) string {
	return userID + "|" + productID + "|" + string(typ)
}

func queueKey(url, hash, requester string) string {
	return url + "|" + hash + "|" + requester
}

func sortedQueue(entries map[string]domain.QueueEntry, keep func(domain.QueueEntry) bool) []domain.QueueEntry {
	out := []domain.QueueEntry{}
	for _, e := range entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := strings.Compare(out[i].URL, out[j].URL); c != 0 {
			return c < 0
		}
		return out[i].RequestedBy < out[j].RequestedBy
	})
	return out
}

var (
	errPricelessStatus = errors.New("product_history_priceless_status constraint violated")
	errNegativePrice   = errors.New("user_products price check constraint violated")
)
