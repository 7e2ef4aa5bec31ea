//go:build integration

package database_test

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	infraconfig "github.com/jonesrussell/north-cloud/price-tracker/infrastructure/config"
	"github.com/jonesrussell/north-cloud/price-tracker/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/canonical"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/database"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/ingest"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/lifecycle"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/metrics"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/notify"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/queue"
)

const postgresStartupTimeout = 90 * time.Second

type noopDispatcher struct{}

func (noopDispatcher) DispatchAsync([]domain.Notification) {}

func startPostgres(t *testing.T) (*database.PostgresStore, *sqlx.DB) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "tracker",
				"POSTGRES_PASSWORD": "tracker",
				"POSTGRES_DB":       "price_tracker",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(postgresStartupTimeout),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := infraconfig.DatabaseConfig{
		Host:     host,
		Port:     port.Int(),
		User:     "tracker",
		Password: "tracker",
		DBName:   "price_tracker",
	}
	cfg.SetDefaults()

	_, filename, _, _ := runtime.Caller(0)
	migrations := filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
	require.NoError(t, database.NewMigrator(migrations, cfg.MigrateURL(), logger.NewNop()).Up())

	db, err := database.NewPostgresConnection(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return database.NewPostgresStore(db), db
}

func TestPostgres_TrackAndReport(t *testing.T) {
	store, db := startPostgres(t)
	ctx := context.Background()

	userID := uuid.NewString()
	crawlerID := uuid.NewString()
	_, err := db.ExecContext(ctx, `INSERT INTO users (id, telegram_chat_id) VALUES ($1, '1001')`, userID)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO crawlers (id, name) VALUES ($1, 'it')`, crawlerID)
	require.NoError(t, err)

	registry, err := canonical.NewRegistry(canonical.DefaultShops())
	require.NoError(t, err)
	m := metrics.NewUnregistered()
	log := logger.NewNop()
	coordinator := queue.NewCoordinator(store, registry, m, log)
	notifier := notify.NewNotifier("https://tracker.example.com", m, log)
	ingestor := ingest.NewIngestor(store, registry, coordinator, notifier, noopDispatcher{}, m, log)
	manager := lifecycle.NewManager(store, log)

	enq, err := coordinator.Enqueue(ctx, "https://amazon.com/dp/B08N5WRWNW?ref=abc", userID)
	require.NoError(t, err)
	require.NotNil(t, enq.Entry)

	pulled, err := coordinator.Pull(ctx, crawlerID)
	require.NoError(t, err)
	require.Len(t, pulled, 1)

	report, err := ingest.ParseReport([]byte(
		`{"status":"ok","in_stock":true,"original_price":"24.99","discount_price":19.99,"title":"Echo Dot"}`))
	require.NoError(t, err)

	entry := pulled[0]
	res, err := ingestor.ReportNew(ctx, crawlerID, ingest.QueueRef{
		Hash: entry.IdentityHash, Shop: entry.Shop, URL: entry.URL, Requester: userID,
	}, report)
	require.NoError(t, err)
	require.True(t, res.ProductCreated)
	assert.Equal(t, ingest.OutcomeCreated, res.Outcome)

	remaining, err := store.QueueEntriesByHash(ctx, entry.IdentityHash)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	ownership, err := store.GetOwnership(ctx, userID, res.Product.ID)
	require.NoError(t, err)
	assert.InDelta(t, 19.99, ownership.Price, 0.001)

	view, err := manager.View(ctx, userID, res.Product.ID, 10)
	require.NoError(t, err)
	assert.InDelta(t, 19.99, view.CurrentPrice, 0.001)
	require.Len(t, view.History, 1)

	dup := &domain.Product{
		ID: uuid.NewString(), IdentityHash: entry.IdentityHash,
		Shop: entry.Shop, URL: entry.URL, Status: domain.ProductStatusActive,
	}
	err = store.CreateProduct(ctx, dup)
	assert.True(t, errors.Is(err, domain.ErrIdentityConflict))

	held, err := manager.Detach(ctx, userID, res.Product.ID)
	require.NoError(t, err)
	assert.True(t, held)

	product, err := store.GetProduct(ctx, res.Product.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProductStatusHold, product.Status)
}

func seedOwnedProduct(t *testing.T, store *database.PostgresStore, db *sqlx.DB, owners ...string) (crawlerID string, product *domain.Product) {
	t.Helper()
	ctx := context.Background()

	crawlerID = uuid.NewString()
	_, err := db.ExecContext(ctx, `INSERT INTO crawlers (id, name) VALUES ($1, 'it')`, crawlerID)
	require.NoError(t, err)

	product = &domain.Product{
		IdentityHash: strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", ""),
		Shop:         "amazon",
		URL:          "https://www.amazon.com/dp/B0" + uuid.NewString()[:8],
		Title:        "Kettle",
	}
	require.NoError(t, store.CreateProduct(ctx, product))

	for i, userID := range owners {
		_, err = db.ExecContext(ctx, `INSERT INTO users (id, telegram_chat_id) VALUES ($1, $2)`, userID, strconv.Itoa(2000+i))
		require.NoError(t, err)
		_, err = store.CreateOwnership(ctx, &domain.Ownership{UserID: userID, ProductID: product.ID})
		require.NoError(t, err)
	}
	return crawlerID, product
}

func TestPostgres_ConcurrentInStockReportsNotifyOnce(t *testing.T) {
	store, db := startPostgres(t)
	ctx := context.Background()

	userID := uuid.NewString()
	crawlerID, product := seedOwnedProduct(t, store, db, userID)

	registry, err := canonical.NewRegistry(canonical.DefaultShops())
	require.NoError(t, err)
	m := metrics.NewUnregistered()
	log := logger.NewNop()
	coordinator := queue.NewCoordinator(store, registry, m, log)
	notifier := notify.NewNotifier("https://tracker.example.com", m, log)
	ingestor := ingest.NewIngestor(store, registry, coordinator, notifier, noopDispatcher{}, m, log)

	report, err := ingest.ParseReport([]byte(`{"status":"ok","in_stock":true,"discount_price":19.99,"title":"Kettle"}`))
	require.NoError(t, err)

	const reporters = 4
	var wg sync.WaitGroup
	for range reporters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, reportErr := ingestor.ReportExisting(ctx, crawlerID, product.ID, report)
			assert.NoError(t, reportErr)
		}()
	}
	wg.Wait()

	var notifications int
	require.NoError(t, db.GetContext(ctx, &notifications,
		`SELECT count(*) FROM notifications WHERE user_id = $1`, userID))
	assert.Equal(t, 1, notifications)

	var history int
	require.NoError(t, db.GetContext(ctx, &history,
		`SELECT count(*) FROM product_history WHERE product_id = $1`, product.ID))
	assert.Equal(t, reporters, history)
}

func TestPostgres_ConcurrentDetachHoldsProduct(t *testing.T) {
	store, db := startPostgres(t)
	ctx := context.Background()

	owners := []string{uuid.NewString(), uuid.NewString()}
	_, product := seedOwnedProduct(t, store, db, owners...)
	manager := lifecycle.NewManager(store, logger.NewNop())

	var wg sync.WaitGroup
	for _, userID := range owners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, detachErr := manager.Detach(ctx, userID, product.ID)
			assert.NoError(t, detachErr)
		}()
	}
	wg.Wait()

	got, err := store.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProductStatusHold, got.Status)
}
