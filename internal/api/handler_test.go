package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infrajwt "github.com/jonesrussell/north-cloud/price-tracker/infrastructure/jwt"
	"github.com/jonesrussell/north-cloud/price-tracker/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/api"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/canonical"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/ingest"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/lifecycle"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/metrics"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/notify"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/queue"
	th "github.com/jonesrussell/north-cloud/price-tracker/internal/testhelpers"
)

const testSecret = "test-secret"

type discardDispatcher struct{}

func (discardDispatcher) DispatchAsync([]domain.Notification) {}

type testServer struct {
	t        *testing.T
	store    *th.MemStore
	router   *gin.Engine
	identity canonical.Identity
}

func newTestServer(t *testing.T, rl api.RateLimitConfig) *testServer {
	t.Helper()

	gin.SetMode(gin.TestMode)
	store := th.NewMemStore()
	th.SeedAccounts(store)

	registry := th.Registry()
	identity, err := registry.Canonicalize(th.ProductURL)
	require.NoError(t, err)

	m := metrics.NewUnregistered()
	log := logger.NewNop()
	coordinator := queue.NewCoordinator(store, registry, m, log)
	notifier := notify.NewNotifier("https://tracker.example.com", m, log)
	ingestor := ingest.NewIngestor(store, registry, coordinator, notifier, discardDispatcher{}, m, log)
	manager := lifecycle.NewManager(store, log)

	router := gin.New()
	api.NewHandler(coordinator, ingestor, manager, api.Config{JWTSecret: testSecret, RateLimit: rl}, log).
		Register(router)

	return &testServer{t: t, store: store, router: router, identity: identity}
}

func token(t *testing.T, sub, role string) string {
	t.Helper()

	tok, err := infrajwt.Sign(testSecret, sub, role, 0)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(method, path, tok string, body any) (*httptest.ResponseRecorder, map[string]any) {
	s.t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func (s *testServer) crawler() string { return token(s.t, th.CrawlerID, infrajwt.RoleCrawler) }
func (s *testServer) user() string    { return token(s.t, th.UserID, infrajwt.RoleUser) }

func TestAuth(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, api.RateLimitConfig{})

	w, _ := s.do(http.MethodGet, "/api/v1/crawler/queue", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(http.MethodGet, "/api/v1/crawler/queue", s.user(), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "user token on crawler route")

	w, _ = s.do(http.MethodGet, "/api/v1/crawler/queue", token(t, uuid.NewString(), infrajwt.RoleCrawler), nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "unknown crawler")

	w, _ = s.do(http.MethodGet, "/api/v1/crawler/queue", token(t, "not-a-uuid", infrajwt.RoleCrawler), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTrackAndReportNew(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, api.RateLimitConfig{})

	w, body := s.do(http.MethodPost, "/api/v1/user/products", s.user(),
		map[string]string{"url": "https://amazon.com/gp/product/B08N5WRWNW?tag=abc"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	entry, _ := body["queue_entry"].(map[string]any)
	assert.Equal(t, s.identity.Hash, entry["hash"])

	w, _ = s.do(http.MethodPost, "/api/v1/user/products", s.user(), map[string]string{"url": th.ProductURL})
	assert.Equal(t, http.StatusOK, w.Code, "same request again")

	w, body = s.do(http.MethodGet, "/api/v1/crawler/queue", s.crawler(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["count"])

	w, body = s.do(http.MethodPost, "/api/v1/crawler/queue/results", s.crawler(), map[string]any{
		"hash": s.identity.Hash, "shop": s.identity.Shop, "url": s.identity.URL, "requester": th.UserID,
		"status": "ok", "in_stock": true, "original_price": 50, "discount_price": "38", "title": "Kettle",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, true, body["product_created"])
	productID, _ := body["product_id"].(string)
	require.NotEmpty(t, productID)

	w, body = s.do(http.MethodGet, "/api/v1/user/products/"+productID, s.user(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.InDelta(t, 38.0, body["current_price"], 0.001)

	w, body = s.do(http.MethodPost, "/api/v1/user/products",
		token(t, th.OtherUserID, infrajwt.RoleUser), map[string]string{"url": th.ProductURL})
	require.Equal(t, http.StatusOK, w.Code)
	ownership, _ := body["ownership"].(map[string]any)
	assert.InDelta(t, 38.0, ownership["price"], 0.001, "attached at the current in-stock price")
}

func TestReportExisting_Responses(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, api.RateLimitConfig{})
	p := s.store.AddProduct(domain.Product{
		IdentityHash: s.identity.Hash, Shop: s.identity.Shop, URL: s.identity.URL, Title: "Kettle",
	})
	path := "/api/v1/crawler/products/" + p.ID + "/results"

	tests := []struct {
		name string
		path string
		body string
		want int
		code string
	}{
		{"skip", path, `{"status":"skip"}`, http.StatusOK, ""},
		{"change location", path, `{"status":"required_to_change_location"}`, http.StatusOK, ""},
		{"not found", path, `{"status":"not_found"}`, http.StatusCreated, ""},
		{"ok", path, `{"status":"ok","in_stock":true,"discount_price":9.5,"title":"Kettle"}`, http.StatusCreated, ""},
		{"missing status", path, `{}`, http.StatusBadRequest, "missing_field"},
		{"unknown field", path, `{"status":"skip","foo":1}`, http.StatusBadRequest, "unknown_field"},
		{"price on terminal", path, `{"status":"age_restriction","original_price":3}`, http.StatusBadRequest, "unknown_field"},
		{"not a number", path, `{"status":"ok","in_stock":true,"title":"K","original_price":"abc"}`,
			http.StatusUnprocessableEntity, "must_be_a_number"},
		{"not positive", path, `{"status":"ok","in_stock":true,"title":"K","original_price":-1}`,
			http.StatusUnprocessableEntity, "must_be_positive"},
		{"price too large", path, `{"status":"ok","in_stock":true,"title":"K","original_price":1e12}`,
			http.StatusUnprocessableEntity, "invalid_field"},
		{"no prices in stock", path, `{"status":"ok","in_stock":true,"title":"K"}`,
			http.StatusUnprocessableEntity, "missing_prices"},
		{"unknown product", "/api/v1/crawler/products/" + uuid.NewString() + "/results", `{"status":"skip"}`,
			http.StatusNotFound, "not_found"},
		{"malformed product id", "/api/v1/crawler/products/42/results", `{"status":"skip"}`,
			http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		w, body := s.do(http.MethodPost, tt.path, s.crawler(), tt.body)
		assert.Equal(t, tt.want, w.Code, tt.name+": "+w.Body.String())
		if tt.code != "" {
			assert.Equal(t, tt.code, body["code"], tt.name)
		}
	}

	assert.Len(t, s.store.History(p.ID), 2)
}

func TestReportNew_Rejects(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, api.RateLimitConfig{})

	w, body := s.do(http.MethodPost, "/api/v1/crawler/queue/results", s.crawler(), map[string]any{
		"hash": s.identity.Hash, "shop": s.identity.Shop, "url": s.identity.URL, "status": "skip",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "missing_field", body["code"])

	w, body = s.do(http.MethodPost, "/api/v1/crawler/queue/results", s.crawler(), map[string]any{
		"hash": "deadbeef", "shop": s.identity.Shop, "url": s.identity.URL, "requester": th.UserID,
		"status": "skip",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "identity_mismatch", body["code"])

	w, _ = s.do(http.MethodPost, "/api/v1/crawler/queue/results", s.crawler(), map[string]any{
		"hash": s.identity.Hash, "shop": s.identity.Shop, "url": s.identity.URL, "requester": th.UserID,
		"status": "skip",
	})
	assert.Equal(t, http.StatusNotFound, w.Code, "no queue entry")
}

func TestTrack_InvalidURL(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, api.RateLimitConfig{})

	w, body := s.do(http.MethodPost, "/api/v1/user/products", s.user(), map[string]string{"url": "https://example.org/x"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "unsupported_shop", body["code"])

	w, body = s.do(http.MethodPost, "/api/v1/user/products", s.user(), map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "missing_field", body["code"])

	w, _ = s.do(http.MethodPost, "/api/v1/user/products", s.user(), `{"url":"x","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUntrackAndSubscriptions(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, api.RateLimitConfig{})
	p := s.store.AddProduct(domain.Product{IdentityHash: s.identity.Hash, URL: s.identity.URL, Title: "Kettle"})
	s.store.AddOwnership(th.UserID, p.ID, 0)
	base := "/api/v1/user/products/" + p.ID

	w, _ := s.do(http.MethodPut, base+"/subscriptions/notify_on_restock", s.user(), nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, s.store.HasSubscription(th.UserID, p.ID))

	w, body := s.do(http.MethodPut, base+"/subscriptions/notify_on_discount", s.user(), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "invalid_subscription_type", body["code"])

	w, _ = s.do(http.MethodDelete, base+"/subscriptions/notify_on_restock", s.user(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = s.do(http.MethodDelete, base+"/subscriptions/notify_on_restock", s.user(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = s.do(http.MethodDelete, base, s.user(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["product_on_hold"])

	got, _ := s.store.Product(p.ID)
	assert.Equal(t, domain.ProductStatusHold, got.Status)

	w, _ = s.do(http.MethodDelete, base, s.user(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOutdatedProducts(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, api.RateLimitConfig{})
	s.store.AddProduct(domain.Product{IdentityHash: "old", URL: "https://old"})

	w, body := s.do(http.MethodGet, "/api/v1/crawler/products/outdated?max_age_hours=1&limit=5", s.crawler(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, body["count"], "created just now")

	w, body = s.do(http.MethodGet, "/api/v1/crawler/products/outdated?limit=abc", s.crawler(), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "invalid_field", body["code"])
}

func TestStoreFailureIs500(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, api.RateLimitConfig{})
	s.store.FailOn("ListQueueForCrawler", nil)

	w, body := s.do(http.MethodGet, "/api/v1/crawler/queue", s.crawler(), nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal_error", body["code"])
	assert.NotContains(t, w.Body.String(), th.ErrInjected.Error())
}

func TestCrawlerRateLimit(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, api.RateLimitConfig{RPS: 0.001, Burst: 1})

	w, _ := s.do(http.MethodGet, "/api/v1/crawler/queue", s.crawler(), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(http.MethodGet, "/api/v1/crawler/queue", s.crawler(), nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	other := token(t, th.OtherCrawlerID, infrajwt.RoleCrawler)
	w, _ = s.do(http.MethodGet, "/api/v1/crawler/queue", other, nil)
	assert.Equal(t, http.StatusOK, w.Code, "limits are per crawler")
}
