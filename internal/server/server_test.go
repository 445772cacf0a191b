package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ordersync/internal/clock"
	"github.com/smallbiznis/ordersync/internal/config"
	"github.com/smallbiznis/ordersync/internal/kitchen/bridge"
	"github.com/smallbiznis/ordersync/internal/normalize"
	"github.com/smallbiznis/ordersync/internal/observability/metrics"
	"github.com/smallbiznis/ordersync/internal/order/domain"
	"github.com/smallbiznis/ordersync/internal/orderstore"
	"github.com/smallbiznis/ordersync/internal/realtime"
	shiftservice "github.com/smallbiznis/ordersync/internal/shift/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	server *Server
	store  *orderstore.Store
	agg    *realtime.Aggregator
}

func newFixture(t *testing.T, cfg config.Config) fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()
	clk := clock.NewFakeClock(testNow)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	normalizer := normalize.NewStatic(log, config.DefaultEngineConfig())

	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, orderstore.AutoMigrate(conn))

	store := orderstore.New(orderstore.Params{DB: conn, Log: log, Clock: clk, GenID: node, Normalizer: normalizer})
	shifts := shiftservice.New(shiftservice.Params{Log: log, Config: cfg, Clock: clk, GenID: node, Remote: store})
	agg := realtime.New(realtime.Params{
		Log:        log,
		Normalizer: normalizer,
		Clock:      clk,
		Metrics:    metrics.NewEngineMetrics(prometheus.NewRegistry()),
	})
	b := bridge.New(bridge.Params{Log: log, Config: cfg, Clock: clk, Local: bridge.NewLocalBroadcaster()})

	srv := NewServer(ServerParams{
		Gin:        NewEngine(log),
		Cfg:        cfg,
		Log:        log,
		Aggregator: agg,
		Orders:     store,
		Shifts:     shifts,
		Bridge:     b,
	})
	return fixture{server: srv, store: store, agg: agg}
}

func (f fixture) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.server.Engine().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, config.Config{PosID: "pos-1"})

	rec := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestShiftLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t, config.Config{PosID: "pos-1"})

	rec := f.do(t, http.MethodPost, "/v1/shifts", gin.H{"cashier_id": "cashier-1", "opening_float": "100"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	shift := decodeBody(t, rec)["data"].(map[string]any)
	shiftID := shift["id"].(string)

	rec = f.do(t, http.MethodPost, "/v1/shifts", gin.H{"cashier_id": "cashier-2"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/shifts/current", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/shifts/"+shiftID+"/close", gin.H{"closing_cash": "100"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/v1/shifts/"+shiftID+"/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, "100", summary["expected_cash"])

	rec = f.do(t, http.MethodGet, "/v1/shifts/current", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/shifts", gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListOrdersPaginates(t *testing.T) {
	f := newFixture(t, config.Config{PosID: "pos-1"})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, err := f.store.SaveOrder(ctx, domain.SaveRequest{Insert: true, Order: domain.Order{
			ID:        fmt.Sprintf("20%02d", i),
			PosID:     "pos-1",
			ShiftID:   "s1",
			Type:      domain.OrderTypeTakeaway,
			Status:    domain.StatusOpen,
			Stage:     domain.StageNew,
			CreatedAt: testNow.Add(time.Duration(i) * time.Minute),
			UpdatedAt: testNow.Add(time.Duration(i) * time.Minute),
			Lines: []domain.Line{{
				ID: fmt.Sprintf("20%02d::tea", i), ItemID: "tea",
				Quantity: decimal.NewFromInt(1), BasePrice: decimal.NewFromInt(4),
				KitchenSection: "bar", Status: domain.LineQueued, Version: 1,
			}},
		}})
		require.NoError(t, err)
	}

	rec := f.do(t, http.MethodGet, "/v1/orders?page_size=2", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Len(t, body["data"], 2)
	info := body["page_info"].(map[string]any)
	assert.Equal(t, true, info["has_more"])

	rec = f.do(t, http.MethodGet, "/v1/orders?page_size=2&page_token="+info["next_page_token"].(string), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["data"], 1)

	rec = f.do(t, http.MethodGet, "/v1/orders/2001", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodGet, "/v1/orders/9999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/orders?updated_since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSnapshotViews(t *testing.T) {
	f := newFixture(t, config.Config{PosID: "pos-1"})
	require.NoError(t, f.agg.Apply("orders", []normalize.Row{
		{"id": "open-1", "order_type": "dine_in", "table_ids": "T1", "status": "open"},
	}))
	require.NoError(t, f.agg.Apply("line_items", []normalize.Row{
		{"id": "l1", "order_id": "open-1", "item_id": "soup", "qty": 1, "price": "8", "status": "preparing"},
	}))
	f.agg.RecomputeNow()

	rec := f.do(t, http.MethodGet, "/v1/snapshot?view=active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["data"], 1)

	rec = f.do(t, http.MethodGet, "/v1/snapshot?view=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCoordinatorRoutesUnavailableWithoutCoordinator(t *testing.T) {
	f := newFixture(t, config.Config{PosID: "pos-1"})

	rec := f.do(t, http.MethodGet, "/v1/orders/current", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestKitchenStatus(t *testing.T) {
	f := newFixture(t, config.Config{PosID: "pos-1"})

	rec := f.do(t, http.MethodGet, "/v1/kitchen/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "disconnected", decodeBody(t, rec)["state"])

	rec = f.do(t, http.MethodGet, "/v1/kitchen/events/unknown", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthRequiresKitchenToken(t *testing.T) {
	cfg := config.Config{PosID: "pos-1"}
	cfg.Kitchen.AuthSecret = "s3cret"
	f := newFixture(t, cfg)

	rec := f.do(t, http.MethodGet, "/v1/shifts/current", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	bad, err := bridge.IssueToken("other", "pos-1", time.Hour, time.Now())
	require.NoError(t, err)
	rec = f.do(t, http.MethodGet, "/v1/shifts/current", nil, "Authorization", "Bearer "+bad)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := bridge.IssueToken("s3cret", "pos-1", time.Hour, time.Now())
	require.NoError(t, err)
	rec = f.do(t, http.MethodGet, "/v1/shifts/current", nil, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMapError(t *testing.T) {
	status, payload := mapError(&domain.ConflictError{OrderID: "o1", ExpectedVersion: 1})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "version_conflict", payload.Message)

	verrs := &domain.ValidationErrors{}
	verrs.Add("tables", "", domain.ErrMissingTable)
	status, payload = mapError(verrs.OrNil())
	assert.Equal(t, http.StatusBadRequest, status)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "missing_table", payload.Errors[0].Code)

	status, _ = mapError(fmt.Errorf("%w: 3.00 remaining", domain.ErrPaymentRequired))
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, _ = mapError(&domain.TransientError{Op: "get_order", Err: context.DeadlineExceeded})
	assert.Equal(t, http.StatusServiceUnavailable, status)

	status, _ = mapError(domain.Fatal(domain.ErrMissingShift))
	assert.Equal(t, http.StatusInternalServerError, status)
}
