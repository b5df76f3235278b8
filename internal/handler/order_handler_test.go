package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopfront/order-reconciler/internal/domain"
	"github.com/shopfront/order-reconciler/internal/service"
	"go.uber.org/zap"
)

func newOrderEnv(t *testing.T) (*gin.Engine, *memStore, *noopDispatcher) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newMemStore()
	dispatcher := &noopDispatcher{}
	svc := service.NewOrderService(store, dispatcher, noopProducer{}, noopShipper{}, zap.NewNop())
	h := NewOrderHandler(svc, zap.NewNop())

	router := gin.New()
	router.GET("/api/v1/orders/:id", h.GetOrder)
	router.POST("/api/v1/orders/:id/shipping", h.ArrangeShipping)
	router.PUT("/api/v1/inventory/:productID", h.SeedInventory)
	return router, store, dispatcher
}

func TestGetOrder(t *testing.T) {
	router, store, _ := newOrderEnv(t)
	store.orders["ord-1"] = domain.Order{
		OrderID: "ord-1",
		Status:  domain.OrderStatusPaid,
		Total:   3000,
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/orders/ord-1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var order domain.Order
	if err := json.Unmarshal(w.Body.Bytes(), &order); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if order.OrderID != "ord-1" || order.Total != 3000 {
		t.Errorf("unexpected order payload: %+v", order)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	router, _, _ := newOrderEnv(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/orders/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestSeedInventoryEndpoint(t *testing.T) {
	router, store, _ := newOrderEnv(t)

	body := strings.NewReader(`{"stock_quantity": 25}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/v1/inventory/prod-mug", body))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := store.stock["prod-mug"]; got != 25 {
		t.Errorf("stock = %d, want 25", got)
	}

	bad := strings.NewReader(`{"stock_quantity": -1}`)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/v1/inventory/prod-mug", bad))
	if w.Code != http.StatusBadRequest {
		t.Errorf("negative quantity: status = %d, want 400", w.Code)
	}
	if got := store.stock["prod-mug"]; got != 25 {
		t.Errorf("rejected seed must not mutate stock, got %d", got)
	}
}

func TestArrangeShippingEndpoint(t *testing.T) {
	router, store, dispatcher := newOrderEnv(t)
	store.orders["ord-2"] = domain.Order{
		OrderID: "ord-2",
		Status:  domain.OrderStatusPaid,
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord-2/shipping", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["tracking_number"] != "TRK1" {
		t.Errorf("tracking number missing from response: %v", resp)
	}
	if got := store.orders["ord-2"].Status; got != domain.OrderStatusLabelCreated {
		t.Errorf("status = %q, want label_created", got)
	}
	if dispatcher.changed != 1 {
		t.Errorf("label creation should dispatch one status change, got %d", dispatcher.changed)
	}
}
