package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"snackstore-api/internal/middleware"
	"snackstore-api/internal/model"
	"snackstore-api/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

// fakeEngine scripts the reservation engine's responses and records the
// inputs each endpoint forwarded.
type fakeEngine struct {
	addResult *service.AddToCartResult
	addErr    error
	updateErr error
	removeErr error
	clearErr  error
	cartView  *service.CartView
	cartErr   error

	lastAdd       service.AddToCartInput
	lastSessionID string
	lastProductID int64
	lastQuantity  int
	lastUserID    string
}

func (f *fakeEngine) AddToCart(ctx context.Context, in service.AddToCartInput) (*service.AddToCartResult, error) {
	f.lastAdd = in
	return f.addResult, f.addErr
}

func (f *fakeEngine) UpdateCartItem(ctx context.Context, sessionID string, productID int64, newQuantity int, userID string) error {
	f.lastSessionID, f.lastProductID, f.lastQuantity, f.lastUserID = sessionID, productID, newQuantity, userID
	return f.updateErr
}

func (f *fakeEngine) RemoveCartItem(ctx context.Context, sessionID string, productID int64, userID string) error {
	f.lastSessionID, f.lastProductID, f.lastUserID = sessionID, productID, userID
	return f.removeErr
}

func (f *fakeEngine) ClearCart(ctx context.Context, sessionID string, userID string) error {
	f.lastSessionID, f.lastUserID = sessionID, userID
	return f.clearErr
}

func (f *fakeEngine) GetCart(ctx context.Context, sessionID string, userID string) (*service.CartView, error) {
	f.lastSessionID, f.lastUserID = sessionID, userID
	return f.cartView, f.cartErr
}

func cartRouter(engine *fakeEngine) http.Handler {
	h := NewCartHandler(engine)
	r := chi.NewRouter()
	r.Use(middleware.Identity)
	r.Post("/cart/items", h.AddToCart)
	r.Put("/cart/items/{productID}", h.UpdateCartItem)
	r.Delete("/cart/items/{productID}", h.RemoveCartItem)
	r.Delete("/cart", h.ClearCart)
	r.Get("/cart", h.GetCart)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestAddToCart_ReturnsSessionHeader(t *testing.T) {
	engine := &fakeEngine{
		addResult: &service.AddToCartResult{SessionID: "sess-123", AvailableStock: 7},
	}
	router := cartRouter(engine)

	rec := doJSON(t, router, http.MethodPost, "/cart/items",
		map[string]any{"productId": 5, "quantity": 3},
		map[string]string{"X-User-ID": "user-a"})

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "sess-123", rec.Header().Get(SessionHeader))

	require.EqualValues(t, 5, engine.lastAdd.ProductID)
	require.Equal(t, 3, engine.lastAdd.Quantity)
	require.Equal(t, "user-a", engine.lastAdd.UserID)

	body := decodeBody(t, rec)
	require.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	require.Equal(t, "sess-123", data["session_id"])
	require.EqualValues(t, 7, data["available_stock"])
}

func TestAddToCart_ForwardsSessionToken(t *testing.T) {
	engine := &fakeEngine{addResult: &service.AddToCartResult{SessionID: "sess-123"}}
	router := cartRouter(engine)

	doJSON(t, router, http.MethodPost, "/cart/items",
		map[string]any{"productId": 1, "quantity": 1},
		map[string]string{SessionHeader: "sess-123"})

	require.Equal(t, "sess-123", engine.lastAdd.SessionID)
}

func TestAddToCart_InvalidBody(t *testing.T) {
	router := cartRouter(&fakeEngine{})

	req := httptest.NewRequest(http.MethodPost, "/cart/items", bytes.NewBufferString("{broken"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, false, body["success"])
	require.Equal(t, "BAD_REQUEST", body["error"].(map[string]any)["code"])
}

func TestAddToCart_InsufficientStockPayload(t *testing.T) {
	engine := &fakeEngine{
		addErr: &service.InsufficientStockError{ProductID: 5, Available: 2, Requested: 9},
	}
	router := cartRouter(engine)

	rec := doJSON(t, router, http.MethodPost, "/cart/items",
		map[string]any{"productId": 5, "quantity": 9}, nil)

	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	errBody := body["error"].(map[string]any)
	require.Equal(t, "INSUFFICIENT_STOCK", errBody["code"])
	require.Equal(t, "only 2 left in stock", errBody["message"])

	details := errBody["details"].(map[string]any)
	require.EqualValues(t, 2, details["available"])
	require.EqualValues(t, 9, details["requested"])
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"product missing", service.ErrProductNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"inactive product", service.ErrProductUnavailable, http.StatusConflict, "PRODUCT_UNAVAILABLE"},
		{"session expired", service.ErrSessionExpired, http.StatusGone, "SESSION_EXPIRED"},
		{"session missing", service.ErrSessionNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"tx conflict", service.ErrTxConflict, http.StatusConflict, "TRANSACTION_CONFLICT"},
		{"bad quantity", service.ErrInvalidQuantity, http.StatusBadRequest, "BAD_REQUEST"},
		{"unexpected", context.DeadlineExceeded, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{addErr: tt.err}
			router := cartRouter(engine)

			rec := doJSON(t, router, http.MethodPost, "/cart/items",
				map[string]any{"productId": 1, "quantity": 1}, nil)

			require.Equal(t, tt.wantStatus, rec.Code)
			body := decodeBody(t, rec)
			require.Equal(t, tt.wantCode, body["error"].(map[string]any)["code"])
		})
	}
}

func TestUpdateCartItem(t *testing.T) {
	engine := &fakeEngine{}
	router := cartRouter(engine)

	rec := doJSON(t, router, http.MethodPut, "/cart/items/42",
		map[string]any{"quantity": 6},
		map[string]string{SessionHeader: "sess-1", "X-User-ID": "user-a"})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "sess-1", engine.lastSessionID)
	require.EqualValues(t, 42, engine.lastProductID)
	require.Equal(t, 6, engine.lastQuantity)
	require.Equal(t, "user-a", engine.lastUserID)
}

func TestUpdateCartItem_BadProductID(t *testing.T) {
	router := cartRouter(&fakeEngine{})

	rec := doJSON(t, router, http.MethodPut, "/cart/items/zero",
		map[string]any{"quantity": 1}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPut, "/cart/items/-3",
		map[string]any{"quantity": 1}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveCartItem(t *testing.T) {
	engine := &fakeEngine{}
	router := cartRouter(engine)

	rec := doJSON(t, router, http.MethodDelete, "/cart/items/9", nil,
		map[string]string{SessionHeader: "sess-1"})

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.EqualValues(t, 9, engine.lastProductID)
}

func TestClearCart(t *testing.T) {
	engine := &fakeEngine{}
	router := cartRouter(engine)

	rec := doJSON(t, router, http.MethodDelete, "/cart", nil,
		map[string]string{SessionHeader: "sess-1"})

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "sess-1", engine.lastSessionID)
}

func TestGetCart(t *testing.T) {
	engine := &fakeEngine{
		cartView: &service.CartView{
			Session: &model.CartSession{ID: "sess-1", Status: model.SessionStatusActive},
			Items: []model.CartItem{
				{SessionID: "sess-1", ProductID: 1, Quantity: 2},
			},
		},
	}
	router := cartRouter(engine)

	rec := doJSON(t, router, http.MethodGet, "/cart", nil,
		map[string]string{SessionHeader: "sess-1"})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	data := body["data"].(map[string]any)
	require.Equal(t, "sess-1", data["session"].(map[string]any)["id"])
	require.Len(t, data["items"].([]any), 1)
}
