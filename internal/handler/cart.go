package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"snackstore-api/internal/middleware"
	"snackstore-api/internal/service"
	"snackstore-api/pkg/apierror"
	"snackstore-api/pkg/response"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// SessionHeader carries the cart session token; the server echoes it back
// so anonymous clients can persist it.
const SessionHeader = "X-Cart-Session"

// ReservationEngine is the engine surface the cart endpoints need.
type ReservationEngine interface {
	AddToCart(ctx context.Context, in service.AddToCartInput) (*service.AddToCartResult, error)
	UpdateCartItem(ctx context.Context, sessionID string, productID int64, newQuantity int, userID string) error
	RemoveCartItem(ctx context.Context, sessionID string, productID int64, userID string) error
	ClearCart(ctx context.Context, sessionID string, userID string) error
	GetCart(ctx context.Context, sessionID string, userID string) (*service.CartView, error)
}

// CartHandler handles cart mutation and view requests.
type CartHandler struct {
	engine ReservationEngine
}

// NewCartHandler creates a new cart handler.
func NewCartHandler(engine ReservationEngine) *CartHandler {
	return &CartHandler{engine: engine}
}

type addToCartRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

// AddToCart handles POST /api/v1/cart/items
func (h *CartHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req addToCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON body"))
		return
	}

	result, err := h.engine.AddToCart(r.Context(), service.AddToCartInput{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		UserID:    middleware.GetUserID(r.Context()),
		SessionID: middleware.GetSessionID(r.Context()),
	})
	if err != nil {
		response.Error(w, mapServiceError(err))
		return
	}

	w.Header().Set(SessionHeader, result.SessionID)
	response.Created(w, result)
}

// UpdateCartItem handles PUT /api/v1/cart/items/{productID}
func (h *CartHandler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON body"))
		return
	}

	err := h.engine.UpdateCartItem(r.Context(),
		middleware.GetSessionID(r.Context()), productID, req.Quantity, middleware.GetUserID(r.Context()))
	if err != nil {
		response.Error(w, mapServiceError(err))
		return
	}

	response.OK(w, map[string]any{
		"product_id": productID,
		"quantity":   req.Quantity,
	})
}

// RemoveCartItem handles DELETE /api/v1/cart/items/{productID}
func (h *CartHandler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	err := h.engine.RemoveCartItem(r.Context(),
		middleware.GetSessionID(r.Context()), productID, middleware.GetUserID(r.Context()))
	if err != nil {
		response.Error(w, mapServiceError(err))
		return
	}

	response.NoContent(w)
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	err := h.engine.ClearCart(r.Context(),
		middleware.GetSessionID(r.Context()), middleware.GetUserID(r.Context()))
	if err != nil {
		response.Error(w, mapServiceError(err))
		return
	}

	response.NoContent(w)
}

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.engine.GetCart(r.Context(),
		middleware.GetSessionID(r.Context()), middleware.GetUserID(r.Context()))
	if err != nil {
		response.Error(w, mapServiceError(err))
		return
	}

	response.OK(w, view)
}

func productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || productID <= 0 {
		response.Error(w, apierror.BadRequest("invalid product id"))
		return 0, false
	}
	return productID, true
}

// mapServiceError translates engine errors onto API error codes.
func mapServiceError(err error) error {
	var insufficientErr *service.InsufficientStockError
	switch {
	case errors.As(err, &insufficientErr):
		return apierror.InsufficientStock(
			fmt.Sprintf("only %d left in stock", insufficientErr.Available),
			insufficientErr.Available, insufficientErr.Requested)
	case errors.Is(err, service.ErrProductNotFound):
		return apierror.NotFound("product not found")
	case errors.Is(err, service.ErrItemNotFound):
		return apierror.NotFound("item is not in the cart")
	case errors.Is(err, service.ErrSessionNotFound):
		return apierror.NotFound("cart session not found")
	case errors.Is(err, service.ErrSessionExpired):
		return apierror.SessionExpired("")
	case errors.Is(err, service.ErrProductUnavailable):
		return apierror.Unavailable("product is not available for purchase")
	case errors.Is(err, service.ErrInvalidQuantity), errors.Is(err, service.ErrInvalidProduct):
		return apierror.BadRequest(err.Error())
	case errors.Is(err, service.ErrTxConflict):
		return apierror.Conflict("")
	default:
		log.Error().Err(err).Msg("cart operation failed")
		return apierror.InternalError("")
	}
}
