package handler

import (
	"net/http"

	"snackstore-api/internal/cache"
	"snackstore-api/pkg/apierror"
	"snackstore-api/pkg/response"

	"github.com/rs/zerolog/log"
)

// ProductChangeNotifier matches the engine's notification hook; the
// internal notify endpoint exposes it to external collaborators (checkout,
// admin product edits) so their mutations still reach subscribers.
type ProductChangeNotifier interface {
	NotifyProductChanged(productID int64)
}

// StockHandler serves stock snapshot reads and the collaborator-facing
// product-changed hook.
type StockHandler struct {
	snapshots *cache.StockCache
	notifier  ProductChangeNotifier
}

// NewStockHandler creates a new stock handler.
func NewStockHandler(snapshots *cache.StockCache, notifier ProductChangeNotifier) *StockHandler {
	return &StockHandler{snapshots: snapshots, notifier: notifier}
}

// GetStock handles GET /api/v1/products/{productID}/stock
func (h *StockHandler) GetStock(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	snap, err := h.snapshots.Get(r.Context(), productID)
	if err != nil {
		log.Error().Err(err).Int64("product_id", productID).Msg("stock read failed")
		response.Error(w, apierror.InternalError(""))
		return
	}
	if snap == nil {
		response.Error(w, apierror.NotFound("product not found"))
		return
	}

	response.OK(w, snap)
}

// NotifyProductChanged handles POST /api/v1/internal/products/{productID}/notify.
// External collaborators call it after mutating a product outside the
// reservation engine (price edit, manual inventory adjust, deletion).
func (h *StockHandler) NotifyProductChanged(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	h.notifier.NotifyProductChanged(productID)
	response.JSON(w, http.StatusAccepted, map[string]any{
		"product_id": productID,
		"status":     "broadcast queued",
	})
}
