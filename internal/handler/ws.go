package handler

import (
	"net/http"

	"snackstore-api/internal/notifier"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Browser clients connect from the storefront origin; CORS policy
		// is handled at the edge.
		return true
	},
}

// StockChannelHandler upgrades connections onto the stock notification hub.
type StockChannelHandler struct {
	hub *notifier.Hub
}

// NewStockChannelHandler creates a new websocket handler.
func NewStockChannelHandler(hub *notifier.Hub) *StockChannelHandler {
	return &StockChannelHandler{hub: hub}
}

// Serve handles GET /ws/stock
func (h *StockChannelHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := notifier.NewClient(h.hub, conn)
	h.hub.Register(client)
	client.Start()
}
