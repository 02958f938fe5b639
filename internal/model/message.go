package model

import "time"

// Stock channel message types. Clients send subscribe/unsubscribe/get-stock;
// the server replies with connected, stock-update and error frames.
const (
	MessageTypeSubscribe   = "subscribe"
	MessageTypeUnsubscribe = "unsubscribe"
	MessageTypeGetStock    = "get-stock"
	MessageTypeConnected   = "connected"
	MessageTypeStockUpdate = "stock-update"
	MessageTypeError       = "error"
)

// ClientMessage is a frame received from a stock channel client.
type ClientMessage struct {
	Type      string `json:"type"`
	ProductID int64  `json:"productId"`
}

// ServerMessage is a frame pushed to a stock channel client. Fields are
// populated per message type; zero-valued fields are omitted on the wire.
type ServerMessage struct {
	Type      string         `json:"type"`
	ProductID int64          `json:"productId,omitempty"`
	Stock     *StockSnapshot `json:"stock,omitempty"`
	Message   string         `json:"message,omitempty"`
	Timestamp time.Time      `json:"timestamp,omitempty"`
}
