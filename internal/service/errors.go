package service

import (
	"errors"
	"fmt"
)

// Reservation engine error taxonomy. Handlers map these onto API error
// codes; everything else coming out of the engine is an internal store
// failure.
var (
	ErrProductNotFound    = errors.New("product not found")
	ErrProductUnavailable = errors.New("product is not available for purchase")

	// ErrSessionNotFound means the session never existed (or belongs to
	// someone else); ErrSessionExpired means it existed but its TTL passed.
	// Clients use the distinction to resync silently instead of alarming
	// the user.
	ErrSessionNotFound = errors.New("cart session not found")
	ErrSessionExpired  = errors.New("cart session has expired")

	ErrItemNotFound    = errors.New("cart item not found")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrInvalidProduct  = errors.New("invalid product id")

	// ErrTxConflict is retryable: the transaction timed out waiting for a
	// lock or lost a serialization race.
	ErrTxConflict = errors.New("transaction conflict")
)

// InsufficientStockError reports a reservation that exceeded available
// stock. Available and Requested feed the client-facing "only N left"
// message.
type InsufficientStockError struct {
	ProductID int64
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// IsInsufficientStock reports whether err is an InsufficientStockError.
func IsInsufficientStock(err error) bool {
	var insufficientErr *InsufficientStockError
	return errors.As(err, &insufficientErr)
}
