package model

import "time"

// SessionStatus is the lifecycle state of a cart session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusExpired   SessionStatus = "expired"
	SessionStatusConverted SessionStatus = "converted"
)

// MaxItemQuantity caps how many units of one product a single cart may hold.
const MaxItemQuantity = 99

// DefaultSessionTTL is how long a cart session holds its reservations.
// The TTL is fixed at creation; it does not slide on later mutations.
const DefaultSessionTTL = 30 * time.Minute

// CartSession is one shopper's active cart. UserID is empty for anonymous
// shoppers, who are identified only by the session token they hold.
type CartSession struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id,omitempty"`
	Status    SessionStatus `json:"status"`
	ExpiresAt time.Time     `json:"expires_at"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// IsExpired reports whether the session's TTL has passed at the given instant.
func (s *CartSession) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// CartItem is one line in a session, unique per (session, product).
type CartItem struct {
	SessionID string    `json:"session_id"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
