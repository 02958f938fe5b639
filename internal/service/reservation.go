package service

import (
	"context"
	"fmt"
	"time"

	"snackstore-api/internal/metrics"
	"snackstore-api/internal/model"
	"snackstore-api/internal/repository"
	"snackstore-api/pkg/uid"

	"github.com/rs/zerolog/log"
)

// ProductChangeNotifier receives product-changed events after committed
// mutations. The engine only knows this interface; the websocket transport
// implements it. External collaborators (checkout, admin product edits) go
// through the same hook so subscribers see consistent state.
type ProductChangeNotifier interface {
	NotifyProductChanged(productID int64)
}

// ReservationConfig holds reservation engine settings.
type ReservationConfig struct {
	SessionTTL  time.Duration
	MaxQuantity int
	TxTimeout   time.Duration
}

// DefaultReservationConfig returns the engine defaults: 30 minute sessions,
// 99 units per cart line, 10 second transactions.
func DefaultReservationConfig() ReservationConfig {
	return ReservationConfig{
		SessionTTL:  model.DefaultSessionTTL,
		MaxQuantity: model.MaxItemQuantity,
		TxTimeout:   10 * time.Second,
	}
}

// ReservationService is the sole writer of Product.reserved and cart rows.
// Every operation runs in one serializable transaction; the guarded
// conditional update inside it is what prevents oversell between concurrent
// shoppers — the advisory reads only exist for fast user feedback.
type ReservationService struct {
	store    repository.Store
	notifier ProductChangeNotifier
	cfg      ReservationConfig

	// now is swappable for expiry tests.
	now func() time.Time
}

// NewReservationService creates the reservation engine. notifier may be nil
// (no broadcasts, e.g. in tests or batch tooling).
func NewReservationService(store repository.Store, notifier ProductChangeNotifier, cfg ReservationConfig) *ReservationService {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = model.DefaultSessionTTL
	}
	if cfg.MaxQuantity <= 0 {
		cfg.MaxQuantity = model.MaxItemQuantity
	}
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = 10 * time.Second
	}
	return &ReservationService{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

// SetClock overrides the engine's time source. Tests only.
func (s *ReservationService) SetClock(now func() time.Time) {
	s.now = now
}

// AddToCartInput identifies the caller and the requested reservation.
// UserID is empty for anonymous shoppers; SessionID is the session token
// the client already holds, if any.
type AddToCartInput struct {
	ProductID int64
	Quantity  int
	UserID    string
	SessionID string
}

// AddToCartResult carries the session token (new or reused) and the stock
// observed right after commit. AvailableStock is informational only: under
// concurrency it can already be stale; the broadcast snapshot is the source
// of truth for display.
type AddToCartResult struct {
	SessionID      string `json:"session_id"`
	AvailableStock int    `json:"available_stock"`
}

// AddToCart reserves quantity units of a product in the caller's cart,
// creating a session lazily if the caller has none.
func (s *ReservationService) AddToCart(ctx context.Context, in AddToCartInput) (*AddToCartResult, error) {
	if in.ProductID <= 0 {
		return nil, ErrInvalidProduct
	}
	if in.Quantity < 1 || in.Quantity > s.cfg.MaxQuantity {
		return nil, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidQuantity, s.cfg.MaxQuantity)
	}

	var sessionID string
	err := s.withTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		product, err := tx.GetProduct(ctx, in.ProductID)
		if err != nil {
			return err
		}
		if product == nil {
			return ErrProductNotFound
		}
		if !product.IsActive() {
			return ErrProductUnavailable
		}

		// Advisory fast-fail; the guarded update below is the real check.
		if product.Available() < in.Quantity {
			return &InsufficientStockError{
				ProductID: in.ProductID,
				Available: product.Available(),
				Requested: in.Quantity,
			}
		}

		session, err := s.findOrCreateSession(ctx, tx, in.UserID, in.SessionID)
		if err != nil {
			return err
		}
		sessionID = session.ID

		existing, err := tx.GetCartItem(ctx, session.ID, in.ProductID)
		if err != nil {
			return err
		}

		newQuantity := in.Quantity
		if existing != nil {
			newQuantity = existing.Quantity + in.Quantity
			if newQuantity > s.cfg.MaxQuantity {
				return fmt.Errorf("%w: cart already holds %d, max is %d",
					ErrInvalidQuantity, existing.Quantity, s.cfg.MaxQuantity)
			}
		}

		// Reserve only the requested delta, never the new total.
		rows, err := tx.ConditionalIncrementReserved(ctx, in.ProductID, in.Quantity)
		if err != nil {
			return err
		}
		if rows == 0 {
			return s.insufficientStock(ctx, tx, in.ProductID, in.Quantity)
		}

		return tx.UpsertCartItem(ctx, model.CartItem{
			SessionID: session.ID,
			ProductID: in.ProductID,
			Quantity:  newQuantity,
		})
	})
	if err != nil {
		metrics.RecordReservation("add", err)
		return nil, err
	}
	metrics.RecordReservation("add", nil)

	s.notifyChange(in.ProductID)

	return &AddToCartResult{
		SessionID:      sessionID,
		AvailableStock: s.availableAfterCommit(ctx, in.ProductID),
	}, nil
}

// UpdateCartItem sets a cart line to newQuantity, adjusting the product's
// reservation by the delta only.
func (s *ReservationService) UpdateCartItem(ctx context.Context, sessionID string, productID int64, newQuantity int, userID string) error {
	if productID <= 0 {
		return ErrInvalidProduct
	}
	if newQuantity < 1 || newQuantity > s.cfg.MaxQuantity {
		return fmt.Errorf("%w: must be between 1 and %d", ErrInvalidQuantity, s.cfg.MaxQuantity)
	}

	changed := false
	err := s.withTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		session, err := s.ownedActiveSession(ctx, tx, sessionID, userID)
		if err != nil {
			return err
		}

		item, err := tx.GetCartItem(ctx, session.ID, productID)
		if err != nil {
			return err
		}
		if item == nil {
			return ErrItemNotFound
		}

		delta := newQuantity - item.Quantity
		if delta == 0 {
			return nil
		}

		if delta > 0 {
			product, err := tx.GetProduct(ctx, productID)
			if err != nil {
				return err
			}
			if product == nil {
				return ErrProductNotFound
			}
			// Advisory fast-fail; the guarded update is the real check.
			if product.Available() < delta {
				return &InsufficientStockError{
					ProductID: productID,
					Available: product.Available(),
					Requested: delta,
				}
			}
		}

		rows, err := tx.ConditionalIncrementReserved(ctx, productID, delta)
		if err != nil {
			return err
		}
		if rows == 0 {
			if delta > 0 {
				return s.insufficientStock(ctx, tx, productID, delta)
			}
			return fmt.Errorf("reserved underflow releasing %d units of product %d", -delta, productID)
		}

		item.Quantity = newQuantity
		if err := tx.UpsertCartItem(ctx, *item); err != nil {
			return err
		}
		changed = true
		return nil
	})
	metrics.RecordReservation("update", err)
	if err != nil {
		return err
	}

	if changed {
		s.notifyChange(productID)
	}
	return nil
}

// RemoveCartItem deletes a cart line and releases its reservation.
func (s *ReservationService) RemoveCartItem(ctx context.Context, sessionID string, productID int64, userID string) error {
	if productID <= 0 {
		return ErrInvalidProduct
	}

	err := s.withTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		session, err := s.ownedActiveSession(ctx, tx, sessionID, userID)
		if err != nil {
			return err
		}

		item, err := tx.GetCartItem(ctx, session.ID, productID)
		if err != nil {
			return err
		}
		if item == nil {
			return ErrItemNotFound
		}

		if err := s.releaseReservation(ctx, tx, productID, item.Quantity); err != nil {
			return err
		}
		return tx.DeleteCartItem(ctx, session.ID, productID)
	})
	metrics.RecordReservation("remove", err)
	if err != nil {
		return err
	}

	s.notifyChange(productID)
	return nil
}

// ClearCart releases every reservation in a session and marks it expired.
// The session row is retained for audit. Idempotent: a missing or already
// cleared session is a no-op success.
func (s *ReservationService) ClearCart(ctx context.Context, sessionID string, userID string) error {
	var released []int64
	err := s.withTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		session, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if session == nil || session.Status != model.SessionStatusActive {
			return nil
		}
		if userID != "" && session.UserID != userID {
			return ErrSessionNotFound
		}

		products, err := s.releaseSessionItems(ctx, tx, session.ID)
		if err != nil {
			return err
		}
		released = products
		return tx.UpdateSessionStatus(ctx, session.ID, model.SessionStatusExpired)
	})
	metrics.RecordReservation("clear", err)
	if err != nil {
		return err
	}

	for _, productID := range released {
		s.notifyChange(productID)
	}
	return nil
}

// CartView is a read-only snapshot of a session and its items.
type CartView struct {
	Session *model.CartSession `json:"session"`
	Items   []model.CartItem   `json:"items"`
}

// GetCart returns the caller's cart contents without mutating anything.
func (s *ReservationService) GetCart(ctx context.Context, sessionID string, userID string) (*CartView, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if userID != "" && session.UserID != userID {
		return nil, ErrSessionNotFound
	}
	if session.Status != model.SessionStatusActive || session.IsExpired(s.now()) {
		return nil, ErrSessionExpired
	}

	items, err := s.store.ListCartItems(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &CartView{Session: session, Items: items}, nil
}

// CleanupExpiredSessions reclaims abandoned sessions: ACTIVE past their
// expiry, or flagged CONVERTED but never finalized. Each session is handled
// in its own transaction so one bad session cannot block the sweep. Returns
// the number of sessions reclaimed.
func (s *ReservationService) CleanupExpiredSessions(ctx context.Context, batchLimit int) (int, error) {
	if batchLimit <= 0 {
		batchLimit = 100
	}

	var candidates []model.CartSession
	err := s.withTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		candidates, err = tx.ListReclaimableSessions(ctx, s.now(), batchLimit)
		return err
	})
	if err != nil {
		return 0, err
	}

	cleaned := 0
	for _, session := range candidates {
		if ctx.Err() != nil {
			return cleaned, ctx.Err()
		}
		released, err := s.reclaimSession(ctx, session.ID)
		if err != nil {
			// Isolated failure: log and keep sweeping.
			log.Error().Err(err).Str("session_id", session.ID).Msg("failed to reclaim session")
			continue
		}
		cleaned++
		for _, productID := range released {
			s.notifyChange(productID)
		}
	}
	return cleaned, nil
}

// reclaimSession releases one session's reservations and marks it expired,
// in its own transaction. Returns the products whose stock changed.
func (s *ReservationService) reclaimSession(ctx context.Context, sessionID string) ([]int64, error) {
	var released []int64
	err := s.withTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		session, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if session == nil || session.Status == model.SessionStatusExpired {
			return nil // already reclaimed by a concurrent sweep
		}

		released, err = s.releaseSessionItems(ctx, tx, session.ID)
		if err != nil {
			return err
		}
		return tx.UpdateSessionStatus(ctx, session.ID, model.SessionStatusExpired)
	})
	return released, err
}

// releaseSessionItems releases the reservation of every item in a session
// and deletes the items. Returns the affected product ids.
func (s *ReservationService) releaseSessionItems(ctx context.Context, tx repository.Tx, sessionID string) ([]int64, error) {
	items, err := tx.ListSessionItems(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var products []int64
	for _, item := range items {
		if err := s.releaseReservation(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return nil, err
		}
		if err := tx.DeleteCartItem(ctx, sessionID, item.ProductID); err != nil {
			return nil, err
		}
		products = append(products, item.ProductID)
	}
	return products, nil
}

// releaseReservation decrements reserved by quantity. If the guard refuses
// (reserved already lower than the item claims, e.g. after a manual
// inventory adjustment), it clamps the release to whatever is still
// reserved rather than failing the whole transaction.
func (s *ReservationService) releaseReservation(ctx context.Context, tx repository.Tx, productID int64, quantity int) error {
	rows, err := tx.ConditionalIncrementReserved(ctx, productID, -quantity)
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	product, err := tx.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if product == nil || product.Reserved <= 0 {
		return nil // product deleted or nothing left to release
	}

	log.Warn().Int64("product_id", productID).Int("quantity", quantity).
		Int("reserved", product.Reserved).Msg("clamping reservation release")
	_, err = tx.ConditionalIncrementReserved(ctx, productID, -product.Reserved)
	return err
}

// ownedActiveSession loads a session and verifies it is usable by the
// caller, distinguishing "never existed" from "expired".
func (s *ReservationService) ownedActiveSession(ctx context.Context, tx repository.Tx, sessionID string, userID string) (*model.CartSession, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	session, err := tx.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if userID != "" && session.UserID != userID {
		return nil, ErrSessionNotFound
	}
	if session.Status != model.SessionStatusActive || session.IsExpired(s.now()) {
		return nil, ErrSessionExpired
	}
	return session, nil
}

// findOrCreateSession returns the caller's live session, or creates one with
// a fresh TTL. Identified shoppers are scoped by user id; anonymous shoppers
// by the session token they present.
func (s *ReservationService) findOrCreateSession(ctx context.Context, tx repository.Tx, userID string, sessionID string) (*model.CartSession, error) {
	now := s.now()

	if userID != "" {
		session, err := tx.FindActiveSessionByUser(ctx, userID, now)
		if err != nil {
			return nil, err
		}
		if session != nil {
			return session, nil
		}
	} else if sessionID != "" {
		session, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if session != nil && session.UserID == "" &&
			session.Status == model.SessionStatusActive && !session.IsExpired(now) {
			return session, nil
		}
	}

	session := model.CartSession{
		ID:        uid.NewSessionToken(),
		UserID:    userID,
		Status:    model.SessionStatusActive,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
	}
	if err := tx.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return &session, nil
}

// insufficientStock builds the structured error from a fresh in-tx read
// after a guard failure.
func (s *ReservationService) insufficientStock(ctx context.Context, tx repository.Tx, productID int64, requested int) error {
	available := 0
	if product, err := tx.GetProduct(ctx, productID); err == nil && product != nil {
		available = product.Available()
	}
	metrics.InsufficientStock.Inc()
	return &InsufficientStockError{
		ProductID: productID,
		Available: available,
		Requested: requested,
	}
}

// availableAfterCommit re-reads available stock for the caller's response.
// Informational only; it can be stale the instant it is read.
func (s *ReservationService) availableAfterCommit(ctx context.Context, productID int64) int {
	snap, err := s.store.GetStockSnapshot(ctx, productID)
	if err != nil || snap == nil {
		return 0
	}
	return snap.Available
}

func (s *ReservationService) notifyChange(productID int64) {
	if s.notifier != nil {
		s.notifier.NotifyProductChanged(productID)
	}
}

// withTx runs fn inside one serializable transaction bounded by the
// configured timeout, rolling back on any error. Lock waits, deadlocks and
// deadline hits surface as ErrTxConflict so callers know to retry.
func (s *ReservationService) withTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.TxTimeout)
	defer cancel()

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return wrapConflict("begin tx", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, tx); err != nil {
		return wrapConflict("exec tx", err)
	}
	if err := tx.Commit(); err != nil {
		return wrapConflict("commit tx", err)
	}
	return nil
}

func wrapConflict(op string, err error) error {
	if err == nil {
		return nil
	}
	if repository.IsConflict(err) {
		return fmt.Errorf("%w: %s: %v", ErrTxConflict, op, err)
	}
	return err
}
