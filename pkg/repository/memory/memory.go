// Package memory provides in-memory implementations of the storage interfaces
// the services consume. They mirror the production repositories' contracts,
// unique keys return ErrConflict and conditional writes report whether they
// matched, so service tests exercise the same races the real stores arbitrate.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/campusmart/pkg/models"
)

type PaymentStore struct {
	mu       sync.Mutex
	payments map[string]models.Payment
}

func NewPaymentStore() *PaymentStore {
	return &PaymentStore{payments: make(map[string]models.Payment)}
}

func (s *PaymentStore) Create(ctx context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[p.Reference]; ok {
		return fmt.Errorf("payment %s: %w", p.Reference, models.ErrConflict)
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	s.payments[p.Reference] = *p
	return nil
}

func (s *PaymentStore) FindByReference(ctx context.Context, reference string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[reference]
	if !ok {
		return nil, fmt.Errorf("payment %s: %w", reference, models.ErrNotFound)
	}
	return &p, nil
}

func (s *PaymentStore) SetGatewayDetails(ctx context.Context, reference, userID string, option models.DeliveryOption, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[reference]
	if !ok {
		return fmt.Errorf("payment %s: %w", reference, models.ErrNotFound)
	}
	if userID != "" {
		p.UserID = userID
	}
	if option != "" {
		p.DeliveryOption = option
	}
	if amount > 0 {
		p.Amount = amount
	}
	p.UpdatedAt = time.Now()
	s.payments[reference] = p
	return nil
}

func (s *PaymentStore) SetStatusIfPending(ctx context.Context, reference string, status models.PaymentStatus, rawPayload string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[reference]
	if !ok || p.Status != models.PaymentPending {
		return false, nil
	}
	p.Status = status
	p.RawPayload = rawPayload
	p.UpdatedAt = time.Now()
	s.payments[reference] = p
	return true, nil
}

type OrderStore struct {
	mu           sync.Mutex
	orders       map[string]models.Order
	byReference  map[string]string
	vendorOrders map[string]models.VendorOrder
	vendorKeys   map[string]string // orderID|storeID -> vendor order id
}

func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders:       make(map[string]models.Order),
		byReference:  make(map[string]string),
		vendorOrders: make(map[string]models.VendorOrder),
		vendorKeys:   make(map[string]string),
	}
}

func (s *OrderStore) Create(ctx context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byReference[o.PaymentReference]; ok {
		return fmt.Errorf("order for %s: %w", o.PaymentReference, models.ErrConflict)
	}
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	s.orders[o.ID] = *o
	s.byReference[o.PaymentReference] = o.ID
	return nil
}

func (s *OrderStore) FindByID(ctx context.Context, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	return &o, nil
}

func (s *OrderStore) FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byReference[reference]
	if !ok {
		return nil, fmt.Errorf("order for %s: %w", reference, models.ErrNotFound)
	}
	o := s.orders[id]
	return &o, nil
}

func (s *OrderStore) CreateVendorOrder(ctx context.Context, vo *models.VendorOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := vo.OrderID + "|" + vo.StoreID
	if _, ok := s.vendorKeys[key]; ok {
		return fmt.Errorf("vendor order for %s: %w", key, models.ErrConflict)
	}
	vo.CreatedAt = time.Now()
	vo.UpdatedAt = vo.CreatedAt
	s.vendorOrders[vo.ID] = *vo
	s.vendorKeys[key] = vo.ID
	return nil
}

func (s *OrderStore) FindVendorOrder(ctx context.Context, id string) (*models.VendorOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vo, ok := s.vendorOrders[id]
	if !ok {
		return nil, fmt.Errorf("vendor order %s: %w", id, models.ErrNotFound)
	}
	return &vo, nil
}

func (s *OrderStore) ListVendorOrders(ctx context.Context, orderID string) ([]models.VendorOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.VendorOrder
	for _, vo := range s.vendorOrders {
		if vo.OrderID == orderID {
			out = append(out, vo)
		}
	}
	return out, nil
}

func (s *OrderStore) SetVendorOrderStatusIf(ctx context.Context, id string, from, to models.VendorOrderStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vo, ok := s.vendorOrders[id]
	if !ok || vo.Status != from {
		return false, nil
	}
	vo.Status = to
	vo.UpdatedAt = time.Now()
	s.vendorOrders[id] = vo
	return true, nil
}

func (s *OrderStore) SetVendorOrderStatusIfNotTerminal(ctx context.Context, id string, to models.VendorOrderStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vo, ok := s.vendorOrders[id]
	if !ok || vo.Status.Terminal() {
		return false, nil
	}
	vo.Status = to
	vo.UpdatedAt = time.Now()
	s.vendorOrders[id] = vo
	return true, nil
}

type CartStore struct {
	mu    sync.Mutex
	lines []models.CartLine
}

func NewCartStore() *CartStore {
	return &CartStore{}
}

func (s *CartStore) AddLine(ctx context.Context, line *models.CartLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	line.CreatedAt = time.Now()
	s.lines = append(s.lines, *line)
	return nil
}

func (s *CartStore) ListByUser(ctx context.Context, userID string) ([]models.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CartLine
	for _, l := range s.lines {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *CartStore) DeleteByIDs(ctx context.Context, userID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doomed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		doomed[id] = struct{}{}
	}
	kept := s.lines[:0]
	for _, l := range s.lines {
		if _, ok := doomed[l.ID]; ok && l.UserID == userID {
			continue
		}
		kept = append(kept, l)
	}
	s.lines = kept
	return nil
}

type HandoverStore struct {
	mu            sync.Mutex
	handovers     map[string]models.PostOfficeHandover
	byQR          map[string]string
	byVendorOrder map[string]string
}

func NewHandoverStore() *HandoverStore {
	return &HandoverStore{
		handovers:     make(map[string]models.PostOfficeHandover),
		byQR:          make(map[string]string),
		byVendorOrder: make(map[string]string),
	}
}

func (s *HandoverStore) Create(ctx context.Context, h *models.PostOfficeHandover) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byQR[h.QRCode]; ok {
		return fmt.Errorf("handover qr %s: %w", h.QRCode, models.ErrConflict)
	}
	if _, ok := s.byVendorOrder[h.VendorOrderID]; ok {
		return fmt.Errorf("handover for vendor order %s: %w", h.VendorOrderID, models.ErrConflict)
	}
	s.handovers[h.ID] = *h
	s.byQR[h.QRCode] = h.ID
	s.byVendorOrder[h.VendorOrderID] = h.ID
	return nil
}

func (s *HandoverStore) FindByID(ctx context.Context, id string) (*models.PostOfficeHandover, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handovers[id]
	if !ok {
		return nil, fmt.Errorf("handover %s: %w", id, models.ErrNotFound)
	}
	return &h, nil
}

func (s *HandoverStore) FindByQR(ctx context.Context, token string) (*models.PostOfficeHandover, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byQR[token]
	if !ok {
		return nil, fmt.Errorf("handover qr: %w", models.ErrNotFound)
	}
	h := s.handovers[id]
	return &h, nil
}

func (s *HandoverStore) FindByVendorOrder(ctx context.Context, vendorOrderID string) (*models.PostOfficeHandover, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byVendorOrder[vendorOrderID]
	if !ok {
		return nil, fmt.Errorf("handover for vendor order %s: %w", vendorOrderID, models.ErrNotFound)
	}
	h := s.handovers[id]
	return &h, nil
}

func (s *HandoverStore) MarkCollected(ctx context.Context, id string, pickupTime time.Time, feedback models.HandoverFeedback) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handovers[id]
	if !ok || h.Status != models.HandoverHandedOver {
		return false, nil
	}
	h.Status = models.HandoverCollected
	h.PickupTime = &pickupTime
	if feedback != "" {
		h.Feedback = feedback
	}
	s.handovers[id] = h
	return true, nil
}

// StockLedger tracks per-product stock with the same journal contract as the
// SQL ledger: one movement per (scope, product, direction), replays are
// no-ops, decrement below zero is refused.
type StockLedger struct {
	mu       sync.Mutex
	stock    map[string]int
	journal  map[string]int
	movement int
}

func NewStockLedger() *StockLedger {
	return &StockLedger{
		stock:   make(map[string]int),
		journal: make(map[string]int),
	}
}

func (s *StockLedger) SetStock(productID string, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock[productID] = qty
}

func (s *StockLedger) Stock(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stock[productID]
}

// Movements reports how many journal entries were written; tests use it to
// assert exactly-once application.
func (s *StockLedger) Movements() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.movement
}

func (s *StockLedger) DecrementStock(ctx context.Context, orderID, productID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("quantity must be positive: %w", models.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := orderID + "|" + productID + "|out"
	if _, ok := s.journal[key]; ok {
		return nil
	}
	current, ok := s.stock[productID]
	if !ok {
		return fmt.Errorf("product %s: %w", productID, models.ErrNotFound)
	}
	if current < qty {
		return fmt.Errorf("product %s: %w", productID, models.ErrInsufficientStock)
	}
	s.stock[productID] = current - qty
	s.journal[key] = qty
	s.movement++
	return nil
}

func (s *StockLedger) RestoreStock(ctx context.Context, vendorOrderID, productID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("quantity must be positive: %w", models.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := vendorOrderID + "|" + productID + "|in"
	if _, ok := s.journal[key]; ok {
		return nil
	}
	if _, ok := s.stock[productID]; !ok {
		return fmt.Errorf("product %s: %w", productID, models.ErrNotFound)
	}
	s.stock[productID] += qty
	s.journal[key] = qty
	s.movement++
	return nil
}

// ReputationStore counts successful deliveries per store.
type ReputationStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewReputationStore() *ReputationStore {
	return &ReputationStore{counts: make(map[string]int64)}
}

func (s *ReputationStore) IncrementSuccessfulDeliveries(ctx context.Context, storeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[storeID]++
	return nil
}

func (s *ReputationStore) Deliveries(storeID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[storeID]
}
