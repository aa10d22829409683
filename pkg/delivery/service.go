package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/campusmart/pkg/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OrderReader interface {
	FindByID(ctx context.Context, id string) (*models.Order, error)
}

type VendorOrderStore interface {
	FindVendorOrder(ctx context.Context, id string) (*models.VendorOrder, error)
	SetVendorOrderStatusIf(ctx context.Context, id string, from, to models.VendorOrderStatus) (bool, error)
	SetVendorOrderStatusIfNotTerminal(ctx context.Context, id string, to models.VendorOrderStatus) (bool, error)
}

type HandoverStore interface {
	Create(ctx context.Context, h *models.PostOfficeHandover) error
	FindByID(ctx context.Context, id string) (*models.PostOfficeHandover, error)
	FindByQR(ctx context.Context, token string) (*models.PostOfficeHandover, error)
	FindByVendorOrder(ctx context.Context, vendorOrderID string) (*models.PostOfficeHandover, error)
	MarkCollected(ctx context.Context, id string, pickupTime time.Time, feedback models.HandoverFeedback) (bool, error)
}

// RestoreLedger returns stock for cancelled vendor orders, exactly once per
// (vendor order, product) regardless of retries.
type RestoreLedger interface {
	RestoreStock(ctx context.Context, vendorOrderID, productID string, qty int) error
}

type ReputationStore interface {
	IncrementSuccessfulDeliveries(ctx context.Context, storeID string) error
}

// QRCache is the optional fast path for pickup scans; the handover store is
// always the fallback.
type QRCache interface {
	CacheQRToken(ctx context.Context, token, handoverID string) error
	GetHandoverIDByQR(ctx context.Context, token string) (string, error)
}

type Notifier interface {
	HandoverCreated(h *models.PostOfficeHandover)
	HandoverCollected(h *models.PostOfficeHandover)
}

// Service drives vendor-order delivery state and the post-office handover
// sub-machine. All transitions are storage-level compare-and-sets so
// concurrent duplicate requests resolve to one winner and conflicts for the
// rest.
type Service struct {
	orders     OrderReader
	vendors    VendorOrderStore
	handovers  HandoverStore
	ledger     RestoreLedger
	reputation ReputationStore
	qrCache    QRCache
	notifier   Notifier
	logger     *zap.Logger
}

func NewService(orders OrderReader, vendors VendorOrderStore, handovers HandoverStore, ledger RestoreLedger, reputation ReputationStore, qrCache QRCache, notifier Notifier, logger *zap.Logger) *Service {
	return &Service{
		orders:     orders,
		vendors:    vendors,
		handovers:  handovers,
		ledger:     ledger,
		reputation: reputation,
		qrCache:    qrCache,
		notifier:   notifier,
		logger:     logger,
	}
}

// Transition moves a vendor order along the forward chain (confirmed,
// out_for_delivery, and so on). Cancellation and refund go through Cancel.
func (s *Service) Transition(ctx context.Context, vendorOrderID string, to models.VendorOrderStatus) (*models.VendorOrder, error) {
	if to == models.VendorOrderCancelled || to == models.VendorOrderRefunded {
		return s.Cancel(ctx, vendorOrderID, to)
	}

	vo, err := s.vendors.FindVendorOrder(ctx, vendorOrderID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(vo.Status, to) {
		return nil, fmt.Errorf("vendor order %s cannot move %s -> %s: %w",
			vendorOrderID, vo.Status, to, models.ErrConflict)
	}

	moved, err := s.vendors.SetVendorOrderStatusIf(ctx, vendorOrderID, vo.Status, to)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, fmt.Errorf("vendor order %s changed concurrently: %w", vendorOrderID, models.ErrConflict)
	}

	s.logger.Info("vendor order transitioned",
		zap.String("vendor_order_id", vendorOrderID),
		zap.String("from", string(vo.Status)),
		zap.String("to", string(to)))

	return s.vendors.FindVendorOrder(ctx, vendorOrderID)
}

// Cancel moves a vendor order to cancelled or refunded and restores its
// stock. The status CAS guarantees only one caller performs the transition;
// the ledger journal guarantees the restore is applied once even if the
// winning call crashed before restoring and the operation is retried.
func (s *Service) Cancel(ctx context.Context, vendorOrderID string, to models.VendorOrderStatus) (*models.VendorOrder, error) {
	if to != models.VendorOrderCancelled && to != models.VendorOrderRefunded {
		return nil, fmt.Errorf("%q is not a cancellation status: %w", to, models.ErrValidation)
	}

	vo, err := s.vendors.FindVendorOrder(ctx, vendorOrderID)
	if err != nil {
		return nil, err
	}

	moved, err := s.vendors.SetVendorOrderStatusIfNotTerminal(ctx, vendorOrderID, to)
	if err != nil {
		return nil, err
	}

	if !moved {
		current, ferr := s.vendors.FindVendorOrder(ctx, vendorOrderID)
		if ferr != nil {
			return nil, ferr
		}
		if current.Status == models.VendorOrderCancelled || current.Status == models.VendorOrderRefunded {
			// Retried cancellation: finish any restore the first call
			// didn't get to (a no-op when it did), then report conflict.
			s.restoreLines(ctx, current)
			return current, fmt.Errorf("vendor order %s already %s: %w",
				vendorOrderID, current.Status, models.ErrConflict)
		}
		return current, fmt.Errorf("vendor order %s is %s and cannot be cancelled: %w",
			vendorOrderID, current.Status, models.ErrConflict)
	}

	vo.Status = to
	s.restoreLines(ctx, vo)

	s.logger.Info("vendor order cancelled",
		zap.String("vendor_order_id", vendorOrderID),
		zap.String("status", string(to)))

	return s.vendors.FindVendorOrder(ctx, vendorOrderID)
}

func (s *Service) restoreLines(ctx context.Context, vo *models.VendorOrder) {
	for _, line := range vo.Lines {
		if err := s.ledger.RestoreStock(ctx, vo.ID, line.ProductID, line.Quantity); err != nil {
			s.logger.Error("stock restore failed",
				zap.String("vendor_order_id", vo.ID),
				zap.String("product_id", line.ProductID),
				zap.Error(err))
		}
	}
}

// HandOver records the seller's physical transfer to the post point: a
// handover row with a fresh QR token, and the vendor order moved to
// sent_to_post_office. Replays after a partial failure resume instead of
// duplicating.
func (s *Service) HandOver(ctx context.Context, vendorOrderID string) (*models.PostOfficeHandover, error) {
	vo, err := s.vendors.FindVendorOrder(ctx, vendorOrderID)
	if err != nil {
		return nil, err
	}
	if vo.DeliveryOption != models.DeliverySchoolPost {
		return nil, fmt.Errorf("vendor order %s uses %s delivery, not school_post: %w",
			vendorOrderID, vo.DeliveryOption, models.ErrValidation)
	}

	if existing, err := s.handovers.FindByVendorOrder(ctx, vendorOrderID); err == nil {
		return existing, fmt.Errorf("vendor order %s already handed over: %w", vendorOrderID, models.ErrConflict)
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	moved, err := s.vendors.SetVendorOrderStatusIf(ctx, vendorOrderID, models.VendorOrderConfirmed, models.VendorOrderSentToPost)
	if err != nil {
		return nil, err
	}
	if !moved {
		current, ferr := s.vendors.FindVendorOrder(ctx, vendorOrderID)
		if ferr != nil {
			return nil, ferr
		}
		// A prior attempt may have moved the status and then died before
		// writing the handover row; in that case carry on and write it.
		if current.Status != models.VendorOrderSentToPost {
			return nil, fmt.Errorf("vendor order %s is %s, expected confirmed: %w",
				vendorOrderID, current.Status, models.ErrConflict)
		}
	}

	var buyerID, buyerEmail string
	if order, err := s.orders.FindByID(ctx, vo.OrderID); err == nil {
		buyerID = order.UserID
		buyerEmail = order.Email
	} else {
		s.logger.Warn("parent order lookup failed during handover",
			zap.String("order_id", vo.OrderID), zap.Error(err))
	}

	handover := &models.PostOfficeHandover{
		ID:            uuid.NewString(),
		OrderID:       vo.OrderID,
		VendorOrderID: vo.ID,
		StoreID:       vo.StoreID,
		BuyerID:       buyerID,
		BuyerEmail:    buyerEmail,
		QRCode:        uuid.NewString(),
		Status:        models.HandoverHandedOver,
		HandedOverAt:  time.Now(),
	}
	if err := s.handovers.Create(ctx, handover); err != nil {
		if !errors.Is(err, models.ErrConflict) {
			return nil, err
		}
		// A concurrent call won the insert between our existence check and
		// now. Adopt its row so only one QR token is ever live.
		existing, ferr := s.handovers.FindByVendorOrder(ctx, vendorOrderID)
		if ferr != nil {
			return nil, err
		}
		return existing, fmt.Errorf("vendor order %s already handed over: %w", vendorOrderID, models.ErrConflict)
	}

	if s.qrCache != nil {
		if err := s.qrCache.CacheQRToken(ctx, handover.QRCode, handover.ID); err != nil {
			s.logger.Warn("failed to cache handover qr token", zap.Error(err))
		}
	}
	if s.notifier != nil {
		s.notifier.HandoverCreated(handover)
	}

	s.logger.Info("handover created",
		zap.String("handover_id", handover.ID),
		zap.String("vendor_order_id", vo.ID))

	return handover, nil
}

// Collect finalizes a pickup: the buyer presents the QR token, the handover
// flips to collected exactly once, the vendor order is delivered, and
// positive feedback bumps the seller's reputation. A second collect for the
// same handover fails with a conflict and leaves pickup time and feedback
// untouched.
func (s *Service) Collect(ctx context.Context, handoverID, qrToken string, feedback models.HandoverFeedback) (*models.PostOfficeHandover, error) {
	switch feedback {
	case "", models.FeedbackThumbsUp, models.FeedbackThumbsDown:
	default:
		return nil, fmt.Errorf("unknown feedback %q: %w", feedback, models.ErrValidation)
	}

	handover, err := s.handovers.FindByID(ctx, handoverID)
	if err != nil {
		return nil, err
	}
	if handover.QRCode != qrToken {
		return nil, fmt.Errorf("qr token does not match handover %s: %w", handoverID, models.ErrValidation)
	}

	now := time.Now()
	collected, err := s.handovers.MarkCollected(ctx, handoverID, now, feedback)
	if err != nil {
		return nil, err
	}
	if !collected {
		return nil, fmt.Errorf("handover %s already collected: %w", handoverID, models.ErrConflict)
	}

	if moved, err := s.vendors.SetVendorOrderStatusIf(ctx, handover.VendorOrderID, models.VendorOrderSentToPost, models.VendorOrderDelivered); err != nil {
		s.logger.Error("failed to mark vendor order delivered",
			zap.String("vendor_order_id", handover.VendorOrderID), zap.Error(err))
	} else if !moved {
		s.logger.Warn("vendor order not in sent_to_post_office at collection",
			zap.String("vendor_order_id", handover.VendorOrderID))
	}

	if feedback == models.FeedbackThumbsUp {
		// Exactly-once is carried by the MarkCollected CAS above: only the
		// winning collect reaches this increment.
		if err := s.reputation.IncrementSuccessfulDeliveries(ctx, handover.StoreID); err != nil {
			s.logger.Error("failed to bump seller reputation",
				zap.String("store_id", handover.StoreID), zap.Error(err))
		}
	}

	updated, err := s.handovers.FindByID(ctx, handoverID)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.HandoverCollected(updated)
	}

	s.logger.Info("handover collected",
		zap.String("handover_id", handoverID),
		zap.String("feedback", string(feedback)))

	return updated, nil
}

// ResolveQR maps a scanned QR token to its handover, preferring the cache
// and falling back to the store.
func (s *Service) ResolveQR(ctx context.Context, token string) (*models.PostOfficeHandover, error) {
	if token == "" {
		return nil, fmt.Errorf("qr token is required: %w", models.ErrValidation)
	}

	if s.qrCache != nil {
		if id, err := s.qrCache.GetHandoverIDByQR(ctx, token); err == nil && id != "" {
			if h, err := s.handovers.FindByID(ctx, id); err == nil {
				return h, nil
			}
		}
	}
	return s.handovers.FindByQR(ctx, token)
}
