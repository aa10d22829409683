package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/campusmart/pkg/models"
	"github.com/example/campusmart/pkg/paystack"
	"go.uber.org/zap"
)

// PaymentStore is the durable record of payment attempts, keyed by the
// gateway reference.
type PaymentStore interface {
	Create(ctx context.Context, p *models.Payment) error
	FindByReference(ctx context.Context, reference string) (*models.Payment, error)
	SetStatusIfPending(ctx context.Context, reference string, status models.PaymentStatus, rawPayload string) (bool, error)
	// SetGatewayDetails fills fields the record is missing from what the
	// gateway reported; zero values are skipped, never written.
	SetGatewayDetails(ctx context.Context, reference, userID string, option models.DeliveryOption, amount int64) error
}

// GatewayVerifier is the outbound half of the reconciliation loop.
type GatewayVerifier interface {
	Verify(ctx context.Context, reference string) (*paystack.VerifyResult, error)
}

// Materializer turns a confirmed payment into an order graph. It must be
// idempotent: re-invoking it for a reference that already produced an order
// returns that order unchanged.
type Materializer interface {
	Materialize(ctx context.Context, payment *models.Payment) (*models.Order, error)
	FindOrderByReference(ctx context.Context, reference string) (*models.Order, error)
}

// PaymentCache is an optional read-side cache for terminally reconciled
// payments. Misses and errors fall through to the store.
type PaymentCache interface {
	GetCachedPayment(ctx context.Context, reference string) (*models.Payment, error)
	CachePayment(ctx context.Context, p *models.Payment) error
}

// Outcome is what a verification trigger produces: the payment's (possibly
// terminal) state and, when the payment succeeded, the materialized order.
type Outcome struct {
	Payment *models.Payment `json:"payment"`
	Order   *models.Order   `json:"order,omitempty"`
}

// Service reconciles gateway verification results into exactly one terminal
// payment transition and at most one order per reference. It is re-entrant:
// every failure mode leaves the payment in a state a later retry resumes
// from.
type Service struct {
	store        PaymentStore
	gateway      GatewayVerifier
	materializer Materializer
	cache        PaymentCache
	logger       *zap.Logger
}

func NewService(store PaymentStore, gateway GatewayVerifier, materializer Materializer, cache PaymentCache, logger *zap.Logger) *Service {
	return &Service{
		store:        store,
		gateway:      gateway,
		materializer: materializer,
		cache:        cache,
		logger:       logger,
	}
}

// Reconcile handles one verification trigger (browser redirect or gateway
// webhook) for a reference. Safe under concurrent duplicate invocations:
// the terminal-status gate plus the conditional status write ensure first
// writer wins and later callers observe the winner's outcome.
func (s *Service) Reconcile(ctx context.Context, reference string) (*Outcome, error) {
	if reference == "" {
		return nil, fmt.Errorf("reference is required: %w", models.ErrValidation)
	}

	if s.cache != nil {
		if cached, err := s.cache.GetCachedPayment(ctx, reference); err == nil && cached.Status.Terminal() {
			return s.outcomeFor(ctx, cached)
		}
	}

	payment, err := s.store.FindByReference(ctx, reference)
	if errors.Is(err, models.ErrNotFound) {
		// A webhook can arrive before the initializer persisted anything.
		// Create the record defensively so reconciliation still has a row
		// to transition.
		s.logger.Warn("payment record missing at verification, creating defensively",
			zap.String("reference", reference))
		payment = &models.Payment{
			Reference: reference,
			Status:    models.PaymentPending,
		}
		if createErr := s.store.Create(ctx, payment); createErr != nil {
			if !errors.Is(createErr, models.ErrConflict) {
				return nil, createErr
			}
			// Lost the creation race to a concurrent reconciler.
			payment, err = s.store.FindByReference(ctx, reference)
			if err != nil {
				return nil, err
			}
		}
	} else if err != nil {
		return nil, err
	}

	// Idempotency gate: a payment already terminal returns the recorded
	// outcome with no gateway call and no side effects.
	if payment.Status.Terminal() {
		return s.outcomeFor(ctx, payment)
	}

	remote, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		// Timeouts and upstream failures are inconclusive: leave the
		// payment as-is and let the caller retry.
		return nil, err
	}

	if remote.Status == models.PaymentPending {
		// Gateway still settling; nothing to record yet.
		return &Outcome{Payment: payment}, nil
	}

	// A defensively created record knows nothing about the buyer, but
	// checkout put the user and delivery option into the gateway metadata
	// exactly so they can be recovered here. Backfill before the terminal
	// write so materialization snapshots the right cart and the durable
	// record carries the verified amount.
	payment = s.backfillFromGateway(ctx, payment, remote)

	if remote.Status != models.PaymentSuccess {
		if _, err := s.store.SetStatusIfPending(ctx, reference, remote.Status, remote.Raw); err != nil {
			return nil, err
		}
		payment, err = s.store.FindByReference(ctx, reference)
		if err != nil {
			return nil, err
		}
		s.cacheTerminal(ctx, payment)
		s.logger.Info("payment reconciled to non-success terminal state",
			zap.String("reference", reference),
			zap.String("status", string(payment.Status)))
		return &Outcome{Payment: payment}, nil
	}

	// Two verification calls can both pass the terminal gate before either
	// writes. If the other one already materialized, return its order.
	if existing, err := s.materializer.FindOrderByReference(ctx, reference); err == nil {
		payment, ferr := s.store.FindByReference(ctx, reference)
		if ferr != nil {
			return nil, ferr
		}
		return &Outcome{Payment: payment, Order: existing}, nil
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	won, err := s.store.SetStatusIfPending(ctx, reference, models.PaymentSuccess, remote.Raw)
	if err != nil {
		return nil, err
	}
	if !won {
		s.logger.Info("lost success transition race, deferring to first writer",
			zap.String("reference", reference))
	}

	payment, err = s.store.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	// The refetch drops any backfill that failed to persist; re-apply so
	// materialization always sees the recovered buyer and amount.
	payment = s.backfillFromGateway(ctx, payment, remote)

	order, err := s.materializer.Materialize(ctx, payment)
	if err != nil {
		// Payment stays success; materialization is resumable on the next
		// verification call for the same reference.
		return nil, fmt.Errorf("materialization for %s: %w", reference, err)
	}

	s.cacheTerminal(ctx, payment)
	return &Outcome{Payment: payment, Order: order}, nil
}

func (s *Service) backfillFromGateway(ctx context.Context, payment *models.Payment, remote *paystack.VerifyResult) *models.Payment {
	var userID string
	var option models.DeliveryOption
	var amount int64

	if payment.UserID == "" {
		userID = remote.Metadata["user_id"]
		payment.UserID = userID
	}
	if payment.DeliveryOption == "" {
		if v := remote.Metadata["delivery_option"]; v != "" {
			option = models.DeliveryOption(v)
			payment.DeliveryOption = option
		}
	}
	if payment.Amount == 0 && remote.Amount > 0 {
		amount = remote.Amount
		payment.Amount = amount
	}
	if userID == "" && option == "" && amount == 0 {
		return payment
	}

	if err := s.store.SetGatewayDetails(ctx, payment.Reference, userID, option, amount); err != nil {
		// The in-memory copy still carries the values; only the durable
		// record is behind, and the next verification retries the write.
		s.logger.Warn("failed to persist gateway details",
			zap.String("reference", payment.Reference), zap.Error(err))
	}
	return payment
}

func (s *Service) outcomeFor(ctx context.Context, payment *models.Payment) (*Outcome, error) {
	out := &Outcome{Payment: payment}
	if payment.Status != models.PaymentSuccess {
		return out, nil
	}

	order, err := s.materializer.FindOrderByReference(ctx, payment.Reference)
	if errors.Is(err, models.ErrNotFound) {
		// Confirmed payment without an order: a prior materialization
		// attempt died partway. Resume it now.
		order, err = s.materializer.Materialize(ctx, payment)
	}
	if err != nil {
		return nil, err
	}
	out.Order = order
	return out, nil
}

func (s *Service) cacheTerminal(ctx context.Context, payment *models.Payment) {
	if s.cache == nil || payment == nil || !payment.Status.Terminal() {
		return
	}
	if err := s.cache.CachePayment(ctx, payment); err != nil {
		s.logger.Warn("failed to cache reconciled payment",
			zap.String("reference", payment.Reference), zap.Error(err))
	}
}
