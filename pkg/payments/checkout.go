package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/campusmart/pkg/models"
	"github.com/example/campusmart/pkg/paystack"
	"go.uber.org/zap"
)

type CartReader interface {
	ListByUser(ctx context.Context, userID string) ([]models.CartLine, error)
}

type GatewayInitializer interface {
	Initialize(ctx context.Context, email string, amount int64, metadata map[string]string) (*paystack.InitResult, error)
}

type CheckoutResult struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
	Amount           int64  `json:"amount"`
}

// Checkout prices the buyer's cart, opens a payment attempt with the gateway
// and persists the pending payment record the reconciler will later
// transition.
type Checkout struct {
	carts   CartReader
	gateway GatewayInitializer
	store   PaymentStore
	logger  *zap.Logger
}

func NewCheckout(carts CartReader, gateway GatewayInitializer, store PaymentStore, logger *zap.Logger) *Checkout {
	return &Checkout{carts: carts, gateway: gateway, store: store, logger: logger}
}

func (c *Checkout) Initiate(ctx context.Context, userID, email string, option models.DeliveryOption) (*CheckoutResult, error) {
	if userID == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("user id and a valid email are required: %w", models.ErrValidation)
	}
	switch option {
	case models.DeliverySchoolPost, models.DeliverySelf, models.DeliveryRider:
	default:
		return nil, fmt.Errorf("unknown delivery option %q: %w", option, models.ErrValidation)
	}

	lines, err := c.carts.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("cart is empty: %w", models.ErrValidation)
	}

	total := priceCart(lines, option)

	init, err := c.gateway.Initialize(ctx, email, total, map[string]string{
		"user_id":         userID,
		"delivery_option": string(option),
	})
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		Reference:      init.Reference,
		UserID:         userID,
		Email:          email,
		Amount:         total,
		Status:         models.PaymentPending,
		DeliveryOption: option,
	}
	if err := c.store.Create(ctx, payment); err != nil {
		// The gateway already knows this reference; reconciliation will
		// recreate the record defensively if needed, so log and move on.
		c.logger.Error("failed to persist pending payment",
			zap.String("reference", init.Reference), zap.Error(err))
	}

	c.logger.Info("checkout initiated",
		zap.String("reference", init.Reference),
		zap.String("user_id", userID),
		zap.Int64("amount", total))

	return &CheckoutResult{
		Reference:        init.Reference,
		AuthorizationURL: init.AuthorizationURL,
		Amount:           total,
	}, nil
}

// priceCart totals the line snapshots plus one flat delivery fee per distinct
// seller, mirroring the per-vendor split that materialization performs later.
func priceCart(lines []models.CartLine, option models.DeliveryOption) int64 {
	var total int64
	sellers := make(map[string]struct{})
	for _, line := range lines {
		total += int64(line.Quantity) * line.UnitPrice
		if seller := line.SellerID(); seller != "" {
			sellers[seller] = struct{}{}
		}
	}
	return total + int64(len(sellers))*models.DeliveryFee(option)
}
