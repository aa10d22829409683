package server

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/example/campusmart/pkg/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// statusFor maps the service-layer sentinel errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, models.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

type addCartLineRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	ProductID string `json:"product_id" binding:"required"`
	VariantID string `json:"variant_id"`
	Name      string `json:"name"`
	StoreID   string `json:"store_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
	UnitPrice int64  `json:"unit_price" binding:"required,gt=0"`
}

func (s *Server) addCartLine(c *gin.Context) {
	var req addCartLineRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	line := &models.CartLine{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		Name:      req.Name,
		StoreID:   req.StoreID,
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
	}
	if err := s.carts.AddLine(c.Request.Context(), line); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, line)
}

func (s *Server) listCart(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	lines, err := s.carts.ListByUser(c.Request.Context(), userID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lines": lines, "total": len(lines)})
}

type checkoutRequest struct {
	UserID         string                `json:"user_id" binding:"required"`
	Email          string                `json:"email" binding:"required"`
	DeliveryOption models.DeliveryOption `json:"delivery_option" binding:"required"`
}

func (s *Server) initiateCheckout(c *gin.Context) {
	var req checkoutRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.checkout.Initiate(c.Request.Context(), req.UserID, req.Email, req.DeliveryOption)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (s *Server) verifyPayment(c *gin.Context) {
	outcome, err := s.payments.Reconcile(c.Request.Context(), c.Param("reference"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
	} `json:"data"`
}

// paystackWebhook accepts gateway push notifications. The signature header is
// an HMAC-SHA512 of the raw body under the secret key; events with a bad
// signature are dropped. The reference is never trusted from the body alone,
// reconciliation re-verifies against the gateway before recording anything.
func (s *Server) paystackWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if secret := s.config.Paystack.SecretKey; secret != "" {
		mac := hmac.New(sha512.New, []byte(secret))
		mac.Write(body)
		expected := hex.EncodeToString(mac.Sum(nil))
		if !hmac.Equal([]byte(expected), []byte(c.GetHeader("x-paystack-signature"))) {
			s.logger.Warn("webhook signature mismatch, dropping event")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil || event.Data.Reference == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
		return
	}

	if _, err := s.payments.Reconcile(c.Request.Context(), event.Data.Reference); err != nil {
		s.logger.Error("webhook reconciliation failed",
			zap.String("event", event.Event),
			zap.String("reference", event.Data.Reference),
			zap.Error(err))
		// Non-2xx makes the gateway redeliver, which is exactly what an
		// inconclusive reconciliation wants.
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}

func (s *Server) getOrder(c *gin.Context) {
	reference := c.Param("reference")
	order, err := s.orders.FindByPaymentReference(c.Request.Context(), reference)
	if err != nil {
		s.fail(c, err)
		return
	}
	vendorOrders, err := s.orders.ListVendorOrders(c.Request.Context(), order.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order, "vendor_orders": vendorOrders})
}

func (s *Server) repairOrder(c *gin.Context) {
	order, err := s.repairer.Repair(c.Request.Context(), c.Param("reference"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) getVendorOrder(c *gin.Context) {
	vo, err := s.orders.FindVendorOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, vo)
}

type transitionRequest struct {
	Status models.VendorOrderStatus `json:"status" binding:"required"`
}

func (s *Server) transitionVendorOrder(c *gin.Context) {
	var req transitionRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	vo, err := s.delivery.Transition(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, vo)
}

func (s *Server) cancelVendorOrder(c *gin.Context) {
	vo, err := s.delivery.Cancel(c.Request.Context(), c.Param("id"), models.VendorOrderCancelled)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, vo)
}

func (s *Server) refundVendorOrder(c *gin.Context) {
	vo, err := s.delivery.Cancel(c.Request.Context(), c.Param("id"), models.VendorOrderRefunded)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, vo)
}

func (s *Server) handOver(c *gin.Context) {
	handover, err := s.delivery.HandOver(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, handover)
}

type collectRequest struct {
	QRCode   string                  `json:"qr_code" binding:"required"`
	Feedback models.HandoverFeedback `json:"feedback"`
}

func (s *Server) collect(c *gin.Context) {
	var req collectRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	handover, err := s.delivery.Collect(c.Request.Context(), c.Param("id"), req.QRCode, req.Feedback)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handover)
}

func (s *Server) auditTrail(c *gin.Context) {
	if s.audit == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "audit trail not enabled"})
		return
	}
	logs, err := s.audit.Recent(c.Request.Context(), c.Param("entity_id"), 50)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": logs, "total": len(logs)})
}

func (s *Server) resolveQR(c *gin.Context) {
	handover, err := s.delivery.ResolveQR(c.Request.Context(), c.Param("token"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handover)
}
