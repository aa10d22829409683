package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/example/campusmart/pkg/config"
	"github.com/example/campusmart/pkg/models"
	"github.com/example/campusmart/pkg/payments"
	"github.com/example/campusmart/pkg/repository"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

type CheckoutService interface {
	Initiate(ctx context.Context, userID, email string, option models.DeliveryOption) (*payments.CheckoutResult, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, reference string) (*payments.Outcome, error)
}

type OrderDirectory interface {
	FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error)
	FindVendorOrder(ctx context.Context, id string) (*models.VendorOrder, error)
	ListVendorOrders(ctx context.Context, orderID string) ([]models.VendorOrder, error)
}

type OrderRepairer interface {
	Repair(ctx context.Context, reference string) (*models.Order, error)
}

type DeliveryService interface {
	Transition(ctx context.Context, vendorOrderID string, to models.VendorOrderStatus) (*models.VendorOrder, error)
	Cancel(ctx context.Context, vendorOrderID string, to models.VendorOrderStatus) (*models.VendorOrder, error)
	HandOver(ctx context.Context, vendorOrderID string) (*models.PostOfficeHandover, error)
	Collect(ctx context.Context, handoverID, qrToken string, feedback models.HandoverFeedback) (*models.PostOfficeHandover, error)
	ResolveQR(ctx context.Context, token string) (*models.PostOfficeHandover, error)
}

type CartService interface {
	AddLine(ctx context.Context, line *models.CartLine) error
	ListByUser(ctx context.Context, userID string) ([]models.CartLine, error)
}

// AuditReader surfaces the transition trail for support tooling. Optional;
// the route 404s when no trail is wired.
type AuditReader interface {
	Recent(ctx context.Context, entityID string, limit int64) ([]*repository.AuditLog, error)
}

// Server exposes the marketplace pipeline over HTTP: checkout, payment
// verification, order lookup and repair, vendor-order delivery transitions
// and post-office handovers.
type Server struct {
	config   *config.Config
	logger   *zap.Logger
	router   *gin.Engine
	checkout CheckoutService
	payments Reconciler
	orders   OrderDirectory
	repairer OrderRepairer
	delivery DeliveryService
	carts    CartService
	audit    AuditReader
	srv      *http.Server
}

func New(cfg *config.Config, logger *zap.Logger, checkout CheckoutService, reconciler Reconciler, orders OrderDirectory, repairer OrderRepairer, delivery DeliveryService, carts CartService, audit AuditReader) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware(logger))

	s := &Server{
		config:   cfg,
		logger:   logger,
		router:   router,
		checkout: checkout,
		payments: reconciler,
		orders:   orders,
		repairer: repairer,
		delivery: delivery,
		carts:    carts,
		audit:    audit,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := s.router.Group("/api/v1")
	{
		cart := v1.Group("/cart")
		{
			cart.POST("", s.addCartLine)
			cart.GET("", s.listCart)
		}

		v1.POST("/checkout", s.initiateCheckout)

		pay := v1.Group("/payments")
		{
			pay.GET("/verify/:reference", s.verifyPayment)
			pay.POST("/webhook", s.paystackWebhook)
		}

		orders := v1.Group("/orders")
		{
			orders.GET("/:reference", s.getOrder)
			orders.POST("/:reference/repair", s.repairOrder)
		}

		vendors := v1.Group("/vendor-orders")
		{
			vendors.GET("/:id", s.getVendorOrder)
			vendors.POST("/:id/transition", s.transitionVendorOrder)
			vendors.POST("/:id/cancel", s.cancelVendorOrder)
			vendors.POST("/:id/refund", s.refundVendorOrder)
			vendors.POST("/:id/handover", s.handOver)
		}

		handovers := v1.Group("/handovers")
		{
			handovers.GET("/qr/:token", s.resolveQR)
			handovers.POST("/:id/collect", s.collect)
		}

		v1.GET("/audit/:entity_id", s.auditTrail)
	}

	s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.logger.Info("http server starting", zap.String("address", addr))
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
