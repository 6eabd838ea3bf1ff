package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"billing-orders/internal/service"
	"billing-orders/internal/store"
	"billing-orders/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	store        *store.Store
	orderService *service.OrderService
}

// NewHandler creates a new HTTP handler
func NewHandler(st *store.Store, orderService *service.OrderService) *Handler {
	return &Handler{
		store:        st,
		orderService: orderService,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.PATCH("/orders/:id", h.updateOrder)
		v1.POST("/orders/:id/invoice", h.generateInvoice)
		v1.GET("/orders/:id/invoice", h.getInvoice)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	if err := h.store.GetDB().PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"time":   time.Now().Unix(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// listOrders handles paginated order listing with filters
func (h *Handler) listOrders(c *gin.Context) {
	params, ok := h.bindListParams(c)
	if !ok {
		return
	}

	orders, total, err := h.orderService.List(c.Request.Context(), h.store, params)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items": orders,
		"total": total,
	})
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := h.bindOrderID(c)
	if !ok {
		return
	}

	order, err := h.orderService.Get(c.Request.Context(), h.store, orderID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if order == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}

	c.JSON(http.StatusOK, order)
}

// updateOrder handles seller edits to billing fields
func (h *Handler) updateOrder(c *gin.Context) {
	orderID, ok := h.bindOrderID(c)
	if !ok {
		return
	}

	var params service.UpdateOrderParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	uow, err := h.store.BeginUnitOfWork(ctx)
	if err != nil {
		h.handleError(c, err)
		return
	}
	defer uow.Rollback()

	order, err := uow.GetOrderByID(ctx, orderID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if order == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}

	updated, err := h.orderService.Update(ctx, uow, order, params)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if err := uow.Commit(); err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, updated)
}

// generateInvoice validates and enqueues invoice document generation
func (h *Handler) generateInvoice(c *gin.Context) {
	orderID, ok := h.bindOrderID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	uow, err := h.store.BeginUnitOfWork(ctx)
	if err != nil {
		h.handleError(c, err)
		return
	}
	defer uow.Rollback()

	if err := h.orderService.TriggerInvoiceGeneration(ctx, uow, orderID); err != nil {
		h.handleError(c, err)
		return
	}
	if err := uow.Commit(); err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "invoice generation scheduled"})
}

// getInvoice returns a time-limited link to the invoice document
func (h *Handler) getInvoice(c *gin.Context) {
	orderID, ok := h.bindOrderID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	order, err := h.orderService.Get(ctx, h.store, orderID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if order == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}

	invoice, err := h.orderService.GetOrderInvoice(ctx, order)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, invoice)
}

func (h *Handler) bindOrderID(c *gin.Context) (uuid.UUID, bool) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return uuid.Nil, false
	}
	return orderID, true
}

func (h *Handler) bindListParams(c *gin.Context) (store.ListOrdersParams, bool) {
	params := store.ListOrdersParams{
		SortBy:   c.DefaultQuery("sort_by", "created_at"),
		SortDesc: c.DefaultQuery("sort_order", "desc") == "desc",
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	params.Limit = limit
	params.Offset = (page - 1) * limit

	uuidFilters := map[string]**uuid.UUID{
		"organization_id": &params.OrganizationID,
		"product_id":      &params.ProductID,
		"customer_id":     &params.CustomerID,
		"discount_id":     &params.DiscountID,
		"checkout_id":     &params.CheckoutID,
		"subscription_id": &params.SubscriptionID,
	}
	for name, dst := range uuidFilters {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
			return params, false
		}
		*dst = &id
	}

	if reason := c.Query("billing_reason"); reason != "" {
		params.BillingReason = &reason
	}

	return params, true
}

// handleError maps domain errors to client-facing statuses; everything else
// is a 500.
func (h *Handler) handleError(c *gin.Context, err error) {
	var statuser service.HTTPStatuser
	if errors.As(err, &statuser) {
		c.JSON(statuser.HTTPStatus(), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "Internal server error",
		"details": err.Error(),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
