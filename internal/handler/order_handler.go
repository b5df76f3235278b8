package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopfront/order-reconciler/internal/repository"
	"github.com/shopfront/order-reconciler/internal/service"
	"go.uber.org/zap"
)

type OrderHandler struct {
	orderService *service.OrderService
	logger       *zap.Logger
}

func NewOrderHandler(orderService *service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		logger:       logger,
	}
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) ListUserOrders(c *gin.Context) {
	userID := c.Param("userID")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	orders, err := h.orderService.ListOrdersByUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

type seedInventoryRequest struct {
	StockQuantity int `json:"stock_quantity" binding:"min=0"`
}

// SeedInventory sets the stock count for a product. Operator endpoint for
// loading inventory and correcting drift.
func (h *OrderHandler) SeedInventory(c *gin.Context) {
	productID := c.Param("productID")
	if productID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}

	var req seedInventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.orderService.SeedInventory(c.Request.Context(), productID, req.StockQuantity); err != nil {
		h.logger.Error("failed to seed inventory",
			zap.String("product_id", productID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to seed inventory"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product_id":     productID,
		"stock_quantity": req.StockQuantity,
	})
}

// ArrangeShipping purchases a label for a paid order and records the
// tracking data. Idempotent: repeating the call returns the existing label.
func (h *OrderHandler) ArrangeShipping(c *gin.Context) {
	id := c.Param("id")
	requestID := c.GetString("request_id")

	order, err := h.orderService.ArrangeShipping(c.Request.Context(), id, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		h.logger.Error("failed to arrange shipping",
			zap.String("order_id", id),
			zap.String("request_id", requestID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "failed to arrange shipping",
			"request_id": requestID,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id":        order.OrderID,
		"tracking_number": order.TrackingNumber,
		"carrier":         order.Carrier,
		"tracking_url":    order.TrackingURL,
		"label_url":       order.LabelURL,
	})
}
