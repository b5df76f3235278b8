package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopfront/order-reconciler/internal/repository"
	"github.com/shopfront/order-reconciler/internal/service"
	"github.com/shopfront/order-reconciler/internal/webhook"
	"go.uber.org/zap"
)

// DeadLetterer parks events that can never be processed automatically.
type DeadLetterer interface {
	DeadLetter(ctx context.Context, source, reason string, payload []byte, requestID string)
}

type WebhookHandler struct {
	normalizer   *webhook.Normalizer
	orderService *service.OrderService
	deadLetter   DeadLetterer
	logger       *zap.Logger
}

func NewWebhookHandler(normalizer *webhook.Normalizer, orderService *service.OrderService, deadLetter DeadLetterer, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		normalizer:   normalizer,
		orderService: orderService,
		deadLetter:   deadLetter,
		logger:       logger,
	}
}

// HandlePayment processes the payment processor webhook. Response contract:
// 400 for signature or shape failures (retrying cannot succeed), 200 once the
// event is processed, deduplicated, irrelevant or dead-lettered, 500 only for
// transient faults so the sender retries.
func (h *WebhookHandler) HandlePayment(c *gin.Context) {
	requestID := c.GetString("request_id")

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body", "request_id": requestID})
		return
	}

	ev, err := h.normalizer.NormalizePayment(body, c.GetHeader("Webhook-Signature"))
	if err != nil {
		if errors.Is(err, webhook.ErrBadSignature) {
			// Security event: logged distinctly from shape failures.
			h.logger.Warn("payment webhook signature rejected",
				zap.String("request_id", requestID),
				zap.String("remote_addr", c.ClientIP()))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature", "request_id": requestID})
			return
		}
		h.logger.Error("malformed payment webhook",
			zap.String("request_id", requestID),
			zap.ByteString("payload", body),
			zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload", "request_id": requestID})
		return
	}
	if ev == nil {
		// Recognized-but-irrelevant subtype: acknowledge so the sender
		// stops retrying.
		c.JSON(http.StatusOK, gin.H{"received": true, "ignored": true})
		return
	}

	order, created, err := h.orderService.Materialize(c.Request.Context(), ev, requestID)
	if err != nil {
		var metaErr *service.MetadataError
		if errors.As(err, &metaErr) {
			// Retrying can never fix the payload; park it for operator
			// replay and acknowledge.
			h.logger.Error("payment event dead-lettered",
				zap.String("request_id", requestID),
				zap.String("session_id", ev.ExternalSessionID),
				zap.ByteString("payload", body),
				zap.Error(err))
			h.deadLetter.DeadLetter(c.Request.Context(), "payment", metaErr.Reason, body, requestID)
			c.JSON(http.StatusOK, gin.H{"received": true, "dead_lettered": true})
			return
		}

		h.logger.Error("payment event processing failed",
			zap.String("request_id", requestID),
			zap.String("session_id", ev.ExternalSessionID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed", "request_id": requestID})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received":     true,
		"order_id":     order.OrderID,
		"deduplicated": !created,
	})
}

// HandleTracking processes carrier tracking webhooks. Unknown orders are
// acknowledged with a warning instead of erroring: failing loudly would
// cause unbounded retries for an event that can never succeed here.
func (h *WebhookHandler) HandleTracking(c *gin.Context) {
	requestID := c.GetString("request_id")

	trackingNumber := c.Param("trackingNumber")
	if trackingNumber == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "missing tracking number"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body", "request_id": requestID})
		return
	}

	ev, err := h.normalizer.NormalizeTracking(body, c.GetHeader("Carrier-Signature"), trackingNumber)
	if err != nil {
		if errors.Is(err, webhook.ErrBadSignature) {
			h.logger.Warn("tracking webhook signature rejected",
				zap.String("request_id", requestID),
				zap.String("tracking_number", trackingNumber),
				zap.String("remote_addr", c.ClientIP()))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature", "request_id": requestID})
			return
		}
		h.logger.Error("malformed tracking webhook",
			zap.String("request_id", requestID),
			zap.String("tracking_number", trackingNumber),
			zap.ByteString("payload", body),
			zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload", "request_id": requestID})
		return
	}

	applied, err := h.orderService.Reconcile(c.Request.Context(), ev, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			h.logger.Warn("tracking event for unknown order",
				zap.String("request_id", requestID),
				zap.String("tracking_number", trackingNumber),
				zap.String("raw_status", ev.RawCarrierStatus))
			c.JSON(http.StatusOK, gin.H{"received": true, "matched": false})
			return
		}

		h.logger.Error("tracking event processing failed",
			zap.String("request_id", requestID),
			zap.String("tracking_number", trackingNumber),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed", "request_id": requestID})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "applied": applied})
}
