package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/stackvps/reseller-platform/provision-service/internal/models"
	"github.com/stackvps/reseller-platform/provision-service/internal/repository"
	"github.com/stackvps/reseller-platform/provision-service/internal/service"
)

type Handler struct {
	provisionService *service.ProvisionService
	batchService     *service.BatchService
}

func NewHandler(provisionService *service.ProvisionService, batchService *service.BatchService) *Handler {
	return &Handler{
		provisionService: provisionService,
		batchService:     batchService,
	}
}

// ==================== Admin API Handlers ====================

// ListOrders returns every order; the portal filters and paginates in-memory
func (h *Handler) ListOrders(c *gin.Context) {
	orders, err := h.provisionService.ListOrders(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// ProvisionOrder triggers one provisioning attempt for a single order
func (h *Handler) ProvisionOrder(c *gin.Context) {
	var req models.ProvisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	started, err := h.provisionService.ProvisionOrder(c.Request.Context(), req.OrderID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, models.ProvisionResponse{
			Success: false,
			Message: "order not found",
		})
	case err != nil:
		// Recorded on the order; reported to the admin as a toast
		c.JSON(http.StatusOK, models.ProvisionResponse{
			Success: false,
			Message: err.Error(),
		})
	case !started:
		c.JSON(http.StatusOK, models.ProvisionResponse{
			Success: true,
			Message: "provisioning already in progress",
		})
	default:
		c.JSON(http.StatusOK, models.ProvisionResponse{
			Success: true,
			Message: "order provisioned",
		})
	}
}

// BatchProvision sweeps all currently-eligible orders.
// Runs on a detached context so an HTTP timeout at the gateway never
// abandons in-flight attempts mid-order.
func (h *Handler) BatchProvision(c *gin.Context) {
	summary, err := h.batchService.Run(context.Background())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"data":    models.BatchResult{Success: false, Message: err.Error()},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    models.BatchResult{Success: true, Summary: summary},
	})
}

// UpdateOrder applies a manual admin edit, bypassing the state machine
func (h *Handler) UpdateOrder(c *gin.Context) {
	var req models.UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.provisionService.UpdateOrder(c.Request.Context(), &req); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetOrderLogs returns the action log for one order
func (h *Handler) GetOrderLogs(c *gin.Context) {
	orderID := c.Param("id")
	if orderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order id required"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	logs, err := h.provisionService.GetOrderLogs(c.Request.Context(), orderID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// ==================== User API Handlers ====================

// GetMyOrders returns the authenticated user's orders
func (h *Handler) GetMyOrders(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	orders, err := h.provisionService.ListUserOrders(c.Request.Context(), userID.(string))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}
