package entitlement

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/khanyab/applyflow/internal/auth"
	"github.com/khanyab/applyflow/internal/plans"
	"github.com/khanyab/applyflow/internal/subscription"
	"github.com/khanyab/applyflow/internal/validation"
)

// Handler provides HTTP endpoints for entitlements and plans.
type Handler struct {
	svc     *Service
	catalog *plans.Catalog
}

// NewHandler creates a new entitlement handler.
func NewHandler(svc *Service, catalog *plans.Catalog) *Handler {
	return &Handler{svc: svc, catalog: catalog}
}

// RegisterPublicRoutes sets up routes that need no user identity.
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.GET("/plans", h.ListPlans)
}

// RegisterProtectedRoutes sets up routes that require the X-User-ID identity.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/entitlements/usage", h.GetUsage)
	r.POST("/entitlements/check", h.CheckAction)
	r.POST("/entitlements/consume", h.ConsumeAction)
	r.GET("/subscriptions/me", h.GetSubscription)
}

// ListPlans handles GET /v1/plans.
func (h *Handler) ListPlans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plans": h.catalog.List()})
}

// GetUsage handles GET /v1/entitlements/usage.
func (h *Handler) GetUsage(c *gin.Context) {
	userID := auth.UserID(c.Request.Context())

	usage, plan, err := h.svc.Usage(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to load usage"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"plan":      plan.ID,
		"period":    usage.Period,
		"used":      usage.Used,
		"limit":     usage.Limit,
		"remaining": usage.Remaining(),
	})
}

// CheckAction handles POST /v1/entitlements/check. It never spends quota
// and always answers 200 with the decision, denied included.
func (h *Handler) CheckAction(c *gin.Context) {
	userID := auth.UserID(c.Request.Context())

	req, ok := bindActionRequest(c)
	if !ok {
		return
	}

	d, err := h.svc.Check(c.Request.Context(), userID, req.Action)
	if errors.Is(err, ErrUnknownAction) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_action", "message": "unrecognised action"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to evaluate entitlement"})
		return
	}

	c.JSON(http.StatusOK, d)
}

// ConsumeAction handles POST /v1/entitlements/consume. Allowed decisions
// spend one quota unit; denials map to 402/403/429 with the decision body.
func (h *Handler) ConsumeAction(c *gin.Context) {
	userID := auth.UserID(c.Request.Context())

	req, ok := bindActionRequest(c)
	if !ok {
		return
	}

	d, err := h.svc.Consume(c.Request.Context(), userID, req.Action)
	if errors.Is(err, ErrUnknownAction) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_action", "message": "unrecognised action"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to consume entitlement"})
		return
	}

	if d.Allowed {
		c.JSON(http.StatusOK, d)
		return
	}

	c.JSON(denialStatus(d.Reason), d)
}

// GetSubscription handles GET /v1/subscriptions/me.
func (h *Handler) GetSubscription(c *gin.Context) {
	userID := auth.UserID(c.Request.Context())

	sub, err := h.svc.Subscription(c.Request.Context(), userID)
	if errors.Is(err, subscription.ErrNotFound) {
		c.JSON(http.StatusOK, gin.H{
			"plan":   plans.Free,
			"status": subscription.StatusActive,
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to load subscription"})
		return
	}

	c.JSON(http.StatusOK, sub)
}

type actionRequest struct {
	Action string `json:"action" binding:"required"`
}

func bindActionRequest(c *gin.Context) (actionRequest, bool) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "action required"})
		return req, false
	}
	if !validation.IsValidAction(req.Action) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_action", "message": "action must be lowercase letters, digits, and underscores"})
		return req, false
	}
	return req, true
}

func denialStatus(reason string) int {
	switch reason {
	case ReasonQuotaExhausted:
		return http.StatusTooManyRequests
	case ReasonSubscriptionInactive:
		return http.StatusPaymentRequired
	default:
		return http.StatusForbidden
	}
}
