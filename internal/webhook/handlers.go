package webhook

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// maxBodySize caps webhook payloads at 512KB.
const maxBodySize = 512 << 10

// Handler provides the inbound webhook HTTP endpoint.
type Handler struct {
	reconciler *Reconciler
}

// NewHandler creates a new webhook handler.
func NewHandler(reconciler *Reconciler) *Handler {
	return &Handler{reconciler: reconciler}
}

// RegisterRoutes sets up the provider webhook route. Authentication is the
// signature check inside the reconciler, not the platform user middleware.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/:provider", h.Receive)
}

// Receive handles POST /webhooks/:provider.
func (h *Handler) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodySize))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "failed to read body"})
		return
	}

	err = h.reconciler.HandleDelivery(c.Request.Context(), c.Param("provider"), c.Request.Header, body)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"received": true})
	case errors.Is(err, ErrUnknownProvider):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_provider", "message": "no such webhook provider"})
	case errors.Is(err, ErrSignatureInvalid):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "signature_invalid", "message": "signature verification failed"})
	case errors.Is(err, ErrMalformedPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed_payload", "message": "could not parse event"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to record event"})
	}
}
