package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
)

type trackRequest struct {
	URL string `json:"url"`
}

type subscribeRequest struct {
	Payload json.RawMessage `json:"payload"`
}

// TrackProduct handles POST /api/v1/user/products. A known product is
// attached to the user; an unknown URL is queued for crawling.
func (h *Handler) TrackProduct(c *gin.Context) {
	userID, err := subject(c, "user")
	if err != nil {
		h.writeError(c, err)
		return
	}

	var req trackRequest
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if decodeErr := dec.Decode(&req); decodeErr != nil {
		h.writeError(c, domain.NewValidationError("", domain.CodeUnknownField, "body must be {\"url\": \"...\"}"))
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		h.writeError(c, domain.NewValidationError("url", domain.CodeMissingField, "is required"))
		return
	}

	ctx := c.Request.Context()
	res, err := h.coordinator.Enqueue(ctx, req.URL, userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if res.Product != nil {
		ownership, _, attachErr := h.lifecycle.AttachLoaded(ctx, userID, res.Product)
		if attachErr != nil {
			h.writeError(c, attachErr)
			return
		}
		c.JSON(http.StatusOK, gin.H{"product": res.Product, "ownership": ownership})
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"queue_entry": res.Entry})
}

// UntrackProduct handles DELETE /api/v1/user/products/:id.
func (h *Handler) UntrackProduct(c *gin.Context) {
	userID, productID, ok := h.ownerParams(c)
	if !ok {
		return
	}

	held, err := h.lifecycle.Detach(c.Request.Context(), userID, productID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_id": productID, "product_on_hold": held})
}

// GetProduct handles GET /api/v1/user/products/:id.
func (h *Handler) GetProduct(c *gin.Context) {
	userID, productID, ok := h.ownerParams(c)
	if !ok {
		return
	}

	limit, err := intQuery(c, "history_limit")
	if err != nil {
		h.writeError(c, err)
		return
	}
	if limit == 0 {
		limit = h.cfg.HistoryLimit
	}

	view, err := h.lifecycle.View(c.Request.Context(), userID, productID, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Subscribe handles PUT /api/v1/user/products/:id/subscriptions/:type.
func (h *Handler) Subscribe(c *gin.Context) {
	userID, productID, ok := h.ownerParams(c)
	if !ok {
		return
	}

	var req subscribeRequest
	if c.Request.ContentLength > 0 {
		if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
			h.writeError(c, domain.NewValidationError("payload", domain.CodeInvalidField, "body must be a JSON object"))
			return
		}
	}

	typ := domain.SubscriptionType(c.Param("type"))
	sub, err := h.lifecycle.Subscribe(c.Request.Context(), userID, productID, typ, req.Payload)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// Unsubscribe handles DELETE /api/v1/user/products/:id/subscriptions/:type.
func (h *Handler) Unsubscribe(c *gin.Context) {
	userID, productID, ok := h.ownerParams(c)
	if !ok {
		return
	}

	typ := domain.SubscriptionType(c.Param("type"))
	if err := h.lifecycle.Unsubscribe(c.Request.Context(), userID, productID, typ); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ownerParams resolves the user and product ids, writing the error response
// when either is unusable.
func (h *Handler) ownerParams(c *gin.Context) (string, string, bool) {
	userID, err := subject(c, "user")
	if err != nil {
		h.writeError(c, err)
		return "", "", false
	}
	productID, err := parseID("product", c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return "", "", false
	}
	return userID, productID, true
}
