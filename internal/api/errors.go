package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/price-tracker/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
)

const (
	codeNotFound      = "not_found"
	codeInternalError = "internal_error"
)

// writeError maps the domain error taxonomy onto the response contract.
func (h *Handler) writeError(c *gin.Context, err error) {
	log := logger.FromContext(c.Request.Context(), h.log)

	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		status := http.StatusUnprocessableEntity
		if vErr.Malformed() {
			status = http.StatusBadRequest
		}
		log.Debug("Request rejected",
			logger.String("field", vErr.Field),
			logger.String("code", string(vErr.Code)),
		)
		c.JSON(status, gin.H{"error": vErr.Error(), "code": string(vErr.Code), "field": vErr.Field})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": codeNotFound})
	default:
		log.Error("Request failed",
			logger.String("path", c.FullPath()),
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "code": codeInternalError})
	}
}
