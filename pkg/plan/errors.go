package plan

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soorma-platform/soorma/pkg/soormaerrors"
)

// mapServiceError maps service-layer errors to HTTP responses, mirroring
// pkg/registry and pkg/memory's mapServiceError.
func mapServiceError(c *gin.Context, err error) {
	var validErr *soormaerrors.ValidationError
	if errors.As(err, &validErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": validErr.Error()})
		return
	}
	if errors.Is(err, soormaerrors.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
		return
	}

	slog.Error("plan: unexpected service error", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

func tenantID(c *gin.Context) string {
	return c.GetHeader("X-Tenant-ID")
}

func userID(c *gin.Context) string {
	return c.GetHeader("X-User-ID")
}
