package api

import (
	"net/http"
	"strconv"

	"booking-service/internal/models"
	"booking-service/internal/vectorindex"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// search answers GET /search?q=...&limit=N
func (h *Handler) search(c *gin.Context) {
	limit := vectorindex.DefaultTopK
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid limit",
			})
			return
		}
		limit = n
	}

	hits, err := h.svc.Search.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"query":   c.Query("q"),
		"results": hits,
	})
}

func newCatalogEntity(t models.EntityType) models.CatalogEntity {
	switch t {
	case models.EntityTypeTrip:
		return &models.Trip{}
	case models.EntityTypeHotel:
		return &models.Hotel{}
	case models.EntityTypeCar:
		return &models.Car{}
	case models.EntityTypeAttraction:
		return &models.Attraction{}
	}
	return nil
}

func catalogType(c *gin.Context) (models.EntityType, bool) {
	t, err := models.ParseEntityType(c.Param("type"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Unknown catalog type",
		})
		return "", false
	}
	return t, true
}

// saveCatalogEntity creates (id 0) or updates a catalog row
func (h *Handler) saveCatalogEntity(c *gin.Context) {
	t, ok := catalogType(c)
	if !ok {
		return
	}

	entity := newCatalogEntity(t)
	if err := c.ShouldBindJSON(entity); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.svc.Catalog.Save(c.Request.Context(), entity); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entity)
}

func (h *Handler) deleteCatalogEntity(c *gin.Context) {
	t, ok := catalogType(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid catalog ID",
		})
		return
	}

	if err := h.svc.Catalog.Delete(c.Request.Context(), t, id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// vectorSync rebuilds the vector index from the catalog
func (h *Handler) vectorSync(c *gin.Context) {
	report, err := h.svc.Reindex.SyncAll(c.Request.Context(), h.svc.Collection)
	if err != nil && report == nil {
		h.writeError(c, err)
		return
	}

	if err != nil {
		h.logger.Warn("Vector sync finished with errors", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "partial",
			"message": err.Error(),
			"report":  report,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "Vector sync completed",
		"report":  report,
	})
}
