package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"hnenricher/enrichment"
	"hnenricher/store"
)

const (
	defaultSearchResults = 5
	maxSearchResults     = 50
)

// RegisterItemRoutes registers item lookup, enrichment and search endpoints.
func RegisterItemRoutes(r *gin.Engine, p Pipeline, s Searcher, items ItemReader, logger *slog.Logger) {
	g := r.Group("/api/items")
	g.GET("/search", func(c *gin.Context) { handleSearch(c, s, logger) })
	g.GET("/:id", func(c *gin.Context) { handleGetItem(c, items, logger) })
	g.POST("/:id/enrich", func(c *gin.Context) { handleEnrich(c, p, logger) })
}

// handleGetItem returns the stored row for one item.
func handleGetItem(c *gin.Context, items ItemReader, logger *slog.Logger) {
	if items == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "item store is not configured"})
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	row, err := items.Get(c.Request.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		logger.Warn("item lookup failed", "id", id, "err", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, row)
	}
}

// handleEnrich enriches one item synchronously and returns the stored result.
func handleEnrich(c *gin.Context, p Pipeline, logger *slog.Logger) {
	id := strings.TrimSpace(c.Param("id"))
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "item id must be numeric"})
		return
	}

	item, err := p.EnrichNow(c.Request.Context(), id)
	if err != nil {
		logger.Warn("enrich failed", "id", id, "code", enrichment.CodeOf(err), "err", err)
		c.JSON(statusForError(err), gin.H{"error": err.Error(), "code": enrichment.CodeOf(err)})
		return
	}
	c.JSON(http.StatusOK, item)
}

// handleSearch returns the nearest enriched items.
// Query params: q (required), n (int, optional), url (exact metadata filter, optional)
func handleSearch(c *gin.Context, s Searcher, logger *slog.Logger) {
	if s == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "search is not configured"})
		return
	}
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	n := defaultSearchResults
	if v := c.Query("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "n must be a positive integer"})
			return
		}
		n = min(parsed, maxSearchResults)
	}
	var where map[string]any
	if u := c.Query("url"); u != "" {
		where = map[string]any{"url": u}
	}

	matches, err := s.Search(c.Request.Context(), q, n, where)
	if err != nil {
		logger.Warn("search failed", "err", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": q, "results": matches})
}
