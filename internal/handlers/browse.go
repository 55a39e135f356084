package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/irisdrone/echallan/internal/ownership"
	"github.com/irisdrone/echallan/internal/store"
)

// GetReviews handles GET /api/reviews - List the manual review queue
func (h *Handler) GetReviews(c *gin.Context) {
	page := pageFromQuery(c)
	reviews, total, err := h.deps.Store.ListReviews(c.Request.Context(), c.Query("status"), page)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch reviews"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reviews": reviews,
		"total":   total,
		"limit":   page.Limit,
		"offset":  page.Offset,
	})
}

// GetViolations handles GET /api/violations - List raw detection events
func (h *Handler) GetViolations(c *gin.Context) {
	filter := store.ViolationLogFilter{
		Outcome: c.Query("outcome"),
		Source:  c.Query("source"),
		Page:    pageFromQuery(c),
	}
	if vehicleNo := c.Query("vehicle_no"); vehicleNo != "" {
		filter.VehicleNo = ownership.Canonical(vehicleNo)
	}
	if processed := c.Query("processed"); processed != "" {
		if parsed, err := strconv.ParseBool(processed); err == nil {
			filter.Processed = &parsed
		}
	}

	logs, total, err := h.deps.Store.ListViolationLogs(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch violations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"violations": logs,
		"total":      total,
		"limit":      filter.Limit,
		"offset":     filter.Offset,
	})
}

// GetRules handles GET /api/rules
func (h *Handler) GetRules(c *gin.Context) {
	rules, err := h.deps.Store.ListRules(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch rules"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules, "total": len(rules)})
}

// GetStats handles GET /api/stats
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.deps.Store.Stats(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("Stats failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute stats"})
		return
	}

	resp := gin.H{"pipeline": stats}
	if h.deps.NATSStats != nil {
		resp["nats"] = h.deps.NATSStats()
	}
	c.JSON(http.StatusOK, resp)
}
