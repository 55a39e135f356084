package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/irisdrone/echallan/internal/models"
	"github.com/irisdrone/echallan/internal/ownership"
	"github.com/irisdrone/echallan/internal/store"
)

// GetChallans handles GET /api/challans - List challans with filters
func (h *Handler) GetChallans(c *gin.Context) {
	filter := store.CitationFilter{
		Status:  c.Query("status"),
		OwnerID: c.Query("owner_id"),
		Page:    pageFromQuery(c),
	}
	if vehicleNo := c.Query("vehicle_no"); vehicleNo != "" {
		filter.VehicleNo = ownership.Canonical(vehicleNo)
	}

	challans, total, err := h.deps.Store.ListCitations(c.Request.Context(), filter)
	if err != nil {
		h.log.WithError(err).Error("List challans failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch challans"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"challans": challans,
		"total":    total,
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

// GetChallan handles GET /api/challans/:challan_no - Get single challan
func (h *Handler) GetChallan(c *gin.Context) {
	challan, err := h.deps.Store.GetCitation(c.Request.Context(), c.Param("challan_no"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Challan not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch challan"})
		return
	}
	c.JSON(http.StatusOK, challan)
}

// PayChallan handles PATCH /api/challans/:challan_no/pay
func (h *Handler) PayChallan(c *gin.Context) {
	h.closeChallan(c, models.CitationPaid)
}

// VoidChallan handles PATCH /api/challans/:challan_no/void
func (h *Handler) VoidChallan(c *gin.Context) {
	h.closeChallan(c, models.CitationVoid)
}

func (h *Handler) closeChallan(c *gin.Context, to models.CitationStatus) {
	user := currentUser(c)
	if !user.CanClose() {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not allowed to close challans"})
		return
	}

	var req struct {
		Note *string `json:"note"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}
	if to == models.CitationVoid && (req.Note == nil || *req.Note == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "note is required to void a challan"})
		return
	}

	challanNo := c.Param("challan_no")
	challan, err := h.deps.Store.CloseCitation(c.Request.Context(), challanNo, to, &user.Username, req.Note)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Challan not found"})
		return
	case errors.Is(err, store.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "Challan is not open"})
		return
	case err != nil:
		h.log.WithError(err).WithField("challan_no", challanNo).Error("Close challan failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update challan"})
		return
	}

	h.log.WithField("challan_no", challanNo).WithField("status", to).WithField("by", user.Username).Info("Challan closed")
	c.JSON(http.StatusOK, challan)
}
