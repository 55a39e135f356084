package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/irisdrone/echallan/internal/ingest"
	"github.com/sirupsen/logrus"
)

// maxDetectBody bounds a single submission.
const maxDetectBody = 1 << 20

// PostDetect handles POST /api/detect - Run one detection event through the pipeline
func (h *Handler) PostDetect(c *gin.Context) {
	start := time.Now()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxDetectBody)
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	ev, err := ingest.DecodeEvent(body)
	if err != nil {
		h.log.WithFields(logrus.Fields{
			"ip":    c.ClientIP(),
			"error": err.Error(),
		}).Warn("Rejected detection")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.deps.Processor.Process(c.Request.Context(), ev)
	if err != nil {
		h.log.WithFields(logrus.Fields{
			"source":   ev.Source,
			"duration": time.Since(start).String(),
		}).WithError(err).Error("Detection processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process detection"})
		return
	}

	c.JSON(http.StatusOK, resp)
}
