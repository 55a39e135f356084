// Package handlers exposes the detection intake and the operator API over
// HTTP.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/irisdrone/echallan/internal/ingest"
	"github.com/irisdrone/echallan/internal/metrics"
	"github.com/irisdrone/echallan/internal/models"
	"github.com/irisdrone/echallan/internal/natsserver"
	"github.com/irisdrone/echallan/internal/store"
	"github.com/sirupsen/logrus"
)

// Store is the read and admin surface the operator API needs.
type Store interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetCitation(ctx context.Context, challanNo string) (*models.Citation, error)
	ListCitations(ctx context.Context, f store.CitationFilter) ([]models.Citation, int64, error)
	CloseCitation(ctx context.Context, challanNo string, to models.CitationStatus, by, note *string) (*models.Citation, error)
	ListReviews(ctx context.Context, status string, p store.Page) ([]models.ManualReview, int64, error)
	ListViolationLogs(ctx context.Context, f store.ViolationLogFilter) ([]models.ViolationLog, int64, error)
	ListRules(ctx context.Context) ([]models.Rule, error)
	Stats(ctx context.Context) (*store.Stats, error)
}

// Processor runs one decoded detection event.
type Processor interface {
	Process(ctx context.Context, ev *ingest.Event) (*ingest.Response, error)
}

// Deps wires the HTTP layer.
type Deps struct {
	Store     Store
	Processor Processor
	Auth      *Auth
	Feed      http.Handler
	Metrics   *metrics.Metrics
	// NATSStats is optional; when set its figures are included in /api/stats.
	NATSStats func() natsserver.Stats
	// Ping checks the database for /health.
	Ping func(ctx context.Context) error
	Log  logrus.FieldLogger
}

// Handler holds the route handlers.
type Handler struct {
	deps Deps
	log  logrus.FieldLogger
}

// New creates a Handler.
func New(deps Deps) *Handler {
	return &Handler{deps: deps, log: deps.Log.WithField("component", "API")}
}

// pageFromQuery reads limit/offset the way every listing endpoint does.
func pageFromQuery(c *gin.Context) store.Page {
	var p store.Page
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			p.Limit = parsed
		}
	}
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			p.Offset = parsed
		}
	}
	return p.Normalize()
}
