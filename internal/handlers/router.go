package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NewRouter builds the gin engine with every route registered.
func NewRouter(h *Handler, production bool) *gin.Engine {
	if production {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(h.log))

	// CORS middleware
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "PATCH", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(config))

	router.GET("/health", h.Health)
	if h.deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(h.deps.Metrics.Handler()))
	}

	api := router.Group("/api")
	{
		// Producer intake
		api.POST("/detect", h.PostDetect)

		api.POST("/auth/login", h.Login)

		protected := api.Group("")
		protected.Use(h.deps.Auth.AuthMiddleware())
		{
			protected.GET("/challans", h.GetChallans)
			protected.GET("/challans/:challan_no", h.GetChallan)
			protected.PATCH("/challans/:challan_no/pay", h.PayChallan)
			protected.PATCH("/challans/:challan_no/void", h.VoidChallan)

			protected.GET("/reviews", h.GetReviews)
			protected.GET("/violations", h.GetViolations)
			protected.GET("/rules", h.GetRules)
			protected.GET("/stats", h.GetStats)
		}
	}

	if h.deps.Feed != nil {
		router.GET("/ws/challans", h.deps.Auth.AuthMiddleware(), gin.WrapH(h.deps.Feed))
	}

	return router
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	status, code := "ok", http.StatusOK
	if h.deps.Ping != nil {
		if err := h.deps.Ping(c.Request.Context()); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"ip":       c.ClientIP(),
		}).Debug("Request")
	}
}
