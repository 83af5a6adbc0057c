package api

import (
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// NewRouter builds the HTTP API. A non-empty staticDir serves the web client
// and falls back to its index.html for client routes such as /user/<secret>.
func NewRouter(h *Handler, staticDir string, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/healthz", h.Health)
	r.GET("/activate/:activationCode", h.Activate)

	api := r.Group("/api")
	api.GET("/register/:emailAddress", h.Register)
	api.GET("/price", h.Price)

	user := api.Group("/users/:emailAddress/:secret")
	user.DELETE("", h.Unregister)
	user.GET("/thresholds", h.ListThresholds)
	user.POST("/thresholds", h.ReplaceThresholds)
	user.GET("/thresholds/add/:orientation/:amount", h.AddThreshold)
	user.GET("/thresholds/remove/:orientation/:amount", h.RemoveThreshold)

	if staticDir != "" {
		r.NoRoute(webClient(staticDir))
	}
	return r
}

// webClient serves files from dir and index.html for anything else outside /api.
func webClient(dir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Status(http.StatusNotFound)
			return
		}
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}

		name := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+c.Request.URL.Path)))
		if info, err := os.Stat(name); err == nil && !info.IsDir() {
			c.File(name)
			return
		}

		index := filepath.Join(dir, "index.html")
		if _, err := os.Stat(index); err != nil {
			c.Status(http.StatusNotFound)
			return
		}
		c.File(index)
	}
}

// requestLogger logs the route template, never the raw path: it carries secrets.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	logger = logger.With("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("Request",
			slog.String("method", c.Request.Method),
			slog.String("route", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)))
	}
}
