package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mverdun/farewatch/internal/repository"
	"github.com/mverdun/farewatch/internal/service/search"
)

type StatusHandler struct {
	service search.SearchUseCase
	history repository.HistoryRepository
}

func NewStatusHandler(service search.SearchUseCase, history repository.HistoryRepository) *StatusHandler {
	return &StatusHandler{service: service, history: history}
}

func (h *StatusHandler) Register(router *gin.Engine) {
	router.GET("/", h.index)
	router.GET("/api/health", h.health)
	router.GET("/api/status", h.status)
	router.GET("/api/deals", h.deals)
	router.GET("/api/history/:origin/:destination", h.priceHistory)
	router.POST("/api/run", h.triggerRun)
}

func (h *StatusHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *StatusHandler) status(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Status())
}

func (h *StatusHandler) deals(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	deals, err := h.service.RecentDeals(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, deals)
}

func (h *StatusHandler) priceHistory(c *gin.Context) {
	days := 30
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid days"})
			return
		}
		days = parsed
	}

	points, err := h.history.RoutePriceHistory(c.Request.Context(), c.Param("origin"), c.Param("destination"), days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, points)
}

// triggerRun starts a search run in the background. A run already in
// flight yields 409 instead of a second concurrent scan.
func (h *StatusHandler) triggerRun(c *gin.Context) {
	if h.service.Status().Running {
		c.JSON(http.StatusConflict, gin.H{"error": "search run already in progress"})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		h.service.Run(ctx)
	}()

	c.JSON(http.StatusAccepted, gin.H{"message": "search run started"})
}

func (h *StatusHandler) index(c *gin.Context) {
	status := h.service.Status()

	lastRun := "never"
	if !status.LastRunAt.IsZero() {
		lastRun = status.LastRunAt.Format(time.RFC3339)
	}
	state := "idle"
	if status.Running {
		state = "running"
	}

	html := fmt.Sprintf(`<!DOCTYPE html>
    <html>
    <head><title>FareWatch</title></head>
    <body>
        <h1>FareWatch</h1>
        <p>State: %s</p>
        <p>Last run: %s (deals: %d, alerts: %d)</p>
        <p>Totals: %d runs, %d deals</p>
        <p><a href="/api/status">status</a> | <a href="/api/deals">deals</a></p>
        <form method="post" action="/api/run"><button type="submit">Run now</button></form>
    </body>
    </html>`, state, lastRun, status.LastRunDeals, status.LastRunAlerts, status.TotalRuns, status.TotalDeals)

	c.Header("Content-Type", "text/html")
	c.String(http.StatusOK, html)
}
