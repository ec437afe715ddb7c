package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wingskh/live-stream-tester/internal/core/domain"
	"github.com/wingskh/live-stream-tester/internal/core/ports"
	"github.com/wingskh/live-stream-tester/pkg/validation"
)

// TestHandler exposes the playback test orchestration over HTTP.
type TestHandler struct {
	sessions ports.SessionService
	fallback ports.FallbackService
	sweep    ports.SweepService
	results  ports.ResultRepository
	registry ports.EngineRegistry
}

func NewTestHandler(
	sessions ports.SessionService,
	fallback ports.FallbackService,
	sweep ports.SweepService,
	results ports.ResultRepository,
	registry ports.EngineRegistry,
) *TestHandler {
	return &TestHandler{
		sessions: sessions,
		fallback: fallback,
		sweep:    sweep,
		results:  results,
		registry: registry,
	}
}

func (h *TestHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)

	api := router.Group("/api/v1")
	{
		api.POST("/tests", h.StartTest)
		api.DELETE("/tests/current", h.StopTest)
		api.GET("/tests/current", h.CurrentTest)
		api.POST("/tests/current/advance", h.AdvanceBackup)
		api.POST("/sweep", h.RunSweep)
		api.GET("/results", h.ListResults)
		api.GET("/capabilities", h.Capabilities)
	}
}

// StartTest begins a playback test of the given format and URL, superseding
// any running test.
func (h *TestHandler) StartTest(c *gin.Context) {
	var req struct {
		Format  string   `json:"format" binding:"required"`
		URL     string   `json:"url" binding:"required"`
		Backups []string `json:"backups"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	format, err := domain.ParseFormat(req.Format)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateStreamURL(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateBackupURLs(req.Backups); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	target := domain.NewStreamTarget(format, req.URL, req.Backups)
	h.fallback.Reset(target)

	recordID, err := h.sessions.Start(c.Request.Context(), target)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"record_id": recordID,
		"format":    format.String(),
		"url":       target.ActiveURL(),
	})
}

// StopTest tears down the running test immediately.
func (h *TestHandler) StopTest(c *gin.Context) {
	if err := h.sessions.Stop(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stopped": true})
}

// CurrentTest reports the live session status and target.
func (h *TestHandler) CurrentTest(c *gin.Context) {
	status, target := h.sessions.Status()
	c.JSON(http.StatusOK, gin.H{
		"status":     status.String(),
		"state":      string(h.sessions.State()),
		"format":     target.Format.String(),
		"url":        target.ActiveURL(),
		"on_primary": target.OnPrimary(),
	})
}

// AdvanceBackup rotates the current target to its next backup URL and
// restarts the test on it.
func (h *TestHandler) AdvanceBackup(c *gin.Context) {
	target, err := h.fallback.Advance(c.Request.Context())
	if err != nil {
		if err == domain.ErrFallbackExhausted {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"format":       target.Format.String(),
		"url":          target.ActiveURL(),
		"backup_index": target.ActiveIndex,
	})
}

// RunSweep tests every format with a configured sample URL, in order, and
// returns the outcomes. This call blocks until the sweep finishes.
func (h *TestHandler) RunSweep(c *gin.Context) {
	outcomes, err := h.sweep.Run(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":    err.Error(),
			"outcomes": outcomes,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcomes": outcomes})
}

// ListResults returns the bounded result log, newest first.
func (h *TestHandler) ListResults(c *gin.Context) {
	records, err := h.results.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": records})
}

// Capabilities reports which playback paths this runtime can drive.
func (h *TestHandler) Capabilities(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"capabilities": h.registry.Capabilities()})
}

// Health is the liveness endpoint.
func (h *TestHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
