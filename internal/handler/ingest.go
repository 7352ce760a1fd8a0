package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stockalert/internal/ingest"
)

// IngestHandler exposes manual cycle triggers. Routine scheduling stays with
// cron; this mirrors the initial multi-day backfill an operator runs once
// and the targeted re-runs after a failed cycle.
type IngestHandler struct {
	Runner   *ingest.Runner
	Channels []string
	Logger   *zap.Logger
	// BaseCtx outlives the request so a triggered cycle is not cancelled
	// when the HTTP client disconnects.
	BaseCtx context.Context
	// BackfillDays is the default span for /backfill.
	BackfillDays int
	// Location matches the runner's day-bucketing timezone.
	Location *time.Location
}

func (h *IngestHandler) Register(r *gin.Engine) {
	r.POST("/api/v1/ingest/backfill", h.backfill)
}

type backfillRequest struct {
	Days     int      `json:"days"`
	Channels []string `json:"channels"`
}

func (h *IngestHandler) backfill(c *gin.Context) {
	if h.Runner == nil {
		Error(c, http.StatusInternalServerError, "runner unavailable", nil)
		return
	}
	var req backfillRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	days := req.Days
	if days <= 0 {
		days = h.BackfillDays
	}
	if days <= 0 {
		days = 3
	}
	channels := req.Channels
	if len(channels) == 0 {
		channels = h.Channels
	}
	if len(channels) == 0 {
		Error(c, http.StatusBadRequest, "no channels configured", nil)
		return
	}

	windowEnd := ingest.DayStart(time.Now(), h.Location)
	windowStart := windowEnd.AddDate(0, 0, -days)

	baseCtx := h.BaseCtx
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	go func() {
		results := h.Runner.RunAll(baseCtx, channels, windowStart, windowEnd)
		if h.Logger == nil {
			return
		}
		failed := 0
		for _, res := range results {
			if res.Err != nil {
				failed++
			}
		}
		h.Logger.Info("backfill finished",
			zap.Time("window_start", windowStart),
			zap.Time("window_end", windowEnd),
			zap.Int("channels", len(channels)),
			zap.Int("failed", failed),
		)
	}()

	c.JSON(http.StatusAccepted, apiResponse{
		Code:    0,
		Message: "backfill started",
		Data: gin.H{
			"window_start": windowStart,
			"window_end":   windowEnd,
			"channels":     channels,
		},
	})
}
