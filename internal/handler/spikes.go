package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"stockalert/internal/spike"
)

type SpikeHandler struct {
	Detector *spike.Detector
	// DefaultThreshold applies when the request omits threshold.
	DefaultThreshold float64
	// DefaultChannels applies when the request omits channels.
	DefaultChannels []string
}

func (h *SpikeHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/spikes", h.detect)
}

func (h *SpikeHandler) detect(c *gin.Context) {
	if h.Detector == nil {
		Error(c, http.StatusInternalServerError, "detector unavailable", nil)
		return
	}
	date, ok := parseDate(c.Query("date"))
	if !ok {
		Error(c, http.StatusBadRequest, "date is required, want YYYY-MM-DD", nil)
		return
	}
	baseline := date.AddDate(0, 0, -1)
	if raw := c.Query("baseline"); raw != "" {
		baseline, ok = parseDate(raw)
		if !ok {
			Error(c, http.StatusBadRequest, "invalid baseline, want YYYY-MM-DD", nil)
			return
		}
	}
	channels := parseChannels(c.Query("channels"))
	if len(channels) == 0 {
		channels = h.DefaultChannels
	}
	threshold := h.DefaultThreshold
	if raw := c.Query("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			Error(c, http.StatusBadRequest, "invalid threshold", nil)
			return
		}
		threshold = v
	}

	alerts, err := h.Detector.Detect(c.Request.Context(), date, baseline, channels, threshold)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, alerts, map[string]any{
		"date":      date.Format("2006-01-02"),
		"baseline":  baseline.Format("2006-01-02"),
		"threshold": threshold,
	})
}
