package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"stockalert/internal/repository"
)

type RunHandler struct {
	Repo repository.Repository
}

func (h *RunHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/runs", h.list)
}

func (h *RunHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListRunsParams{
		Limit:  atoiDefault(c.Query("limit"), 100),
		Offset: atoiDefault(c.Query("offset"), 0),
	}
	if raw := strings.TrimSpace(c.Query("channel")); raw != "" {
		params.Channel = &raw
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		params.Status = &raw
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			Error(c, http.StatusBadRequest, "invalid since, want RFC3339", nil)
			return
		}
		params.Since = &since
	}
	items, err := h.Repo.ListIngestRuns(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}
