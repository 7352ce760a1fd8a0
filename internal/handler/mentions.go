package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"stockalert/internal/repository"
)

type MentionHandler struct {
	Repo repository.Repository
}

func (h *MentionHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/mentions")
	group.GET("", h.list)
	group.GET("/rollup", h.rollup)
	group.GET("/trend", h.trend)
}

func (h *MentionHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListMentionsParams{
		Limit:    atoiDefault(c.Query("limit"), 200),
		Offset:   atoiDefault(c.Query("offset"), 0),
		Channels: parseChannels(c.Query("channels")),
		OrderBy:  c.Query("order_by"),
	}
	if raw := c.Query("date"); raw != "" {
		date, ok := parseDate(raw)
		if !ok {
			Error(c, http.StatusBadRequest, "invalid date, want YYYY-MM-DD", nil)
			return
		}
		params.Date = &date
	}
	if raw := c.Query("from"); raw != "" {
		from, ok := parseDate(raw)
		if !ok {
			Error(c, http.StatusBadRequest, "invalid from, want YYYY-MM-DD", nil)
			return
		}
		params.From = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, ok := parseDate(raw)
		if !ok {
			Error(c, http.StatusBadRequest, "invalid to, want YYYY-MM-DD", nil)
			return
		}
		params.To = &to
	}
	if raw := strings.TrimSpace(c.Query("kind")); raw != "" {
		kind := strings.ToUpper(raw)
		params.Kind = &kind
	}
	if raw := strings.TrimSpace(c.Query("entity")); raw != "" {
		params.EntityName = &raw
	}
	if raw := c.Query("asc"); raw != "" {
		asc := raw == "true" || raw == "1"
		params.Asc = &asc
	}

	items, err := h.Repo.ListMentionAggregates(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountMentionAggregates(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"total": total})
}

func (h *MentionHandler) rollup(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	date, ok := parseDate(c.Query("date"))
	if !ok {
		Error(c, http.StatusBadRequest, "date is required, want YYYY-MM-DD", nil)
		return
	}
	params := repository.RollupParams{
		Date:     date,
		Channels: parseChannels(c.Query("channels")),
		Limit:    atoiDefault(c.Query("limit"), 10),
	}
	if raw := strings.TrimSpace(c.Query("kind")); raw != "" {
		kind := strings.ToUpper(raw)
		params.Kind = &kind
	}
	rows, err := h.Repo.EntityRollup(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, rows, nil)
}

func (h *MentionHandler) trend(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	from, ok := parseDate(c.Query("from"))
	if !ok {
		Error(c, http.StatusBadRequest, "from is required, want YYYY-MM-DD", nil)
		return
	}
	to, ok := parseDate(c.Query("to"))
	if !ok {
		Error(c, http.StatusBadRequest, "to is required, want YYYY-MM-DD", nil)
		return
	}
	params := repository.TrendParams{
		From:     from,
		To:       to,
		Channels: parseChannels(c.Query("channels")),
		Entities: parseChannels(c.Query("entities")),
	}
	if raw := strings.TrimSpace(c.Query("kind")); raw != "" {
		kind := strings.ToUpper(raw)
		params.Kind = &kind
	}
	rows, err := h.Repo.MentionTrend(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, rows, nil)
}

func atoiDefault(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
