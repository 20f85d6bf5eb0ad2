package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wordbloom/analytics-backend/internal/logger"
	"github.com/wordbloom/analytics-backend/internal/requestdata"
	"github.com/wordbloom/analytics-backend/internal/services"
	"github.com/wordbloom/analytics-backend/internal/types"
)

// Sections the analytics endpoint serves.
const (
	SectionGlobal = "leaderboard_stars_global"
	SectionClass  = "leaderboard_stars_class"
)

type AnalyticsHandler struct {
	log         *logger.Logger
	leaderboard services.LeaderboardService
}

func NewAnalyticsHandler(log *logger.Logger, leaderboard services.LeaderboardService) *AnalyticsHandler {
	handlerLogger := log.With("handler", "AnalyticsHandler")
	return &AnalyticsHandler{log: handlerLogger, leaderboard: leaderboard}
}

// Query serves GET /api/analytics?section=...&timeframe=...
//
// Every response is personalized (the condensed leaderboard always carries
// the caller's own row), so HTTP caches must never hold it.
func (h *AnalyticsHandler) Query(c *gin.Context) {
	c.Header("Cache-Control", "private, no-store")

	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == "" {
		RespondError(c, http.StatusUnauthorized, "missing or invalid token")
		return
	}

	var scope services.Scope
	switch section := c.Query("section"); section {
	case SectionGlobal:
		scope = services.ScopeGlobal
	case SectionClass:
		scope = services.ScopeClass
	default:
		RespondError(c, http.StatusBadRequest, "unknown section")
		return
	}
	timeframe := c.DefaultQuery("timeframe", types.TimeframeAll)

	result, err := h.leaderboard.GetStars(c.Request.Context(), scope, timeframe, rd.UserID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownTimeframe):
			RespondError(c, http.StatusBadRequest, "unknown timeframe")
		case errors.Is(err, services.ErrNoClass):
			RespondError(c, http.StatusBadRequest, "user has no class")
		case errors.Is(err, services.ErrUnknownProfile):
			RespondError(c, http.StatusBadRequest, "unknown user")
		default:
			h.log.Error("Leaderboard query failed", "scope", scope, "timeframe", timeframe, "error", err)
			RespondError(c, http.StatusInternalServerError, "internal error")
		}
		return
	}

	body := gin.H{
		"success":     true,
		"timeframe":   result.Timeframe,
		"leaderboard": result.Entries,
	}
	if result.Cached != "" {
		body["_cached"] = result.Cached
	} else {
		body["_cached"] = false
	}
	if result.CachedAt != nil {
		body["_cached_at"] = result.CachedAt.UTC().Format(time.RFC3339)
	}
	if result.ComputedMS != nil {
		body["_computed_ms"] = *result.ComputedMS
	}
	RespondOK(c, body)
}
