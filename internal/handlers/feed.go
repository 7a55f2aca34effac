package handlers

import (
	"net/http"

	"lessontalk/internal/middleware"
	"lessontalk/internal/models"
	"lessontalk/internal/services"
	"lessontalk/internal/utils"

	"github.com/gin-gonic/gin"
)

type FeedHandler struct {
	feed *services.Aggregator
}

func NewFeedHandler(feed *services.Aggregator) *FeedHandler {
	return &FeedHandler{feed: feed}
}

// List serves the cross-scope discussion feed. A missing or unparsable
// limit falls back to the configured default.
func (h *FeedHandler) List(c *gin.Context) {
	policy, err := services.ParseOrderPolicy(c.Query("order"))
	if err != nil {
		writeError(c, err)
		return
	}

	items, err := h.feed.List(c.Request.Context(), services.FeedQuery{
		Order:       policy,
		Limit:       utils.StringToInt(c.Query("limit")),
		ContentType: models.ContentType(c.Query("content_type")),
		ScopeKind:   models.ScopeKind(c.Query("scope")),
		ViewerID:    middleware.CurrentCaller(c).UserID,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order":       policy,
		"discussions": items,
	})
}
