package handlers

import (
	"net/http"

	"lessontalk/internal/middleware"
	"lessontalk/internal/models"
	"lessontalk/internal/services"

	"github.com/gin-gonic/gin"
)

type VoteHandler struct {
	ledger *services.VoteLedger
}

func NewVoteHandler(ledger *services.VoteLedger) *VoteHandler {
	return &VoteHandler{ledger: ledger}
}

type voteRequest struct {
	VoteType string `json:"vote_type" binding:"required,oneof=up down"`
}

// Toggle casts, retracts or flips the caller's vote and returns fresh counters.
func (h *VoteHandler) Toggle(c *gin.Context) {
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	caller := middleware.CurrentCaller(c)
	result, err := h.ledger.Toggle(c.Request.Context(), caller.UserID, c.Param("id"), models.VoteType(req.VoteType))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"applied":     result.Applied,
		"upvotes":     result.Upvotes,
		"downvotes":   result.Downvotes,
		"net":         result.Net(),
		"viewer_vote": result.ViewerVote,
	})
}
