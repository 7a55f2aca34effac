package handlers

import (
	"net/http"

	"lessontalk/internal/middleware"
	"lessontalk/internal/models"
	"lessontalk/internal/services"

	"github.com/gin-gonic/gin"
)

type RemarkHandler struct {
	store  *services.RemarkStore
	tree   *services.TreeAssembler
	ledger *services.VoteLedger
}

func NewRemarkHandler(store *services.RemarkStore, tree *services.TreeAssembler, ledger *services.VoteLedger) *RemarkHandler {
	return &RemarkHandler{store: store, tree: tree, ledger: ledger}
}

type createRemarkRequest struct {
	Content     string `json:"content" binding:"required"`
	ContentType string `json:"content_type" binding:"omitempty,oneof=plain question insight beacon"`
	ParentID    string `json:"parent_id" binding:"omitempty,max=36"`
}

type createScopedRemarkRequest struct {
	createRemarkRequest
	CourseID string `json:"course_id" binding:"omitempty,max=64"`
	LessonID string `json:"lesson_id" binding:"omitempty,max=64"`
}

func (h *RemarkHandler) ListByCourse(c *gin.Context) {
	h.list(c, models.CourseScope(c.Param("id")))
}

func (h *RemarkHandler) ListByLesson(c *gin.Context) {
	h.list(c, models.LessonScope(c.Param("id")))
}

func (h *RemarkHandler) CreateForCourse(c *gin.Context) {
	h.create(c, models.CourseScope(c.Param("id")))
}

func (h *RemarkHandler) CreateForLesson(c *gin.Context) {
	h.create(c, models.LessonScope(c.Param("id")))
}

// List serves the tree for whichever of course_id or lesson_id is given.
func (h *RemarkHandler) List(c *gin.Context) {
	scope, err := services.ScopeFromIDs(c.Query("course_id"), c.Query("lesson_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	h.list(c, scope)
}

// Create takes the scope from the body rather than the path.
func (h *RemarkHandler) Create(c *gin.Context) {
	var req createScopedRemarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	scope, err := services.ScopeFromIDs(req.CourseID, req.LessonID)
	if err != nil {
		writeError(c, err)
		return
	}
	h.save(c, scope, req.createRemarkRequest)
}

// list renders the scope's tree; the viewer's votes are attached when signed in.
func (h *RemarkHandler) list(c *gin.Context, scope models.Scope) {
	policy, err := services.ParseOrderPolicy(c.Query("order"))
	if err != nil {
		writeError(c, err)
		return
	}

	caller := middleware.CurrentCaller(c)
	threads, err := h.tree.Assemble(c.Request.Context(), scope, caller.UserID, policy)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"scope":   scope,
		"order":   policy,
		"remarks": threads,
	})
}

func (h *RemarkHandler) create(c *gin.Context, scope models.Scope) {
	var req createRemarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	h.save(c, scope, req)
}

func (h *RemarkHandler) save(c *gin.Context, scope models.Scope, req createRemarkRequest) {
	caller := middleware.CurrentCaller(c)
	remark, err := h.store.Create(c.Request.Context(), services.CreateRemarkInput{
		AuthorID:    caller.UserID,
		Scope:       scope,
		ParentID:    req.ParentID,
		Content:     req.Content,
		ContentType: models.ContentType(req.ContentType),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, services.RemarkView{Remark: *remark, Net: remark.Net()})
}

// Get returns one remark, with the caller's own vote when signed in.
func (h *RemarkHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	remark, err := h.store.Get(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	view := services.RemarkView{Remark: *remark, Net: remark.Net()}
	if caller := middleware.CurrentCaller(c); !caller.Anonymous() {
		view.ViewerVote, err = h.ledger.VoteOf(ctx, caller.UserID, remark.ID)
		if err != nil {
			writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, view)
}

func (h *RemarkHandler) Delete(c *gin.Context) {
	caller := middleware.CurrentCaller(c)
	if err := h.store.SoftDelete(c.Request.Context(), c.Param("id"), caller); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
