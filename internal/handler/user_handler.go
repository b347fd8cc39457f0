package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sheet-tracker/backend/internal/domain"
	"github.com/sheet-tracker/backend/internal/middleware"
	"github.com/sheet-tracker/backend/internal/progress"
	"github.com/sheet-tracker/backend/internal/service"
)

// UserHandler handles the signed-in user's account and progress
type UserHandler struct {
	userService     *service.UserService
	progressService *service.ProgressService
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *service.UserService, progressService *service.ProgressService) *UserHandler {
	return &UserHandler{
		userService:     userService,
		progressService: progressService,
	}
}

// ProgressResponse is the outcome of a progress command
type ProgressResponse struct {
	Status          string            `json:"status"`
	Changed         bool              `json:"changed"`
	SolvedProblems  []string          `json:"solvedProblems"`
	StarredProblems []string          `json:"starredProblems"`
	Notes           map[string]string `json:"notes"`
}

func newProgressResponse(r progress.Result) ProgressResponse {
	solved := r.State.Solved
	if solved == nil {
		solved = []string{}
	}
	starred := r.State.Starred
	if starred == nil {
		starred = []string{}
	}
	notes := r.State.Notes
	if notes == nil {
		notes = map[string]string{}
	}
	return ProgressResponse{
		Status:          string(r.Status),
		Changed:         r.Changed,
		SolvedProblems:  solved,
		StarredProblems: starred,
		Notes:           notes,
	}
}

// GetCurrentUser returns the currently authenticated user
// GET /api/users/me
func (h *UserHandler) GetCurrentUser(c *gin.Context) {
	userID, ok := middleware.RequireUser(c)
	if !ok {
		return
	}

	user, err := h.userService.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "Failed to retrieve user")
		return
	}

	c.JSON(http.StatusOK, user.ToResponse())
}

// UpdateProfile changes the user's name or display name
// PATCH /api/users/me
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID, ok := middleware.RequireUser(c)
	if !ok {
		return
	}

	var req domain.ProfileUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.userService.UpdateProfile(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err, "Failed to update profile")
		return
	}

	c.JSON(http.StatusOK, user.ToResponse())
}

// DeleteAccount removes the user and their progress
// DELETE /api/users/me
func (h *UserHandler) DeleteAccount(c *gin.Context) {
	userID, ok := middleware.RequireUser(c)
	if !ok {
		return
	}

	if err := h.userService.DeleteAccount(c.Request.Context(), userID); err != nil {
		respondError(c, err, "Failed to delete account")
		return
	}
	h.progressService.Forget(userID)

	c.Status(http.StatusNoContent)
}

// GetUserProgress returns the user's progress statistics
// GET /api/users/me/progress
func (h *UserHandler) GetUserProgress(c *gin.Context) {
	userID, ok := middleware.RequireUser(c)
	if !ok {
		return
	}

	summary, err := h.progressService.Summary(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "Failed to retrieve progress")
		return
	}

	c.JSON(http.StatusOK, summary)
}

// ToggleProblem solves, unsolves, stars or unstars a problem
// POST /api/users/me/problems/:id/:action
func (h *UserHandler) ToggleProblem(c *gin.Context) {
	userID, ok := middleware.RequireUser(c)
	if !ok {
		return
	}

	action, err := progress.ParseAction(c.Param("action"))
	if err != nil {
		respondError(c, err, "Invalid action")
		return
	}

	result := h.progressService.Toggle(c.Request.Context(), userID, c.Param("id"), action)
	h.respondProgress(c, result, "Failed to update progress")
}

// NoteRequest is the body of a note update; an empty note removes it
type NoteRequest struct {
	Note string `json:"note" binding:"max=5000"`
}

// SetNote stores the user's note on a problem
// PUT /api/users/me/notes/:id
func (h *UserHandler) SetNote(c *gin.Context) {
	userID, ok := middleware.RequireUser(c)
	if !ok {
		return
	}

	var req NoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result := h.progressService.SetNote(c.Request.Context(), userID, c.Param("id"), req.Note)
	h.respondProgress(c, result, "Failed to save note")
}

// respondProgress reports a rolled-back command with the restored state so
// the client can undo its own optimistic change.
func (h *UserHandler) respondProgress(c *gin.Context, result progress.Result, title string) {
	if result.Succeeded() {
		c.JSON(http.StatusOK, newProgressResponse(result))
		return
	}
	status := statusFor(result.Err)
	if status == http.StatusInternalServerError {
		_ = c.Error(result.Err)
	}
	c.JSON(status, gin.H{
		"error":    title,
		"details":  "your change was not saved and has been undone",
		"progress": newProgressResponse(result),
	})
}
