package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sheet-tracker/backend/internal/catalog"
	"github.com/sheet-tracker/backend/internal/middleware"
	"github.com/sheet-tracker/backend/internal/progress"
	"github.com/sheet-tracker/backend/internal/service"
)

// ProblemHandler serves the read side of the catalog. Requests may be
// anonymous; a signed-in caller's progress drives the status filter and the
// solved counts.
type ProblemHandler struct {
	catalogService  *service.CatalogService
	progressService *service.ProgressService
}

// NewProblemHandler creates a new problem handler
func NewProblemHandler(catalogService *service.CatalogService, progressService *service.ProgressService) *ProblemHandler {
	return &ProblemHandler{
		catalogService:  catalogService,
		progressService: progressService,
	}
}

func (h *ProblemHandler) callerState(c *gin.Context) (progress.State, error) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return progress.State{Notes: map[string]string{}}, nil
	}
	return h.progressService.State(c.Request.Context(), userID)
}

func criteriaFromQuery(c *gin.Context) (catalog.Criteria, error) {
	status, err := catalog.ParseStatus(c.Query("status"))
	if err != nil {
		return catalog.Criteria{}, err
	}
	difficulty, err := catalog.ParseDifficulty(c.Query("difficulty"))
	if err != nil {
		return catalog.Criteria{}, err
	}
	return catalog.Criteria{
		Section:    c.Query("section"),
		Search:     c.Query("search"),
		Difficulty: difficulty,
		Status:     status,
	}, nil
}

// GetProblems returns the visible problems for the query's filter
// GET /api/problems?section=&search=&difficulty=&status=&grouped=
func (h *ProblemHandler) GetProblems(c *gin.Context) {
	criteria, err := criteriaFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid filter",
			"details": err.Error(),
		})
		return
	}

	state, err := h.callerState(c)
	if err != nil {
		respondError(c, err, "Failed to load progress")
		return
	}

	if grouped, _ := strconv.ParseBool(c.Query("grouped")); grouped {
		groups, err := h.catalogService.Grouped(c.Request.Context(), criteria, state)
		if err != nil {
			respondError(c, err, "Failed to retrieve problems")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"groups": groups,
			"count":  len(groups),
		})
		return
	}

	problems, err := h.catalogService.Visible(c.Request.Context(), criteria, state)
	if err != nil {
		respondError(c, err, "Failed to retrieve problems")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"problems": problems,
		"count":    len(problems),
	})
}

// GetSections lists the sheet sections and the one to show first
// GET /api/problems/sections
func (h *ProblemHandler) GetSections(c *gin.Context) {
	state, err := h.callerState(c)
	if err != nil {
		respondError(c, err, "Failed to load progress")
		return
	}

	sections, active, err := h.catalogService.Sections(c.Request.Context(), state.Solved)
	if err != nil {
		respondError(c, err, "Failed to retrieve sections")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sections": sections,
		"active":   active,
	})
}

// GetProblem returns a specific problem by ID
// GET /api/problems/:id
func (h *ProblemHandler) GetProblem(c *gin.Context) {
	problem, err := h.catalogService.GetProblem(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to retrieve problem")
		return
	}

	c.JSON(http.StatusOK, problem)
}

// GetProblemStats returns statistics about the problem set
// GET /api/problems/stats
func (h *ProblemHandler) GetProblemStats(c *gin.Context) {
	stats, err := h.catalogService.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to retrieve problem statistics")
		return
	}

	c.JSON(http.StatusOK, stats)
}
