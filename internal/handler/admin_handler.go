package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sheet-tracker/backend/internal/domain"
	"github.com/sheet-tracker/backend/internal/importer"
	"github.com/sheet-tracker/backend/internal/service"
)

// maxUploadSize bounds an import upload
const maxUploadSize = 10 << 20

// AdminHandler handles catalog management. Routes are mounted behind
// middleware.RequireAdmin.
type AdminHandler struct {
	catalogService *service.CatalogService
	validator      *importer.Validator
	defaultPolicy  domain.BatchPolicy
}

// NewAdminHandler creates a new admin handler. defaultPolicy applies when a
// batch request does not name one.
func NewAdminHandler(catalogService *service.CatalogService, validator *importer.Validator, defaultPolicy domain.BatchPolicy) *AdminHandler {
	return &AdminHandler{
		catalogService: catalogService,
		validator:      validator,
		defaultPolicy:  defaultPolicy,
	}
}

func (h *AdminHandler) policy(c *gin.Context) domain.BatchPolicy {
	if p := c.Query("policy"); p != "" {
		return domain.ParseBatchPolicy(p)
	}
	return h.defaultPolicy
}

// respondBatch writes 200 for a clean batch and 207 when some items failed or were skipped
func respondBatch(c *gin.Context, result domain.BatchResult, err error, title string) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, result)
	case errors.Is(err, domain.ErrPartialBatch):
		c.JSON(http.StatusMultiStatus, result)
	default:
		respondError(c, err, title)
	}
}

// CreateProblem adds a problem after the last problem of its topic
// POST /api/admin/problems
func (h *AdminHandler) CreateProblem(c *gin.Context) {
	var req domain.ProblemInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	input, err := h.validator.ValidateInput(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid problem",
			"details": err.Error(),
		})
		return
	}

	problem, err := h.catalogService.Add(c.Request.Context(), input)
	if err != nil {
		respondError(c, err, "Failed to add problem")
		return
	}

	c.JSON(http.StatusCreated, problem)
}

// UpdateProblem merges the given fields into a problem
// PATCH /api/admin/problems/:id
func (h *AdminHandler) UpdateProblem(c *gin.Context) {
	var req domain.ProblemUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	problem, err := h.catalogService.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err, "Failed to update problem")
		return
	}

	c.JSON(http.StatusOK, problem)
}

// DeleteProblem removes a problem
// DELETE /api/admin/problems/:id
func (h *AdminHandler) DeleteProblem(c *gin.Context) {
	if err := h.catalogService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err, "Failed to delete problem")
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteManyRequest names the problems to remove
type DeleteManyRequest struct {
	IDs []string `json:"ids" binding:"required,min=1,dive,required"`
}

// DeleteProblems removes several problems one at a time
// POST /api/admin/problems/delete?policy=continue|stop
func (h *AdminHandler) DeleteProblems(c *gin.Context) {
	var req DeleteManyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.catalogService.DeleteMany(c.Request.Context(), req.IDs, h.policy(c))
	respondBatch(c, result, err, "Failed to delete problems")
}

// ImportProblems validates an uploaded .csv or .json file and, unless
// dryRun is set, adds every row. Any invalid row rejects the whole upload.
// POST /api/admin/problems/import?dryRun=true
func (h *AdminHandler) ImportProblems(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "A file upload is required",
			"details": err.Error(),
		})
		return
	}
	file, err := header.Open()
	if err != nil {
		respondError(c, err, "Failed to read upload")
		return
	}
	defer file.Close()

	result, err := h.validator.Parse(header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		respondError(c, err, "Failed to parse upload")
		return
	}

	if !result.OK() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "Import rejected",
			"details": domain.ErrImportRejected.Error(),
			"errors":  result.Errors,
			"preview": result.Data,
		})
		return
	}

	if dryRun, _ := strconv.ParseBool(c.Query("dryRun")); dryRun {
		c.JSON(http.StatusOK, gin.H{
			"preview": result.Data,
			"errors":  result.Errors,
			"count":   len(result.Data),
		})
		return
	}

	imported, err := h.catalogService.Import(c.Request.Context(), result)
	if err != nil {
		respondError(c, err, "Failed to import problems")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"imported": imported,
	})
}

// SortProblems renumbers the whole catalog
// POST /api/admin/problems/sort?by=topic|difficulty&policy=continue|stop
func (h *AdminHandler) SortProblems(c *gin.Context) {
	var (
		result domain.BatchResult
		err    error
	)
	switch c.Query("by") {
	case "topic":
		result, err = h.catalogService.SortByTopic(c.Request.Context(), h.policy(c))
	case "difficulty":
		result, err = h.catalogService.SortByDifficulty(c.Request.Context(), h.policy(c))
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid sort",
			"details": "by must be topic or difficulty",
		})
		return
	}
	respondBatch(c, result, err, "Failed to sort problems")
}

// ReorderRequest moves one problem before another; an empty before_id moves it to the end
type ReorderRequest struct {
	ID       string `json:"id" binding:"required"`
	BeforeID string `json:"before_id"`
}

// ReorderProblem moves a problem and renumbers the catalog
// POST /api/admin/problems/reorder?policy=continue|stop
func (h *AdminHandler) ReorderProblem(c *gin.Context) {
	var req ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.catalogService.Reorder(c.Request.Context(), req.ID, req.BeforeID, h.policy(c))
	respondBatch(c, result, err, "Failed to reorder problems")
}
