package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/sheet-tracker/backend/internal/middleware"
)

// Handlers groups the HTTP handlers mounted under /api
type Handlers struct {
	Auth    *AuthHandler
	User    *UserHandler
	Problem *ProblemHandler
	Admin   *AdminHandler
	Stream  *StreamHub
}

// RegisterRoutes mounts the API on router
func RegisterRoutes(router gin.IRouter, h Handlers, tokens middleware.TokenValidator) {
	api := router.Group("/api")

	auth := api.Group("/auth")
	{
		auth.POST("/signup", h.Auth.Register)
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)
	}

	// public, but a signed-in caller gets their own progress applied
	problems := api.Group("/problems", middleware.OptionalAuthMiddleware(tokens))
	{
		problems.GET("", h.Problem.GetProblems)
		problems.GET("/sections", h.Problem.GetSections)
		problems.GET("/stats", h.Problem.GetProblemStats)
		problems.GET("/:id", h.Problem.GetProblem)
	}

	api.GET("/catalog/stream", h.Stream.ServeWS)

	users := api.Group("/users/me", middleware.AuthMiddleware(tokens))
	{
		users.GET("", h.User.GetCurrentUser)
		users.PATCH("", h.User.UpdateProfile)
		users.DELETE("", h.User.DeleteAccount)
		users.GET("/progress", h.User.GetUserProgress)
		users.POST("/problems/:id/:action", h.User.ToggleProblem)
		users.PUT("/notes/:id", h.User.SetNote)
	}

	admin := api.Group("/admin", middleware.AuthMiddleware(tokens), middleware.RequireAdmin())
	{
		admin.POST("/problems", h.Admin.CreateProblem)
		admin.PATCH("/problems/:id", h.Admin.UpdateProblem)
		admin.DELETE("/problems/:id", h.Admin.DeleteProblem)
		admin.POST("/problems/delete", h.Admin.DeleteProblems)
		admin.POST("/problems/import", h.Admin.ImportProblems)
		admin.POST("/problems/sort", h.Admin.SortProblems)
		admin.POST("/problems/reorder", h.Admin.ReorderProblem)
	}
}
