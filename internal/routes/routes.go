package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/rmvisser/gatehouse/internal/handlers"
	"github.com/rmvisser/gatehouse/internal/middleware"
)

// RegisterRoutes registers all application routes. Every route runs inside
// the session middleware; admin routes additionally require an authenticated
// session.
func RegisterRoutes(
	router chi.Router,
	commentHandler *handlers.CommentHandler,
	adminHandler *handlers.AdminHandler,
) {
	burstLimit := middleware.DefaultBurstLimit()

	// Public comment endpoints
	router.Get("/comments/{blogID}", commentHandler.GetComments)
	router.Get("/csrf-token", commentHandler.GetCSRFToken)
	router.With(middleware.BurstLimitByIP(burstLimit)).Post("/comments", commentHandler.Submit)

	// Admin login is public but burst limited; the status probe answers for
	// anonymous sessions too so the dashboard can decide whether to show the
	// login form
	router.With(middleware.BurstLimitByIP(burstLimit)).Post("/admin/login", adminHandler.Login)
	router.Get("/admin/session", adminHandler.SessionStatus)

	// Moderation endpoints require an authenticated admin session
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdmin())

		r.Post("/admin/logout", adminHandler.Logout)
		r.Get("/admin/comments/pending", adminHandler.ListPending)
		r.Get("/admin/comments/counts", adminHandler.QueueCounts)
		r.Post("/admin/comments/{commentID}/approve", adminHandler.Approve)
		r.Post("/admin/comments/{commentID}/reject", adminHandler.Reject)
		r.Delete("/admin/comments/{commentID}", adminHandler.Delete)

		r.Post("/admin/totp/setup", adminHandler.SetupTOTP)
		r.Post("/admin/totp/enable", adminHandler.EnableTOTP)
	})
}
