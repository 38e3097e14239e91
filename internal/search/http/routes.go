package searchhttp

import "github.com/go-chi/chi/v5"

// MountRoutes registers the table listing and view endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/tables", h.handleTables)
	r.Get("/tables/{table}/rows", h.handleRows)
	if h.views == nil {
		return
	}
	r.Post("/views", h.handleOpenView)
	r.Route("/views/{viewID}", func(vr chi.Router) {
		vr.Get("/", h.handleViewState)
		vr.Delete("/", h.handleCloseView)
		vr.Patch("/filters", h.handlePatchFilters)
		vr.Put("/filters/{key}", h.handleSetFilter)
		vr.Post("/reset", h.handleReset)
		vr.Put("/page", h.handleSetPage)
		vr.Post("/refresh", h.handleRefresh)
	})
}
