package journals

import "github.com/go-chi/chi/v5"

// MountRoutes registers journal endpoints on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/postings", h.Post)
	r.Get("/entries/{id}", h.GetEntry)
	r.Post("/entries/{id}/reverse", h.Reverse)
}
