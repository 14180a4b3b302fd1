package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/rbarros/cashback-system/internal/middleware"
)

// SetupRouter configures the HTTP routes and middleware of the
// cashback service.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/users/", h.RegisterUser)
		r.Post("/auth/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/purchases/", h.ListPurchases)
			r.Post("/purchases/", h.CreatePurchase)
			r.Put("/purchases/{purchaseID}", h.UpdatePurchase)
			r.Patch("/purchases/{purchaseID}", h.PatchPurchase)
			r.Delete("/purchases/{purchaseID}", h.DeletePurchase)

			r.Get("/cashback/", h.GetCashback)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondDetail(w, http.StatusNotFound, "Not found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondDetail(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}
