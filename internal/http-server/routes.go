package httpserver

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware block
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Compress(5))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.HandleHealth)

		// Outbox facade (auth required)
		r.Route("/voice", func(r chi.Router) {
			r.Use(s.AuthMiddleware)

			r.Route("/chats/{partnerID}", func(r chi.Router) {
				r.Get("/records", s.HandleListRecords)
				r.Post("/records", s.HandleEnqueueRecord)
				r.Post("/drain", s.HandleDrain)

				r.Route("/records/{recordID}", func(r chi.Router) {
					r.Delete("/", s.HandleDeleteRecord)
					r.Post("/resend", s.HandleResendRecord)
					r.Get("/url", s.HandlePlaybackURL)
				})
			})
		})
	})

	return r
}
