package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/greenfelt/club-engine/handlers"
	"github.com/greenfelt/club-engine/middleware"
	"github.com/greenfelt/club-engine/models"
)

func SetupRoutes(
	router *chi.Mux,
	jwtSecret string,
	authHandler *handlers.AuthHandler,
	tournamentHandler *handlers.TournamentHandler,
	tableHandler *handlers.TableHandler,
	webhookHandler *handlers.WebhookHandler,
	sweepHandler *handlers.SweepHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Signature"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authenticate := middleware.Authenticate(jwtSecret)

	router.Post("/auth/signup", authHandler.SignUp)
	router.Post("/auth/signin", authHandler.SignIn)

	router.Route("/tournaments", func(r chi.Router) {
		r.Get("/", tournamentHandler.List)
		r.Get("/{tournamentID}/state", tournamentHandler.State)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Post("/{tournamentID}/register", tournamentHandler.Register)
			r.Post("/{tournamentID}/start", tournamentHandler.Start)
			r.Post("/{tournamentID}/advance-level", tournamentHandler.AdvanceLevel)
			r.Post("/{tournamentID}/complete", tournamentHandler.Complete)
			r.Post("/{tournamentID}/cancel", tournamentHandler.Cancel)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Authorize(models.RoleClubAdmin, models.RoleAppAdmin))
				r.Post("/", tournamentHandler.Create)
			})
		})
	})

	router.Route("/tables", func(r chi.Router) {
		r.Use(authenticate)
		r.Post("/{tableID}/leave", tableHandler.Leave)
		r.Post("/{tableID}/heartbeat", tableHandler.Heartbeat)
	})

	// Webhooks authenticate by signature, not by bearer token.
	router.Post("/webhooks/payments", webhookHandler.HandlePayment)

	router.Route("/internal", func(r chi.Router) {
		r.Use(authenticate)
		r.Use(middleware.Authorize(models.RoleAppAdmin))
		r.Post("/sweep", sweepHandler.Run)
	})

	router.Get("/ws/tournaments/{tournamentID}", webSocketHandler.ServeTournament)
}
