package http

import (
	"net/http"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/auth"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter wires the REST and websocket routes.
func NewRouter(service *app.AttemptService, authSvc *auth.Service, allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}
	h := NewHandler(service)
	ws := NewWSHandler(service)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Timeout(30 * time.Second))
		api.Use(auth.Middleware(authSvc))

		api.Route("/student", func(sr chi.Router) {
			sr.Use(auth.RequireRole(auth.RoleStudent))
			sr.Get("/quizzes", h.ListPublishedQuizzes)
			sr.Get("/quizzes/{quizID}", h.QuizOverview)
			sr.Post("/quizzes/{quizID}/start", h.StartAttempt)
			sr.Get("/attempts/{attemptID}", h.GetAttempt)
			sr.Put("/attempts/{attemptID}/answer", h.SaveAnswer)
			sr.Put("/attempts/{attemptID}/away", h.RegisterAway)
			sr.Put("/attempts/{attemptID}/submit", h.Submit)
			sr.Get("/attempts/{attemptID}/results", h.GetResults)
		})

		api.Group(func(lr chi.Router) {
			lr.Use(auth.RequireRole(auth.RoleLecturer))
			lr.Put("/quizzes/{quizID}/publish-results", h.PublishResults)
			lr.Get("/quizzes/{quizID}/attempts", h.ListCompletedAttempts)
		})
	})

	r.With(auth.Middleware(authSvc), auth.RequireRole(auth.RoleStudent)).
		Get("/ws/attempts/{attemptID}", ws.ServeWS)

	return r
}
