package routes

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Dosada05/tournament-progression/docs"
	"github.com/Dosada05/tournament-progression/handlers"
	"github.com/Dosada05/tournament-progression/metrics"
	"github.com/Dosada05/tournament-progression/middleware"
	"github.com/Dosada05/tournament-progression/models"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handlers struct {
	Tournament  *handlers.TournamentHandler
	Participant *handlers.ParticipantHandler
	Match       *handlers.MatchHandler
	Assessment  *handlers.AssessmentHandler
	Progress    *handlers.ProgressHandler
	Dashboard   *handlers.DashboardHandler
	WebSocket   *handlers.WebSocketHandler
}

type Options struct {
	JWTSecret      string
	CORSOrigins    []string
	RequestTimeout time.Duration
	RateLimiter    *middleware.RateLimiter
	DB             Pinger
	Logger         *slog.Logger
}

const (
	roleAdmin       = models.RoleAdmin
	roleOrganizer   = models.RoleOrganizer
	roleInstructor  = models.RoleInstructor
	defaultDeadline = 30 * time.Second
)

func SetupRoutes(router chi.Router, h Handlers, opts Options) {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultDeadline
	}
	authenticate := middleware.Authenticate(opts.JWTSecret, opts.Logger)

	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Recoverer)
	router.Use(metrics.HTTPMetricsMiddleware)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/health", healthHandler(opts.DB))
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(docs.SwaggerJSON)
	})
	router.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	// WebSocket без таймаута: соединение живёт долго
	router.Route("/ws", func(r chi.Router) {
		r.Get("/tournaments/{tournamentID}", h.WebSocket.ServeTournament)
		r.With(authenticate).Get("/users/{userID}", h.WebSocket.ServeUser)
	})

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(chiMiddleware.Timeout(timeout))
		r.Use(authenticate)
		if opts.RateLimiter != nil {
			r.Use(opts.RateLimiter.Handler)
		}

		r.Route("/tournaments", func(r chi.Router) {
			r.With(middleware.Authorize(roleOrganizer, roleAdmin)).Post("/", h.Tournament.CreateHandler)

			r.Route("/{tournamentID}", func(r chi.Router) {
				r.Get("/", h.Tournament.GetByIDHandler)
				r.Get("/rankings", h.Tournament.GetRankingsHandler)
				r.Get("/sessions", h.Tournament.ListSessionsHandler)
				r.Get("/participants", h.Participant.ListHandler)

				// Управление турниром только для организаторов
				r.Group(func(r chi.Router) {
					r.Use(middleware.Authorize(roleOrganizer, roleAdmin))
					r.Post("/participants", h.Participant.RegisterHandler)
					r.Post("/start", h.Tournament.StartHandler)
					r.Post("/complete", h.Tournament.CompleteHandler)
					r.Post("/cancel", h.Tournament.CancelHandler)
				})

				r.With(middleware.Authorize(roleAdmin)).Post("/rewards/distribute", h.Tournament.DistributeRewardsHandler)
			})
		})

		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/progression", h.Match.PreviewProgressionHandler)
			r.With(middleware.Authorize(roleInstructor, roleOrganizer, roleAdmin)).Post("/results", h.Match.SubmitResultHandler)
			r.With(middleware.Authorize(roleOrganizer, roleAdmin)).Put("/results", h.Match.CorrectResultHandler)
			r.With(middleware.Authorize(roleInstructor, roleOrganizer, roleAdmin)).Post("/finalize", h.Match.FinalizeHandler)
		})

		r.Route("/licenses/{licenseID}", func(r chi.Router) {
			r.Get("/assessments", h.Assessment.ListHandler)
			r.Get("/eligibility", h.Assessment.EligibilityHandler)
			r.With(middleware.Authorize(roleInstructor, roleAdmin)).Post("/assessments", h.Assessment.CreateHandler)
		})

		r.Route("/assessments/{assessmentID}", func(r chi.Router) {
			r.Use(middleware.Authorize(roleInstructor, roleAdmin))
			r.Post("/validate", h.Assessment.ValidateHandler)
			r.Post("/archive", h.Assessment.ArchiveHandler)
		})

		r.Route("/progress/{userID}/{specialization}", func(r chi.Router) {
			r.Get("/", h.Dashboard.Progress)
			r.With(middleware.Authorize(roleAdmin)).Put("/level", h.Progress.UpdateLevelHandler)
		})

		r.Route("/consistency/{userID}/{specialization}", func(r chi.Router) {
			r.Use(middleware.Authorize(roleAdmin))
			r.Get("/", h.Progress.ConsistencyHandler)
			r.Post("/resync", h.Progress.ResyncHandler)
		})
	})
}

func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				status, code = "database unavailable", http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}
