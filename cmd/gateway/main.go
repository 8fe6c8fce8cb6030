package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	api "github.com/classpulse/classpulse-backend/internal/api/http"
	auth "github.com/classpulse/classpulse-backend/internal/auth/middleware"
	"github.com/classpulse/classpulse-backend/internal/config"
	"github.com/classpulse/classpulse-backend/internal/db"
	"github.com/classpulse/classpulse-backend/internal/notify"
	"github.com/classpulse/classpulse-backend/internal/quiz"
	"github.com/classpulse/classpulse-backend/internal/rbac"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	store := quiz.NewSQLStore(dbh, cfg.DBDriver)

	// --- Engine ---
	registry := notify.NewRegistry()
	svc := quiz.NewService(store, registry, quiz.Options{
		AllowRetryAfterExpiry: cfg.AllowRetryAfterExpiry,
		Warnings:              cfg.Warnings(),
	})
	defer svc.Shutdown()

	// Restart durability: re-arm live deadlines, force-expire overdue ones,
	// then keep sweeping so a lost timer can never lose a deadline.
	if err := svc.Reconcile(context.Background()); err != nil {
		log.Fatalf("startup reconcile failed: %v", err)
	}
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go svc.RunSweep(sweepCtx, cfg.SweepInterval)

	// --- Auth ---
	authSvc := auth.NewAuthService(cfg.AuthHMACSecret)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := cfg.CORSOriginsOffline
	if cfg.Mode == config.ModeOnline {
		origins = cfg.CORSOriginsOnline
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, dbh))

	// Protected API (JWT -> subject/role in context -> RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		pr.With(rbac.Require("quiz:create")).
			Post("/quizzes", api.UploadQuizHandler(store))
		pr.With(rbac.Require("quiz:view")).
			Get("/quizzes/{quizID}", api.GetQuizHandler(store))

		// Student attempt lifecycle
		pr.With(rbac.Require("attempt:start")).
			Get("/quizzes/{quizID}/eligibility", api.CheckEligibilityHandler(svc))
		pr.With(rbac.Require("attempt:start")).
			Post("/quizzes/{quizID}/attempts", api.StartOrResumeHandler(svc))
		pr.With(rbac.Require("attempt:resume")).
			Get("/quizzes/{quizID}/attempts/active", api.ResumeHandler(svc))
		pr.With(rbac.Require("attempt:save")).
			Post("/attempts/{attemptID}/progress", api.SaveProgressHandler(svc))
		pr.With(rbac.Require("attempt:submit")).
			Post("/attempts/{attemptID}/submit", api.SubmitHandler(svc))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts/{attemptID}/result", api.GetResultHandler(svc))
		pr.With(rbac.Require("attempt:save")).
			Post("/attempts/{attemptID}/warning", api.ScheduleWarningHandler(svc))

		// Suspicious-activity log: students write, staff read.
		pr.With(rbac.Require("attempt:logs-write")).
			Post("/attempts/{attemptID}/events", api.LogActionHandler(svc))
		pr.With(rbac.Require("attempt:logs-view")).
			Get("/attempts/{attemptID}/events", api.GetLogsHandler(svc))

		// Push channel for expiry/warning notices.
		pr.With(rbac.Require("notify:subscribe")).
			Get("/notifications/ws", notify.WSHandler(registry, func(req *http.Request) string {
				return rbac.SubjectFromContext(req.Context())
			}))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	log.Printf("listening on %s (mode=%s, db=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
