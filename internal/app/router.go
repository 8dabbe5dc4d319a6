package app

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"olympiad/internal/app/observability"
	"olympiad/internal/auth"
	"olympiad/internal/certificate"
	"olympiad/internal/exam"
	"olympiad/internal/mail"
	"olympiad/internal/olympiad"
	"olympiad/internal/question"
	"olympiad/internal/report"
	"olympiad/internal/session"
	"olympiad/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

// Services holds the wired domain services. The serve command reuses the
// auth service for the admin bootstrap.
type Services struct {
	Auth *auth.Service
}

// NewRouter wires every component. rdb may be nil, in which case banks are
// read straight from Postgres and session snapshots live in memory.
func NewRouter(cfg Config, db *sql.DB, rdb *redis.Client) (http.Handler, *Services, error) {
	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour))
	if err != nil {
		return nil, nil, fmt.Errorf("token issuer: %w", err)
	}
	objects, err := storage.NewLocalStore(storage.LocalConfig{
		Dir:           cfg.Storage.Dir,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
		SigningSecret: cfg.Auth.JWTSecret,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("object storage: %w", err)
	}

	authSvc := auth.NewService(db, auth.ServiceConfig{
		Tokens:            tokens,
		LoginMaxFailures:  cfg.Auth.LoginMaxFailures,
		LoginLockDuration: TTLDuration(cfg.Auth.LoginLockDuration, 15*time.Minute),
	})
	authHandler := auth.NewHandler(authSvc, cfg.Auth.SecureCookie)

	questionRepo := question.NewRepository(db)
	var bank question.Source = questionRepo
	var questionSvc *question.Service
	if rdb != nil {
		cached := question.NewCachedSource(rdb, questionRepo, TTLDuration(cfg.Redis.BankTTL, 10*time.Minute))
		bank = cached
		questionSvc = question.NewService(questionRepo, cached)
	} else {
		questionSvc = question.NewService(questionRepo, nil)
	}
	loader := question.NewLoader(bank, objects, TTLDuration(cfg.Storage.SignedURLTTL, time.Hour))
	questionHandler := question.NewHandler(questionSvc, objects)

	competitionCfg := olympiad.ServiceConfig{
		CertificateWorkers: cfg.Certificates.Workers,
		Renderer:           certificate.NewRenderer(objects, cfg.Certificates.Issuer),
		Objects:            objects,
		LinkTTL:            TTLDuration(cfg.Certificates.LinkTTL, 7*24*time.Hour),
	}
	if mailer := mail.NewSMTPMailer(mail.SMTPConfig{
		Host: cfg.SMTP.Host,
		Port: cfg.SMTP.Port,
		User: cfg.SMTP.User,
		Pass: cfg.SMTP.Pass,
		From: cfg.SMTP.From,
	}); mailer != nil {
		competitionCfg.Notifier = mailer
	}
	competitionSvc := olympiad.NewService(olympiad.NewRepository(db), competitionCfg)
	competitionHandler := olympiad.NewHandler(competitionSvc)

	examSvc := exam.NewService(competitionSvc, bank, exam.NewRepository(db))
	examHandler := exam.NewHandler(examSvc)

	var snapshots session.Store = session.NewMemoryStore()
	if rdb != nil {
		snapshots = session.NewRedisStore(rdb, TTLDuration(cfg.Redis.SessionTTL, 24*time.Hour))
	}
	sessionSvc := session.NewService(competitionSvc, loader, snapshots, examSvc, session.Config{})
	sessionHandler := session.NewHandler(sessionSvc, time.Second)

	reportHandler := report.NewHandler(report.NewService(competitionSvc))
	fileHandler := storage.NewHandler(objects)

	collector := observability.NewCollector(db, rdb)
	limiter := NewIPRateLimiter(cfg.Auth.RateLimitPerMin, time.Minute)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(collector.Middleware)
	r.Use(CSRFMiddleware(cfg.Auth.CSRFEnforced))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", collector.MetricsHandler)
	r.Get("/files/*", fileHandler.ServeFile)

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/auth/csrf", IssueCSRFToken(cfg.Auth.SecureCookie))
		api.Group(func(public chi.Router) {
			public.Use(RateLimitMiddleware(limiter))
			public.Post("/auth/register", authHandler.Register)
			public.Post("/auth/login", authHandler.Login)
		})

		api.Group(func(secure chi.Router) {
			secure.Use(authHandler.RequireAuth)
			secure.Use(observability.TagUser)
			secure.Get("/auth/me", authHandler.Me)
			secure.Post("/auth/logout", authHandler.Logout)

			secure.Get("/competitions", competitionHandler.List)
			secure.Get("/competitions/{id}", competitionHandler.Get)

			secure.Route("/competitions/{id}/session", func(s chi.Router) {
				s.Post("/", sessionHandler.Start)
				s.Get("/", sessionHandler.Current)
				s.Put("/answers/{questionID}", sessionHandler.Answer)
				s.Post("/advance", sessionHandler.Advance)
				s.Post("/retreat", sessionHandler.Retreat)
				s.Post("/submit", sessionHandler.Submit)
				s.Get("/stream", sessionHandler.Stream)
			})
			secure.Post("/competitions/{id}/submissions", examHandler.Submit)
			secure.Get("/competitions/{id}/result", examHandler.Result)

			secure.Group(func(admin chi.Router) {
				admin.Use(authHandler.RequireRoles(auth.RoleAdmin))
				admin.Post("/admin/competitions", competitionHandler.Create)
				admin.Put("/admin/competitions/{id}", competitionHandler.Update)
				admin.Post("/admin/competitions/{id}/publish", competitionHandler.Publish)
				admin.Post("/admin/competitions/{id}/reopen", competitionHandler.Reopen)
				admin.Post("/admin/competitions/{id}/finalize", competitionHandler.Finalize)
				admin.Get("/admin/competitions/{id}/standings", competitionHandler.Standings)

				admin.Get("/admin/competitions/{id}/questions", questionHandler.List)
				admin.Post("/admin/competitions/{id}/questions", questionHandler.Create)
				admin.Post("/admin/competitions/{id}/questions/import", questionHandler.Import)
				admin.Put("/admin/competitions/{id}/questions/{questionID}", questionHandler.Update)
				admin.Delete("/admin/competitions/{id}/questions/{questionID}", questionHandler.Delete)
				admin.Post("/admin/media", questionHandler.UploadMedia)

				admin.Get("/admin/competitions/{id}/report", reportHandler.Summary)
				admin.Get("/admin/competitions/{id}/standings.xlsx", reportHandler.ExportStandings)
			})
		})
	})

	return r, &Services{Auth: authSvc}, nil
}
