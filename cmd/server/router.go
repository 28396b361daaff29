package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/inkwell-api/internal/api"
	apiMiddleware "github.com/phrazzld/inkwell-api/internal/api/middleware"
	"github.com/phrazzld/inkwell-api/internal/api/shared"
)

// setupRouter creates the router with every route and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))
	if app.config.Server.LogLevel == "debug" {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	authHandler := api.NewAuthHandler(app.accounts, app.jwtService, app.config.Auth)
	generationHandler := api.NewGenerationHandler(app.generations, app.files, app.config.Generation.MaxUploadBytes)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)

		// Status reads are authorized by the read policy, not by the token.
		r.With(authMiddleware.OptionalAuthenticate).Get("/generations/{id}", generationHandler.GetTask)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Get("/account", authHandler.GetAccount)

			r.Post("/generations/text-to-image", generationHandler.SubmitTextToImage)
			r.Post("/generations/image-to-image", generationHandler.SubmitImageToImage)
			r.Get("/generations", generationHandler.ListTasks)
			r.Post("/generations/{id}/cancel", generationHandler.CancelTask)
		})
	})

	if app.localFiles != nil {
		prefix := filesMountPath(app.config.Storage.PublicBaseURL)
		r.Handle(prefix+"/*", http.StripPrefix(prefix, app.localFiles.Handler()))
	}

	r.Get("/health", app.handleHealth)

	return r
}

// filesMountPath returns the path component of the public base URL under
// which local objects are served.
func filesMountPath(publicBaseURL string) string {
	p := publicBaseURL
	if u, err := url.Parse(publicBaseURL); err == nil && u.Host != "" {
		p = u.Path
	}
	p = "/" + strings.Trim(p, "/")
	if p == "/" {
		return "/files"
	}
	return p
}

func (app *application) handleHealth(w http.ResponseWriter, r *http.Request) {
	if app.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := app.db.PingContext(ctx); err != nil {
			app.logger.Warn("health check failed", slog.String("component", "database"))
			shared.RespondWithJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
