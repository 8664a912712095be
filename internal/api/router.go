// Package api wires the HTTP surface: the streaming chat endpoint, chat
// history, the survey endpoints, uploaded assets and the health check.
package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/comigor/concierge-go/internal/config"
	"github.com/comigor/concierge-go/internal/relay"
	"github.com/comigor/concierge-go/internal/survey"
)

// Dependencies holds everything the router needs.
type Dependencies struct {
	Relay   *relay.Relay
	Surveys *survey.Service
	Assets  config.AssetsConfig
	CORS    config.CORSConfig
}

// NewRouter creates and configures the chi router. No request timeout is
// installed: chat responses stay open for the whole provider stream.
func NewRouter(deps Dependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if deps.Assets.LocalDir != "" {
		prefix := strings.TrimRight(deps.Assets.RoutePrefix, "/")
		files := http.StripPrefix(prefix+"/", http.FileServer(http.Dir(deps.Assets.LocalDir)))
		r.Get(prefix+"/*", files.ServeHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins(deps.CORS.FrontendOrigin),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Requested-With"},
			MaxAge:         300,
		}))

		if deps.Relay != nil {
			chat := &chatHandler{relay: deps.Relay}
			r.Post("/chat", chat.handleChat)
			r.Get("/chat/sessions/{sessionID}/messages", chat.handleHistory)
		}
		if deps.Surveys != nil {
			r.Post("/surveys", (&surveyHandler{surveys: deps.Surveys}).handleRegister)
		}
	})

	if deps.Surveys != nil {
		s := &surveyHandler{surveys: deps.Surveys}
		r.Get("/survey/form", s.handleForm)
		r.Get("/__survey_load", s.handleLoad)
		r.Post("/__survey_submit", s.handleSubmit)
	}

	return r
}

// origins splits a comma-separated FRONTEND_ORIGIN value.
func origins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
