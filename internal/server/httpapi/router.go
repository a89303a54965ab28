package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/coursekeeper/internal/common"
	"github.com/dmitrijs2005/coursekeeper/internal/server/api"
	"github.com/dmitrijs2005/coursekeeper/internal/server/auth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Handler returns the routed gateway.
func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", common.AccessTokenHeaderName, "X-Requested-With"},
		AllowCredentials: !allowsAnyOrigin(s.allowedOrigins),
		MaxAge:           300,
	}))
	if s.limiter != nil {
		r.Use(s.limiter.Middleware)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeResult(w, &api.Result{Code: http.StatusNotFound, Message: "Not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeResult(w, &api.Result{Code: http.StatusMethodNotAllowed, Message: "Method not allowed"})
	})

	r.Route("/api/sms", func(r chi.Router) {
		r.Post("/send", s.sendCode)
		r.Post("/verify", s.verifyCode)
	})

	r.Route("/api/users", func(r chi.Router) {
		r.Post("/register", s.register)
		r.Post("/login", s.login)
		r.Post("/login-sms", s.loginByCode)
		r.Post("/reset-password", s.resetPassword)
		r.Post("/logout", s.logout)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Post("/update-password", s.changePassword)
			r.Post("/admin-reset-password", s.adminResetPassword)
			r.Post("/update", s.updateProfile)
			r.Get("/", s.listUsers)
			r.Get("/{id}", s.getUser)
		})
	})

	return r
}

// authenticate resolves the session from the access_token header or a
// bearer Authorization header.
func (s *HTTPServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(common.AccessTokenHeaderName)
		if token == "" {
			token = auth.BearerToken(r.Header.Get(common.AuthorizationHeaderName))
		}
		if token == "" {
			writeResult(w, &api.Result{Code: http.StatusUnauthorized, Message: "missing token"})
			return
		}

		session, err := s.issuer.Validate(token)
		if err != nil {
			s.logger.Debug(r.Context(), "rejected token", "path", r.URL.Path, "error", err)
			writeResult(w, &api.Result{Code: http.StatusUnauthorized, Message: auth.TokenErrorMessage(err)})
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), session)))
	})
}

// writeResult sends r with its code as the HTTP status.
func writeResult(w http.ResponseWriter, r *api.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(r.Code)
	_ = json.NewEncoder(w).Encode(r)
}

func allowsAnyOrigin(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}
