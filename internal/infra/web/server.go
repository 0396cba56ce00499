// Package web serves the admin API used to buy, grant and manage code batches.
package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"prepaid-subscription/internal/infra/api"
	"prepaid-subscription/internal/infra/logging"
	"prepaid-subscription/internal/usecase"
)

type Server struct {
	purchaseUC    usecase.PurchaseUseCase
	codeUC        usecase.CodeUseCase
	revocationUC  usecase.RevocationUseCase
	entitlementUC usecase.EntitlementUseCase
	reconcilerUC  usecase.ReconcilerUseCase
	auth          *AuthManager
	apiKey        string
	timeout       time.Duration
	validate      *validator.Validate
	log           *zerolog.Logger
}

func NewServer(
	purchaseUC usecase.PurchaseUseCase,
	codeUC usecase.CodeUseCase,
	revocationUC usecase.RevocationUseCase,
	entitlementUC usecase.EntitlementUseCase,
	reconcilerUC usecase.ReconcilerUseCase,
	auth *AuthManager,
	apiKey string,
	timeout time.Duration,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "AdminServer").Logger()
	return &Server{
		purchaseUC:    purchaseUC,
		codeUC:        codeUC,
		revocationUC:  revocationUC,
		entitlementUC: entitlementUC,
		reconcilerUC:  reconcilerUC,
		auth:          auth,
		apiKey:        apiKey,
		timeout:       timeout,
		validate:      validator.New(),
		log:           &l,
	}
}

// Routes sets up the routing for the admin API.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(api.TraceID())
	r.Use(api.RequestLog(s.log))
	r.Use(api.Recover(s.log))
	if s.timeout > 0 {
		r.Use(api.Timeout(s.timeout))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/admin/v1", func(r chi.Router) {
		r.Post("/session", s.sessionCreateHandler())
		r.Delete("/session", s.sessionDeleteHandler())

		// All other admin routes are behind the auth middleware
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/stats", s.statsHandler())

			r.Post("/purchases/checkout", s.checkoutHandler())
			r.Post("/purchases/grant", s.grantHandler())
			r.Get("/purchases", s.purchasesListHandler())
			r.Get("/purchases/{id}", s.purchaseGetHandler())
			r.Get("/purchases/{id}/codes", s.purchaseCodesHandler())

			r.Post("/portal", s.portalHandler())

			r.Get("/codes", s.codesListHandler())
			r.Get("/codes/export", s.codesExportHandler())
			r.Get("/codes/{id}", s.codeGetHandler())
			r.Post("/codes/{id}/revoke", s.revokeHandler())
			r.Post("/codes/{id}/reactivate", s.reactivateHandler())
			r.Post("/codes/{id}/make-available", s.makeAvailableHandler())

			r.Get("/billing-events", s.billingEventsHandler())
		})
	})
	return r
}

type adminKey struct{}

type adminIdentity struct {
	ID    string
	Email string
}

func withAdmin(ctx context.Context, a adminIdentity) context.Context {
	return context.WithValue(logging.WithAdminID(ctx, a.ID), adminKey{}, a)
}

func adminFrom(ctx context.Context) adminIdentity {
	a, _ := ctx.Value(adminKey{}).(adminIdentity)
	return a
}

// authMiddleware accepts the static API key as a bearer token or a minted
// admin session (bearer or cookie). With the API key the acting admin is
// taken from X-Admin-ID.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" && !s.auth.Enabled() {
			s.log.Error().Msg("Admin API key is not configured")
			writeError(w, http.StatusForbidden, "forbidden", "admin access is not configured")
			return
		}

		if tok, ok := bearer(r); ok && keyMatches(tok, s.apiKey) {
			id := strings.TrimSpace(r.Header.Get("X-Admin-ID"))
			if id == "" {
				id = "api-key"
			}
			a := adminIdentity{ID: id, Email: strings.TrimSpace(r.Header.Get("X-Admin-Email"))}
			next.ServeHTTP(w, r.WithContext(withAdmin(r.Context(), a)))
			return
		}

		if s.auth.Enabled() {
			if claims, err := s.auth.ParseFromRequest(r); err == nil {
				a := adminIdentity{ID: claims.Subject, Email: claims.Email}
				next.ServeHTTP(w, r.WithContext(withAdmin(r.Context(), a)))
				return
			}
		}
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid credentials")
	})
}
