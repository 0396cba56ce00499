// Package api serves the public and user-facing HTTP surface: code validation
// and redemption, subscription status, and the billing webhook.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"prepaid-subscription/internal/config"
	"prepaid-subscription/internal/domain"
	"prepaid-subscription/internal/domain/ports/adapter"
	"prepaid-subscription/internal/infra/logging"
	"prepaid-subscription/internal/infra/metrics"
	"prepaid-subscription/internal/infra/redis"
	"prepaid-subscription/internal/usecase"
)

// Limiter counts attempts per key in a fixed window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Deps struct {
	Redemption   usecase.RedemptionUseCase
	Entitlements usecase.EntitlementUseCase
	Reconciler   usecase.ReconcilerUseCase
	Verifier     adapter.WebhookVerifier // nil when no webhook secret is configured
	Limiter      Limiter                 // nil disables attempt limits
	Auth         *UserAuth
}

type Server struct {
	deps     Deps
	cfg      config.HTTPConfig
	maxBody  int64
	validate *validator.Validate
	log      *zerolog.Logger
}

func NewServer(deps Deps, cfg config.HTTPConfig, maxBody int64, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "APIServer").Logger()
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &Server{
		deps:     deps,
		cfg:      cfg,
		maxBody:  maxBody,
		validate: validator.New(),
		log:      &l,
	}
}

func (s *Server) webhookTimeout() time.Duration {
	if s.cfg.WebhookTimeout > 0 {
		return s.cfg.WebhookTimeout
	}
	return 30 * time.Second
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(TraceID())
	r.Use(RequestLog(s.log))
	r.Use(Recover(s.log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// The webhook runs under http.webhook_timeout instead of the request timeout.
	r.Post("/api/v1/webhooks/stripe", s.handleStripeWebhook)

	r.Group(func(r chi.Router) {
		r.Use(Timeout(s.cfg.RequestTimeout))

		r.Group(func(r chi.Router) {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: s.corsOrigins(),
				AllowedMethods: []string{http.MethodPost, http.MethodOptions},
				AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
				MaxAge:         300,
			}))
			r.Post("/api/v1/codes/validate", s.handleValidate)
			r.Options("/api/v1/codes/validate", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(s.deps.Auth.Middleware)
			r.Post("/api/v1/codes/redeem", s.handleRedeem)
			r.Get("/api/v1/subscription", s.handleSubscription)
			r.Post("/api/v1/subscription/portal", s.handlePortal)
		})
	})
	return r
}

func (s *Server) corsOrigins() []string {
	if len(s.cfg.CORSOrigins) == 0 {
		return []string{"*"}
	}
	return s.cfg.CORSOrigins
}

type codeRequest struct {
	Code string `json:"code" validate:"required,min=4,max=64"`
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, domain.ReasonInvalidArgument, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, domain.ReasonInvalidArgument, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		f := ve[0]
		return strings.ToLower(f.Field()) + " failed " + f.Tag() + " validation"
	}
	return err.Error()
}

// allow enforces the attempt limit for key. It fails open when the limiter errors.
func (s *Server) allow(w http.ResponseWriter, r *http.Request, key string, limit int) bool {
	if s.deps.Limiter == nil {
		return true
	}
	ok, err := s.deps.Limiter.Allow(r.Context(), key, limit, s.cfg.RateWindow)
	if err != nil {
		logging.With(r.Context(), s.log).Warn().Err(err).Str("key", key).Msg("rate limiter unavailable")
		return true
	}
	if !ok {
		w.Header().Set("Retry-After", retryAfter(s.cfg.RateWindow))
		writeDomainError(w, domain.ErrRateLimited)
		return false
	}
	return true
}

func retryAfter(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, redis.ValidateAttemptKey(clientIP(r)), s.cfg.ValidateLimit) {
		return
	}
	var req codeRequest
	if !s.decode(w, r, &req) {
		return
	}
	preview, err := s.deps.Redemption.Validate(r.Context(), req.Code)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "code": preview})
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	if !s.allow(w, r, redis.RedeemAttemptKey(userID), s.cfg.RedeemLimit) {
		return
	}
	var req codeRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.deps.Redemption.Redeem(r.Context(), userID, req.Code)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"redeemed": true, "subscription": res})
}

func (s *Server) handleSubscription(w http.ResponseWriter, r *http.Request) {
	sum, err := s.deps.Entitlements.Status(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handlePortal(w http.ResponseWriter, r *http.Request) {
	url, err := s.deps.Entitlements.PortalSession(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// handleStripeWebhook verifies the raw body before anything else reads it.
// After a valid signature the provider always gets 200 so it stops retrying
// events this service has already recorded as failed.
func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { metrics.ObserveWebhookDuration(time.Since(start)) }()

	if s.deps.Verifier == nil {
		metrics.IncWebhookRequest("unconfigured")
		writeError(w, http.StatusServiceUnavailable, domain.ReasonUnavailable, "webhook secret not configured")
		return
	}
	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		metrics.IncWebhookRequest("missing_signature")
		writeError(w, http.StatusBadRequest, domain.ReasonInvalidArgument, "missing signature")
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		metrics.IncWebhookRequest("bad_body")
		writeError(w, http.StatusBadRequest, domain.ReasonInvalidArgument, "unreadable body")
		return
	}
	ev, err := s.deps.Verifier.Verify(payload, sig)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSignature) {
			metrics.IncWebhookRequest("invalid_signature")
			writeError(w, http.StatusBadRequest, domain.ReasonInvalidArgument, "invalid signature")
			return
		}
		// Signed but undecodable: acknowledge so the provider does not retry forever.
		metrics.IncWebhookRequest("undecodable")
		logging.With(r.Context(), s.log).Warn().Err(err).Msg("verified webhook could not be decoded")
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(logging.WithEventID(context.WithoutCancel(r.Context()), ev.ID), s.webhookTimeout())
	defer cancel()
	outcome, err := s.deps.Reconciler.Handle(ctx, ev)
	if err != nil {
		metrics.IncWebhookRequest("failed")
		logging.With(ctx, s.log).Error().Err(err).Str("type", ev.Type).Msg("webhook processing failed")
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "error": err.Error()})
		return
	}
	metrics.IncWebhookRequest(string(outcome))
	writeJSON(w, http.StatusOK, map[string]any{"received": true})
}
