package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"prepaid-subscription/internal/domain"
	"prepaid-subscription/internal/domain/model"
	"prepaid-subscription/internal/infra/api"
	"prepaid-subscription/internal/usecase"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, reason, msg string) {
	writeJSON(w, status, map[string]string{"error": reason, "message": msg})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	reason := domain.ReasonOf(err)
	status := api.StatusFor(reason)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Str("op", op).Str("path", r.URL.Path).Msg("admin request failed")
		msg = "internal error"
	}
	writeError(w, status, reason, msg)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, domain.ReasonInvalidArgument, "Invalid request body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		msg := err.Error()
		if errors.As(err, &ve) && len(ve) > 0 {
			msg = strings.ToLower(ve[0].Field()) + " failed " + ve[0].Tag() + " validation"
		}
		writeError(w, http.StatusBadRequest, domain.ReasonInvalidArgument, msg)
		return false
	}
	return true
}

// page parses 'offset' and 'limit' query parameters with defaults.
func page(r *http.Request) (limit, offset int) {
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ===== Session =====

type sessionRequest struct {
	AdminID string `json:"admin_id" validate:"required,max=128"`
	Email   string `json:"email" validate:"omitempty,email"`
}

// sessionCreateHandler exchanges the API key for a short-lived admin cookie.
func (s *Server) sessionCreateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.Enabled() {
			writeError(w, http.StatusServiceUnavailable, domain.ReasonUnavailable, "admin sessions are not configured")
			return
		}
		tok, ok := bearer(r)
		if !ok || !keyMatches(tok, s.apiKey) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid API key")
			return
		}
		var req sessionRequest
		if !s.decode(w, r, &req) {
			return
		}
		signed, err := s.auth.Mint(w, req.AdminID, req.Email)
		if err != nil {
			s.fail(w, r, "session", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"token": signed})
	}
}

func (s *Server) sessionDeleteHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if s.auth.Enabled() {
			s.auth.Clear(w)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ===== Stats =====

func (s *Server) statsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		codes, err := s.codeUC.Stats(ctx, "")
		if err != nil {
			s.fail(w, r, "stats.codes", err)
			return
		}
		ents, err := s.entitlementUC.Stats(ctx)
		if err != nil {
			s.fail(w, r, "stats.entitlements", err)
			return
		}
		_, purchases, err := s.purchaseUC.List(ctx, 1, 0)
		if err != nil {
			s.fail(w, r, "stats.purchases", err)
			return
		}
		_, failed, err := s.reconcilerUC.ListEvents(ctx, model.OutcomeFailed, 1, 0)
		if err != nil {
			s.fail(w, r, "stats.events", err)
			return
		}

		writeJSON(w, http.StatusOK, struct {
			Codes          map[model.CodeStatus]int        `json:"codes"`
			Entitlements   map[model.EntitlementStatus]int `json:"entitlements"`
			TotalPurchases int                             `json:"total_purchases"`
			FailedEvents   int                             `json:"failed_billing_events"`
		}{
			Codes:          codes,
			Entitlements:   ents,
			TotalPurchases: purchases,
			FailedEvents:   failed,
		})
	}
}

// ===== Purchases =====

type checkoutRequest struct {
	PriceID    string `json:"price_id" validate:"required"`
	Quantity   int    `json:"quantity" validate:"required,min=1"`
	Email      string `json:"email" validate:"omitempty,email"`
	CustomerID string `json:"customer_id"`
}

func (s *Server) checkoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req checkoutRequest
		if !s.decode(w, r, &req) {
			return
		}
		admin := adminFrom(r.Context())
		email := req.Email
		if email == "" {
			email = admin.Email
		}
		sess, err := s.purchaseUC.StartBulkCheckout(r.Context(), usecase.BulkCheckoutInput{
			AdminID:    admin.ID,
			AdminEmail: email,
			CustomerID: req.CustomerID,
			PriceID:    req.PriceID,
			Quantity:   req.Quantity,
		})
		if err != nil {
			s.fail(w, r, "checkout", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{
			"session_id":  sess.ID,
			"url":         sess.URL,
			"customer_id": sess.CustomerID,
		})
	}
}

func (s *Server) portalHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		url, err := s.purchaseUC.PortalSession(r.Context(), adminFrom(r.Context()).ID)
		if err != nil {
			s.fail(w, r, "portal", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": url})
	}
}

type grantRequest struct {
	Quantity     int    `json:"quantity" validate:"required,min=1"`
	Months       int    `json:"months" validate:"min=0,max=120"`
	DurationDays int    `json:"duration_days" validate:"min=0,max=3650"`
	PriceID      string `json:"price_id"`
	ProductID    string `json:"product_id"`
}

func (s *Server) grantHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req grantRequest
		if !s.decode(w, r, &req) {
			return
		}
		p, codes, err := s.purchaseUC.GrantAdmin(r.Context(), usecase.AdminGrantInput{
			AdminID:      adminFrom(r.Context()).ID,
			Quantity:     req.Quantity,
			Months:       req.Months,
			DurationDays: req.DurationDays,
			PriceID:      req.PriceID,
			ProductID:    req.ProductID,
		})
		if err != nil {
			s.fail(w, r, "grant", err)
			return
		}
		writeJSON(w, http.StatusCreated, struct {
			Purchase purchaseDTO `json:"purchase"`
			Codes    []codeDTO   `json:"codes"`
		}{
			Purchase: toPurchaseDTO(p, nil),
			Codes:    toCodeDTOs(codes),
		})
	}
}

func (s *Server) purchasesListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := page(r)
		items, total, err := s.purchaseUC.List(r.Context(), limit, offset)
		if err != nil {
			s.fail(w, r, "purchases.list", err)
			return
		}
		data := make([]purchaseDTO, 0, len(items))
		for _, it := range items {
			data = append(data, toPurchaseDTO(it.Purchase, it.CodeCounts))
		}
		writeJSON(w, http.StatusOK, listResponse[purchaseDTO]{Data: data, Total: total, Limit: limit, Offset: offset})
	}
}

func (s *Server) purchaseGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := s.purchaseUC.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			s.fail(w, r, "purchases.get", err)
			return
		}
		writeJSON(w, http.StatusOK, toPurchaseDTO(sum.Purchase, sum.CodeCounts))
	}
}

func (s *Server) purchaseCodesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := page(r)
		codes, total, err := s.purchaseUC.ListCodes(r.Context(), chi.URLParam(r, "id"), limit, offset)
		if err != nil {
			s.fail(w, r, "purchases.codes", err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse[codeDTO]{Data: toCodeDTOs(codes), Total: total, Limit: limit, Offset: offset})
	}
}

// ===== Codes =====

func (s *Server) codesListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := page(r)
		q := r.URL.Query()
		f := model.CodeFilter{
			Status:     model.CodeStatus(strings.ToLower(q.Get("status"))),
			PurchaseID: q.Get("purchase_id"),
			Search:     q.Get("search"),
			Limit:      limit,
			Offset:     offset,
		}
		codes, total, err := s.codeUC.List(r.Context(), f)
		if err != nil {
			s.fail(w, r, "codes.list", err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse[codeDTO]{Data: toCodeDTOs(codes), Total: total, Limit: limit, Offset: offset})
	}
}

// codesExportHandler returns the full filtered set for client-side CSV export.
func (s *Server) codesExportHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		status := strings.ToLower(q.Get("status"))
		if status == "all" {
			status = ""
		}
		codes, err := s.codeUC.Export(r.Context(), model.CodeFilter{
			Status:     model.CodeStatus(status),
			PurchaseID: q.Get("purchase_id"),
		})
		if err != nil {
			s.fail(w, r, "codes.export", err)
			return
		}
		rows := make([]codeExportRow, 0, len(codes))
		for _, c := range codes {
			rows = append(rows, toCodeExportRow(c))
		}
		writeJSON(w, http.StatusOK, map[string]any{"codes": rows, "total": len(rows)})
	}
}

func (s *Server) codeGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := s.codeUC.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			s.fail(w, r, "codes.get", err)
			return
		}
		writeJSON(w, http.StatusOK, toCodeDTO(c))
	}
}

type revokeRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (s *Server) revokeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req revokeRequest
		if r.ContentLength != 0 && !s.decode(w, r, &req) {
			return
		}
		c, err := s.revocationUC.Revoke(r.Context(), chi.URLParam(r, "id"), req.Reason, adminFrom(r.Context()).ID)
		if err != nil {
			s.fail(w, r, "codes.revoke", err)
			return
		}
		writeJSON(w, http.StatusOK, toCodeDTO(c))
	}
}

func (s *Server) reactivateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := s.revocationUC.Reactivate(r.Context(), chi.URLParam(r, "id"), adminFrom(r.Context()).ID)
		if err != nil {
			s.fail(w, r, "codes.reactivate", err)
			return
		}
		writeJSON(w, http.StatusOK, toCodeDTO(c))
	}
}

func (s *Server) makeAvailableHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := s.revocationUC.MakeAvailable(r.Context(), chi.URLParam(r, "id"), adminFrom(r.Context()).ID)
		if err != nil {
			s.fail(w, r, "codes.make_available", err)
			return
		}
		writeJSON(w, http.StatusOK, toCodeDTO(c))
	}
}

// ===== Billing events =====

func (s *Server) billingEventsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := page(r)
		outcome := model.EventOutcome(strings.ToLower(r.URL.Query().Get("status")))
		events, total, err := s.reconcilerUC.ListEvents(r.Context(), outcome, limit, offset)
		if err != nil {
			s.fail(w, r, "billing_events.list", err)
			return
		}
		data := make([]eventDTO, 0, len(events))
		for _, e := range events {
			data = append(data, eventDTO{
				ID:          e.ID,
				Type:        e.Type,
				Outcome:     e.Outcome,
				Error:       e.Error,
				ReceivedAt:  e.ReceivedAt,
				ProcessedAt: e.ProcessedAt,
			})
		}
		writeJSON(w, http.StatusOK, listResponse[eventDTO]{Data: data, Total: total, Limit: limit, Offset: offset})
	}
}
