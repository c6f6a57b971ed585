// Package server exposes the quote service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"shippingquote/internal/logger"
	"shippingquote/internal/pricing"
	"shippingquote/internal/quote"
)

// QuoteService answers quote requests.
type QuoteService interface {
	GetQuote(ctx context.Context, req quote.Request) (quote.Response, error)
}

type Options struct {
	Logger         *zap.Logger
	FreeShipping   pricing.FreeShipping
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

type Server struct {
	svc  QuoteService
	opts Options
	log  *zap.Logger
}

// New returns the HTTP handler for svc.
func New(svc QuoteService, opts Options) http.Handler {
	if opts.FreeShipping.StandardLabel == "" {
		opts.FreeShipping = pricing.DefaultFreeShipping()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	s := &Server{svc: svc, opts: opts, log: logger.OrNop(opts.Logger)}

	r := chi.NewRouter()
	r.Use(requestID(s.log))
	r.Use(accessLog)
	r.Use(recoverPanic)
	r.Use(limitBody(opts.MaxBodyBytes))
	r.Use(middleware.Compress(5, "application/json"))
	r.Use(jsonHeaders)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrorJSON(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeErrorJSON(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/shipping/quote", s.handleGetQuote)
	r.Post("/shipping/quote", s.handlePostQuote)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// QuoteRequest is the body of POST /shipping/quote. OrderTotal is optional;
// when present the free-shipping promotion is applied to the answer.
type QuoteRequest struct {
	PostalCode  string           `json:"postalCode"`
	WeightGrams float64          `json:"weightGrams"`
	OrderTotal  *decimal.Decimal `json:"orderTotal,omitempty"`
}

func (s *Server) handlePostQuote(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
			writeErrorJSON(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "content type must be application/json")
			return
		}
	}

	var body QuoteRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorJSON(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
			return
		}
		writeErrorJSON(w, http.StatusBadRequest, "invalid_json", "invalid JSON body")
		return
	}
	s.quote(w, r, body)
}

func (s *Server) handleGetQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	body := QuoteRequest{PostalCode: q.Get("postalCode")}
	if raw := strings.TrimSpace(q.Get("weightGrams")); raw != "" {
		wg, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeErrorJSON(w, http.StatusBadRequest, "invalid_weight", "weightGrams must be a number")
			return
		}
		body.WeightGrams = wg
	}
	if raw := strings.TrimSpace(q.Get("orderTotal")); raw != "" {
		total, err := decimal.NewFromString(raw)
		if err != nil {
			writeErrorJSON(w, http.StatusBadRequest, "invalid_order_total", "orderTotal must be a number")
			return
		}
		body.OrderTotal = &total
	}
	s.quote(w, r, body)
}

func (s *Server) quote(w http.ResponseWriter, r *http.Request, body QuoteRequest) {
	ctx := r.Context()
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}

	res, err := s.svc.GetQuote(ctx, quote.Request{PostalCode: body.PostalCode, WeightGrams: body.WeightGrams})
	switch {
	case errors.Is(err, quote.ErrInvalidWeight):
		writeErrorJSON(w, http.StatusBadRequest, "invalid_weight", err.Error())
		return
	case errors.Is(err, quote.ErrInvalidPostalCode):
		writeErrorJSON(w, http.StatusBadRequest, "invalid_postal_code", err.Error())
		return
	case err != nil:
		logger.FromContext(ctx, s.log).Error("quote failed", zap.Error(err))
		writeErrorJSON(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	if body.OrderTotal != nil {
		res.Options = s.opts.FreeShipping.Apply(res.Options, *body.OrderTotal)
		pricing.SortByPrice(res.Options)
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeErrorJSON(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
