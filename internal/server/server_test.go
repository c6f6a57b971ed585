package server_test

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"shippingquote/internal/aggregate"
	"shippingquote/internal/provider"
	"shippingquote/internal/provider/courier"
	"shippingquote/internal/quote"
	"shippingquote/internal/server"
)

type serviceFunc func(ctx context.Context, req quote.Request) (quote.Response, error)

func (f serviceFunc) GetQuote(ctx context.Context, req quote.Request) (quote.Response, error) {
	return f(ctx, req)
}

// helper to parse standardized error
type stdError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type quoteResponse struct {
	Options []struct {
		CarrierLabel     string          `json:"carrierLabel"`
		Price            decimal.Decimal `json:"price"`
		EstimatedTransit string          `json:"estimatedTransit"`
	} `json:"options"`
	NormalizedPostalCode string `json:"normalizedPostalCode"`
}

func realHandler(t *testing.T) http.Handler {
	t.Helper()
	agg := aggregate.New([]provider.Provider{
		courier.New(courier.Jadlog(), nil),
		courier.New(courier.Loggi(), nil),
	})
	return server.New(quote.NewService(agg, nil), server.Options{})
}

func post(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/shipping/quote", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) stdError {
	t.Helper()
	var e stdError
	require.NoErrorf(t, json.Unmarshal(rr.Body.Bytes(), &e), "body=%s", rr.Body.String())
	return e
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	realHandler(t).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	require.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestPostQuote(t *testing.T) {
	t.Parallel()

	rr := post(realHandler(t), `{"postalCode": "01310-100", "weightGrams": 1500}`)

	require.Equalf(t, http.StatusOK, rr.Code, "body=%s", rr.Body.String())
	require.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))

	var res quoteResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Equal(t, "01310100", res.NormalizedPostalCode)
	require.Len(t, res.Options, 4)
	require.Equal(t, "Loggi - Econômico", res.Options[0].CarrierLabel)
	require.True(t, decimal.RequireFromString("59.90").Equal(res.Options[0].Price))
	require.Equal(t, "4-7 dias úteis", res.Options[0].EstimatedTransit)
}

func TestPostQuote_OrderTotalAppliesFreeShipping(t *testing.T) {
	t.Parallel()

	svc := serviceFunc(func(_ context.Context, req quote.Request) (quote.Response, error) {
		return quote.Response{
			Options: []provider.Quote{
				{Label: "Correios - PAC", Price: decimal.RequireFromString("21.45"), EstimatedTransit: "6 dias úteis"},
				{Label: "Correios - SEDEX", Price: decimal.RequireFromString("32.70"), EstimatedTransit: "2 dias úteis"},
			},
			NormalizedPostalCode: "01310100",
		}, nil
	})
	h := server.New(svc, server.Options{})

	var res quoteResponse
	rr := post(h, `{"postalCode": "01310100", "weightGrams": 500, "orderTotal": 200}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Equal(t, "Correios - PAC (Grátis)", res.Options[0].CarrierLabel)
	require.True(t, res.Options[0].Price.IsZero())
	require.Equal(t, "Correios - SEDEX", res.Options[1].CarrierLabel)

	rr = post(h, `{"postalCode": "01310100", "weightGrams": 500, "orderTotal": "199.99"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Equal(t, "Correios - PAC", res.Options[0].CarrierLabel)
}

func TestPostQuote_FreeOptionMovesToFront(t *testing.T) {
	t.Parallel()

	svc := serviceFunc(func(_ context.Context, _ quote.Request) (quote.Response, error) {
		return quote.Response{
			Options: []provider.Quote{
				{Label: "Loggi - Econômico", Price: decimal.RequireFromString("14.90"), EstimatedTransit: "5 dias úteis"},
				{Label: "Correios - PAC", Price: decimal.RequireFromString("21.45"), EstimatedTransit: "6 dias úteis"},
				{Label: "Correios - SEDEX", Price: decimal.RequireFromString("32.70"), EstimatedTransit: "2 dias úteis"},
			},
			NormalizedPostalCode: "01310100",
		}, nil
	})
	h := server.New(svc, server.Options{})

	var res quoteResponse
	rr := post(h, `{"postalCode": "01310100", "weightGrams": 500, "orderTotal": 250}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Len(t, res.Options, 3)
	require.Equal(t, "Correios - PAC (Grátis)", res.Options[0].CarrierLabel)
	require.Equal(t, "Loggi - Econômico", res.Options[1].CarrierLabel)
	require.Equal(t, "Correios - SEDEX", res.Options[2].CarrierLabel)
}

func TestPostQuote_ValidationErrors(t *testing.T) {
	t.Parallel()

	h := realHandler(t)
	cases := []struct {
		body string
		code string
	}{
		{`{"postalCode": "01310100", "weightGrams": 0}`, "invalid_weight"},
		{`{"postalCode": "01310100"}`, "invalid_weight"},
		{`{"postalCode": "0131", "weightGrams": 100}`, "invalid_postal_code"},
		{`{"postalCode": "01310100", "weightGrams": "heavy"}`, "invalid_json"},
		{`{"postalCode": "01310100", "weightGrams": 100, "extra": true}`, "invalid_json"},
		{`not json`, "invalid_json"},
	}
	for _, tc := range cases {
		rr := post(h, tc.body)
		require.Equalf(t, http.StatusBadRequest, rr.Code, "body=%s", tc.body)
		require.Equal(t, tc.code, decodeError(t, rr).Error.Code, tc.body)
	}
}

func TestPostQuote_UnsupportedMediaType(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/shipping/quote", strings.NewReader("postalCode=01310100"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	realHandler(t).ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
	require.Equal(t, "unsupported_media_type", decodeError(t, rr).Error.Code)
}

func TestPostQuote_BodyTooLarge(t *testing.T) {
	t.Parallel()

	h := server.New(serviceFunc(func(context.Context, quote.Request) (quote.Response, error) {
		t.Error("service must not be called")
		return quote.Response{}, nil
	}), server.Options{MaxBodyBytes: 64})

	rr := post(h, `{"postalCode": "`+strings.Repeat("0", 128)+`", "weightGrams": 100}`)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	require.Equal(t, "body_too_large", decodeError(t, rr).Error.Code)
}

func TestGetQuote_QueryParameters(t *testing.T) {
	t.Parallel()

	h := realHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/shipping/quote?postalCode=01310-100&weightGrams=1500", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var res quoteResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Len(t, res.Options, 4)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/shipping/quote?postalCode=01310-100&weightGrams=abc", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "invalid_weight", decodeError(t, rr).Error.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	realHandler(t).ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/shipping/quote", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	require.Equal(t, "method_not_allowed", decodeError(t, rr).Error.Code)
}

func TestNotFound(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	realHandler(t).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "not_found", decodeError(t, rr).Error.Code)
}

func TestPanicIsRecovered(t *testing.T) {
	t.Parallel()

	h := server.New(serviceFunc(func(context.Context, quote.Request) (quote.Response, error) {
		panic("boom")
	}), server.Options{})

	rr := post(h, `{"postalCode": "01310100", "weightGrams": 100}`)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Equal(t, "internal_error", decodeError(t, rr).Error.Code)
}

func TestRequestIDPropagatesToLogs(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	h := server.New(serviceFunc(func(context.Context, quote.Request) (quote.Response, error) {
		return quote.Response{}, nil
	}), server.Options{Logger: zap.New(core)})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, "req-123", rr.Header().Get("X-Request-ID"))
	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "req-123", fields["request_id"])
	require.Equal(t, "/healthz", fields["path"])
	require.EqualValues(t, http.StatusOK, fields["status"])
}

func TestGzipWhenAccepted(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/shipping/quote", strings.NewReader(`{"postalCode": "01310100", "weightGrams": 100}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	rr := httptest.NewRecorder()
	realHandler(t).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "gzip", rr.Header().Get("Content-Encoding"))

	zr, err := gzip.NewReader(rr.Body)
	require.NoError(t, err)
	b, err := io.ReadAll(zr)
	require.NoError(t, err)

	var res quoteResponse
	require.NoError(t, json.Unmarshal(b, &res))
	require.NotEmpty(t, res.Options)
}
