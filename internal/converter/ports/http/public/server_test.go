package public

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/langowen/converter/deploy/config"
	"github.com/langowen/converter/internal/converter/auth"
	"github.com/langowen/converter/internal/converter/metrics"
	"github.com/langowen/converter/internal/converter/service"
	"github.com/langowen/converter/internal/entities"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConverter struct {
	rates   entities.Rates
	history *entities.HistoricalRates
	err     error
	lastReq entities.ConversionRequest
	lastQ   entities.HistoricalQuery
}

func (f *fakeConverter) GetLatestRates(context.Context, string) (entities.Rates, error) {
	return f.rates, f.err
}

func (f *fakeConverter) ConvertCurrency(_ context.Context, req entities.ConversionRequest) (decimal.Decimal, error) {
	f.lastReq = req
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return req.Amount.Mul(f.rates[req.To]), nil
}

func (f *fakeConverter) GetHistoricalRates(_ context.Context, q entities.HistoricalQuery) (*entities.HistoricalRates, error) {
	f.lastQ = q
	return f.history, f.err
}

type testEnv struct {
	handler   http.Handler
	converter *fakeConverter
	metrics   *metrics.Metrics
}

func newTestEnv(t *testing.T, rate string) *testEnv {
	t.Helper()

	cfg := &config.Config{}
	cfg.HTTPServer.Port = "0"
	cfg.RateLimit.Rate = rate

	users, err := auth.ParseUsers([]string{"admin:s3cret:Admin", "guest:guest:Guest"})
	require.NoError(t, err)
	authenticator, err := auth.NewAuthenticator("test-secret", "currency-converter", time.Hour, users)
	require.NoError(t, err)

	conv := &fakeConverter{rates: entities.Rates{"EUR": decimal.RequireFromString("0.85")}}
	factory := service.NewFactory()
	factory.Register(service.Frankfurter, conv)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	srv, err := NewServer(cfg, Deps{
		Providers: factory,
		Provider:  service.Frankfurter,
		Auth:      authenticator,
		Metrics:   m,
		Gatherer:  reg,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	return &testEnv{handler: srv.Server.Handler, converter: conv, metrics: m}
}

func (e *testEnv) do(t *testing.T, method, target string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	req.RemoteAddr = "192.0.2.1:1234"
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	return rec
}

func (e *testEnv) login(t *testing.T) map[string]string {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/api/auth/login",
		LoginRequest{UserName: "guest", Password: "guest"},
		map[string]string{"clientid": "client-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.Token)

	return map[string]string{
		"clientid":      "client-1",
		"Authorization": "Bearer " + resp.Token,
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestConvert_Success(t *testing.T) {
	env := newTestEnv(t, "100-M")
	headers := env.login(t)

	rec := env.do(t, http.MethodPost, "/api/v1/converter/convert",
		map[string]interface{}{"fromCurrency": "USD", "toCurrency": "EUR", "amount": 100},
		headers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"convertedRate":85}`, rec.Body.String())
	assert.Equal(t, "USD", env.converter.lastReq.From)
}

func TestConvert_Validation(t *testing.T) {
	env := newTestEnv(t, "100-M")
	headers := env.login(t)

	tests := []struct {
		name string
		body map[string]interface{}
		want string
	}{
		{
			name: "zero amount",
			body: map[string]interface{}{"fromCurrency": "USD", "toCurrency": "EUR", "amount": 0},
			want: "Amount must be greater than 0.",
		},
		{
			name: "too large",
			body: map[string]interface{}{"fromCurrency": "USD", "toCurrency": "EUR", "amount": 1000001},
			want: "Amount cannot exceed 1000000.",
		},
		{
			name: "lower case code",
			body: map[string]interface{}{"fromCurrency": "usd", "toCurrency": "EUR", "amount": 1},
			want: "FromCurrency must be an uppercase ISO 4217 currency code.",
		},
		{
			name: "missing code",
			body: map[string]interface{}{"toCurrency": "EUR", "amount": 1},
			want: "FromCurrency is required.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/converter/convert", tt.body, headers)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, decodeError(t, rec).Message)
		})
	}
}

func TestConvert_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{
			name:    "excluded",
			err:     entities.ErrExcludedCurrency,
			status:  http.StatusBadRequest,
			message: "Conversion involving excluded currencies is not allowed.",
		},
		{
			name: "upstream",
			err: errors.Wrap(&entities.ProviderError{
				Provider:   "frankfurter",
				StatusCode: http.StatusInternalServerError,
				Status:     "500 (Internal Server Error)",
			}, "service.ConvertCurrency"),
			status:  http.StatusBadGateway,
			message: "provider frankfurter: response status code does not indicate success: 500 (Internal Server Error)",
		},
		{
			name: "upstream body is not exposed",
			err: errors.Wrap(&entities.ProviderError{
				Provider:   "frankfurter",
				StatusCode: http.StatusServiceUnavailable,
				Status:     "503 (Service Unavailable)",
				Err:        errors.New(`{"message":"maintenance on node fx-internal-3"}`),
			}, "service.ConvertCurrency"),
			status:  http.StatusBadGateway,
			message: "provider frankfurter: response status code does not indicate success: 503 (Service Unavailable)",
		},
		{
			name:    "unknown provider",
			err:     errors.Wrap(entities.ErrUnknownProvider, "service.Factory.Provider"),
			status:  http.StatusInternalServerError,
			message: internalErrorMessage,
		},
		{
			name:    "circuit open",
			err:     errors.Wrap(entities.ErrCircuitOpen, "service.ConvertCurrency"),
			status:  http.StatusServiceUnavailable,
			message: entities.ErrCircuitOpen.Error(),
		},
		{
			name:    "deadline",
			err:     errors.Wrap(context.DeadlineExceeded, "service.ConvertCurrency"),
			status:  http.StatusGatewayTimeout,
			message: "request timed out",
		},
		{
			name:    "unknown",
			err:     errors.New("boom"),
			status:  http.StatusInternalServerError,
			message: internalErrorMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, "100-M")
			headers := env.login(t)
			env.converter.err = tt.err

			rec := env.do(t, http.MethodPost, "/api/v1/converter/convert",
				map[string]interface{}{"fromCurrency": "USD", "toCurrency": "TRY", "amount": 10},
				headers)
			require.Equal(t, tt.status, rec.Code)

			resp := decodeError(t, rec)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.message, resp.Message)
		})
	}
}

func TestLatest(t *testing.T) {
	env := newTestEnv(t, "100-M")
	headers := env.login(t)

	rec := env.do(t, http.MethodGet, "/api/v1/converter/latest?baseCurrency=USD", nil, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"EUR":0.85}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/v1/converter/latest?baseCurrency=US", nil, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t, "100-M")
	headers := env.login(t)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	env.converter.history = &entities.HistoricalRates{
		Base:      "USD",
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 9),
		Page:      2,
		PageSize:  2,
		Total:     10,
		Entries: []entities.DailyRates{
			{Date: start.AddDate(0, 0, 2), Rates: entities.Rates{"EUR": decimal.RequireFromString("0.9")}},
			{Date: start.AddDate(0, 0, 3), Rates: entities.Rates{"EUR": decimal.RequireFromString("0.91")}},
		},
	}

	rec := env.do(t, http.MethodGet,
		"/api/v1/converter/history?baseCurrency=USD&startDate=2024-01-01&endDate=2024-01-10&page=2&pageSize=2",
		nil, headers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{
		"base": "USD",
		"startDate": "2024-01-01",
		"endDate": "2024-01-10",
		"page": 2,
		"pageSize": 2,
		"total": 10,
		"rates": {"2024-01-03": {"EUR": 0.9}, "2024-01-04": {"EUR": 0.91}}
	}`, rec.Body.String())

	assert.Equal(t, start, env.converter.lastQ.StartDate)
	assert.Equal(t, 2, env.converter.lastQ.Page)

	rec = env.do(t, http.MethodGet,
		"/api/v1/converter/history?baseCurrency=USD&startDate=01-01-2024&endDate=2024-01-10",
		nil, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet,
		"/api/v1/converter/history?baseCurrency=USD&startDate=2024-01-01&endDate=2024-01-10&page=x",
		nil, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t, "100-M")

	rec := env.do(t, http.MethodGet, "/api/v1/converter/latest?baseCurrency=USD", nil,
		map[string]string{"clientid": "client-1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/converter/latest?baseCurrency=USD", nil,
		map[string]string{"clientid": "client-1", "Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth/login",
		LoginRequest{UserName: "guest", Password: "wrong"},
		map[string]string{"clientid": "client-1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth/login",
		LoginRequest{UserName: "guest"},
		map[string]string{"clientid": "client-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Password is required.", decodeError(t, rec).Message)
}

func TestClientIDRequired(t *testing.T) {
	env := newTestEnv(t, "100-M")
	headers := env.login(t)
	delete(headers, "clientid")

	rec := env.do(t, http.MethodGet, "/api/v1/converter/latest?baseCurrency=USD", nil, headers)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "clientid header is required", decodeError(t, rec).Message)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, "3-M")
	headers := env.login(t)

	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodGet, "/api/v1/converter/latest?baseCurrency=USD", nil, headers)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/converter/latest?baseCurrency=USD", nil, headers)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, "100-M")
	headers := env.login(t)
	env.do(t, http.MethodGet, "/api/v1/converter/latest?baseCurrency=USD", nil, headers)

	rec := env.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "converter_http_request_duration_seconds")
	assert.Contains(t, rec.Body.String(), `route="/api/v1/converter/latest"`)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, statusClientClosedRequest, StatusFor(errors.Wrap(context.Canceled, "op")))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(entities.ErrUnknownProvider))
}
