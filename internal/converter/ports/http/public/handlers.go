package public

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/langowen/converter/internal/converter/ports/http/public/middleware/clientid"
	"github.com/langowen/converter/internal/converter/service"
	"github.com/langowen/converter/internal/entities"
	"github.com/pkg/errors"
)

const (
	defaultPage     = 1
	defaultPageSize = 10

	statusClientClosedRequest = 499
	internalErrorMessage      = "An unexpected error occurred. Please try again later."
)

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := validate(s.validate, req); err != nil {
		s.respondError(w, r, err)
		return
	}

	user, err := s.auth.Authenticate(req.UserName, req.Password)
	if err != nil {
		RespondWithError(w, http.StatusUnauthorized, err.Error())
		return
	}

	token, err := s.auth.GenerateToken(user, clientid.FromContext(r.Context()))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	RespondWithJSON(w, http.StatusOK, LoginResponse{Token: token})
}

func (s *Server) GetLatestRates(w http.ResponseWriter, r *http.Request) {
	req := LatestRequest{BaseCurrency: r.URL.Query().Get("baseCurrency")}
	if err := validate(s.validate, req); err != nil {
		s.respondError(w, r, err)
		return
	}

	converter, err := s.converter()
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	rates, err := converter.GetLatestRates(r.Context(), req.BaseCurrency)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	RespondWithJSON(w, http.StatusOK, numbers(rates))
}

func (s *Server) ConvertCurrency(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := validate(s.validate, req); err != nil {
		s.respondError(w, r, err)
		return
	}

	converter, err := s.converter()
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	result, err := converter.ConvertCurrency(r.Context(), entities.ConversionRequest{
		From:   req.FromCurrency,
		To:     req.ToCurrency,
		Amount: req.Amount,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	RespondWithJSON(w, http.StatusOK, ConvertResponse{ConvertedRate: json.Number(result.String())})
}

func (s *Server) GetHistoricalRates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := intParam(q.Get("page"), defaultPage)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "page must be an integer")
		return
	}
	pageSize, err := intParam(q.Get("pageSize"), defaultPageSize)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "pageSize must be an integer")
		return
	}

	req := HistoryRequest{
		BaseCurrency: q.Get("baseCurrency"),
		StartDate:    q.Get("startDate"),
		EndDate:      q.Get("endDate"),
		Page:         page,
		PageSize:     pageSize,
	}
	if err := validate(s.validate, req); err != nil {
		s.respondError(w, r, err)
		return
	}

	// formats were checked by the validator
	start, _ := time.Parse(entities.DateLayout, req.StartDate)
	end, _ := time.Parse(entities.DateLayout, req.EndDate)

	converter, err := s.converter()
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	history, err := converter.GetHistoricalRates(r.Context(), entities.HistoricalQuery{
		Base:      req.BaseCurrency,
		StartDate: start,
		EndDate:   end,
		Page:      req.Page,
		PageSize:  req.PageSize,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	rates := make(map[string]map[string]json.Number, len(history.Entries))
	for day, dayRates := range history.ByDate() {
		rates[day] = numbers(dayRates)
	}

	RespondWithJSON(w, http.StatusOK, HistoryResponse{
		Base:      history.Base,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Page:      history.Page,
		PageSize:  history.PageSize,
		Total:     history.Total,
		Rates:     rates,
	})
}

func (s *Server) converter() (service.Converter, error) {
	return s.providers.Provider(s.provider)
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)

	log := s.log.With("path", r.URL.Path, "status", status, "error", err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed")
	} else {
		log.Warn("request failed")
	}

	RespondWithError(w, status, publicMessage(err, status))
}

// StatusFor maps an error kind to the HTTP status returned to clients.
func StatusFor(err error) int {
	switch entities.KindOf(err) {
	case entities.KindValidation:
		return http.StatusBadRequest
	case entities.KindUpstream:
		return http.StatusBadGateway
	case entities.KindCircuitOpen:
		return http.StatusServiceUnavailable
	case entities.KindCanceled:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return statusClientClosedRequest
	case entities.KindConfiguration:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func publicMessage(err error, status int) string {
	var (
		validationErr *entities.ValidationError
		providerErr   *entities.ProviderError
	)

	switch {
	case errors.As(err, &validationErr):
		return validationErr.Error()
	case errors.As(err, &providerErr):
		return providerErr.StatusMessage()
	case errors.Is(err, entities.ErrCircuitOpen):
		return entities.ErrCircuitOpen.Error()
	case status == http.StatusGatewayTimeout:
		return "request timed out"
	case status == statusClientClosedRequest:
		return "request canceled"
	default:
		return internalErrorMessage
	}
}

func RespondWithJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")

	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, ErrorResponse{StatusCode: code, Message: message})
}
