package service

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/langowen/converter/internal/entities"
	"github.com/shopspring/decimal"
)

const (
	opLatest  = "latest"
	opConvert = "convert"
	opHistory = "history"
)

// Cache keys fingerprint provider, operation and normalized arguments,
// e.g. "frankfurter:convert:USD:EUR". The amount is never part of a key.
func LatestKey(provider, base string) string {
	return cacheKey(provider, opLatest, base)
}

func ConvertKey(provider, from, to string) string {
	return cacheKey(provider, opConvert, from, to)
}

func HistoryKey(provider, base string, start, end time.Time) string {
	return cacheKey(provider, opHistory, base, start.Format(entities.DateLayout), end.Format(entities.DateLayout))
}

func cacheKey(provider, operation string, args ...string) string {
	parts := make([]string, 0, len(args)+2)
	parts = append(parts, strings.ToLower(provider), operation)
	for _, a := range args {
		parts = append(parts, strings.ToUpper(strings.TrimSpace(a)))
	}
	return strings.Join(parts, ":")
}

func encodeRate(rate decimal.Decimal) []byte {
	return []byte(rate.String())
}

func decodeRate(raw []byte) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(string(raw)))
}

func encodeRates(rates entities.Rates) ([]byte, error) {
	return json.Marshal(rates)
}

func decodeRates(raw []byte) (entities.Rates, error) {
	var rates entities.Rates
	if err := json.Unmarshal(raw, &rates); err != nil {
		return nil, err
	}
	return rates, nil
}

func encodeHistory(byDate map[string]entities.Rates) ([]byte, error) {
	return json.Marshal(byDate)
}

func decodeHistory(raw []byte) ([]entities.DailyRates, error) {
	var byDate map[string]entities.Rates
	if err := json.Unmarshal(raw, &byDate); err != nil {
		return nil, err
	}
	return entities.SortDaily(byDate)
}
