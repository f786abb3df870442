package entities

import (
	"regexp"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

var currencyCodeRe = regexp.MustCompile(`^[A-Z]{3}$`)

// Rates maps a currency code to its rate against the snapshot base.
type Rates map[string]decimal.Decimal

type RateSnapshot struct {
	Base  string
	Date  time.Time
	Rates Rates
}

type DailyRates struct {
	Date  time.Time
	Rates Rates
}

// HistoricalRates is one page of a historical range, ordered by ascending date.
type HistoricalRates struct {
	Base      string
	StartDate time.Time
	EndDate   time.Time
	Page      int
	PageSize  int
	Total     int
	Entries   []DailyRates
}

func (h *HistoricalRates) ByDate() map[string]Rates {
	result := make(map[string]Rates, len(h.Entries))
	for _, e := range h.Entries {
		result[e.Date.Format(DateLayout)] = e.Rates
	}
	return result
}

type ConversionRequest struct {
	From   string
	To     string
	Amount decimal.Decimal
}

func (r ConversionRequest) Validate() error {
	if err := ValidateCurrencyCode(r.From); err != nil {
		return err
	}
	if err := ValidateCurrencyCode(r.To); err != nil {
		return err
	}
	if r.Amount.IsNegative() {
		return NewValidationError("amount must not be negative")
	}
	return nil
}

type HistoricalQuery struct {
	Base      string
	StartDate time.Time
	EndDate   time.Time
	Page      int
	PageSize  int
}

func (q HistoricalQuery) Validate() error {
	if err := ValidateCurrencyCode(q.Base); err != nil {
		return err
	}
	if q.StartDate.IsZero() || q.EndDate.IsZero() {
		return NewValidationError("start date and end date are required")
	}
	if q.StartDate.After(q.EndDate) {
		return NewValidationError("start date must not be after end date")
	}
	if q.Page < 1 {
		return NewValidationError("page must be greater than or equal to 1")
	}
	if q.PageSize < 1 {
		return NewValidationError("page size must be greater than or equal to 1")
	}
	return nil
}

func ValidateCurrencyCode(code string) error {
	if !currencyCodeRe.MatchString(code) {
		return NewValidationError("currency code %q must be 3 uppercase letters", code)
	}
	return nil
}

// SortDaily orders a date keyed rate set by ascending date.
func SortDaily(byDate map[string]Rates) ([]DailyRates, error) {
	result := make([]DailyRates, 0, len(byDate))
	for day, rates := range byDate {
		date, err := time.Parse(DateLayout, day)
		if err != nil {
			return nil, err
		}
		result = append(result, DailyRates{Date: date, Rates: rates})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})

	return result, nil
}
