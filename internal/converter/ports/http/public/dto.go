package public

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/langowen/converter/internal/entities"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type LoginRequest struct {
	UserName string `json:"userName" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

type LatestRequest struct {
	BaseCurrency string `validate:"required,len=3,alpha,uppercase"`
}

type ConvertRequest struct {
	FromCurrency string          `json:"fromCurrency" validate:"required,len=3,alpha,uppercase"`
	ToCurrency   string          `json:"toCurrency" validate:"required,len=3,alpha,uppercase"`
	Amount       decimal.Decimal `json:"amount" validate:"gt=0,lte=1000000"`
}

type ConvertResponse struct {
	ConvertedRate json.Number `json:"convertedRate"`
}

type HistoryRequest struct {
	BaseCurrency string `validate:"required,len=3,alpha,uppercase"`
	StartDate    string `validate:"required,datetime=2006-01-02"`
	EndDate      string `validate:"required,datetime=2006-01-02"`
	Page         int    `validate:"gte=1"`
	PageSize     int    `validate:"gte=1,lte=500"`
}

type HistoryResponse struct {
	Base      string                            `json:"base"`
	StartDate string                            `json:"startDate"`
	EndDate   string                            `json:"endDate"`
	Page      int                               `json:"page"`
	PageSize  int                               `json:"pageSize"`
	Total     int                               `json:"total"`
	Rates     map[string]map[string]json.Number `json:"rates"`
}

type ErrorResponse struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	return v
}

// validate runs struct validation and turns failures into a single
// entities.ValidationError.
func validate(v *validator.Validate, req interface{}) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return entities.NewValidationError("invalid request: %v", err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fieldMessage(fe))
	}

	return entities.NewValidationError("%s", strings.Join(msgs, " "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required.", fe.Field())
	case "len":
		return fmt.Sprintf("%s must be %s characters.", fe.Field(), fe.Param())
	case "alpha", "uppercase":
		return fmt.Sprintf("%s must be an uppercase ISO 4217 currency code.", fe.Field())
	case "datetime":
		return fmt.Sprintf("%s must be a date in YYYY-MM-DD format.", fe.Field())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s.", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s.", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s cannot exceed %s.", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid.", fe.Field())
	}
}

func numbers(rates entities.Rates) map[string]json.Number {
	result := make(map[string]json.Number, len(rates))
	for code, rate := range rates {
		result[code] = json.Number(rate.String())
	}
	return result
}
