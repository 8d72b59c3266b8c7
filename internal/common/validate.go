package common

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator instance. Field names in errors use json tags.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = validate.RegisterValidation("money", validateMoney)
	})
	return validate
}

// ValidateStruct validates v and converts failures into a VALIDATION_ERROR AppError
// with a field -> rule map as details.
func ValidateStruct(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Validation("invalid request payload")
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		key := fe.Namespace()
		if idx := strings.Index(key, "."); idx >= 0 {
			key = key[idx+1:]
		}
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		fields[key] = rule
	}
	return Validation("validation failed").WithDetails(map[string]any{"fields": fields})
}

// MaxMoney is the largest price a NUMERIC(12,2) column holds.
var MaxMoney = decimal.RequireFromString("9999999999.99")

// validateMoney accepts positive decimal strings with at most two fractional digits
// up to MaxMoney.
func validateMoney(fl validator.FieldLevel) bool {
	raw := strings.TrimSpace(fl.Field().String())
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return false
	}
	if !d.IsPositive() || d.GreaterThan(MaxMoney) {
		return false
	}
	return d.Exponent() >= -2 || d.Equal(d.Round(2))
}
