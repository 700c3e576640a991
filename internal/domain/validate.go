package domain

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Sanitize trims surrounding whitespace from the free-text fields
func (in *ReceiptInput) Sanitize() {
	in.Date = strings.TrimSpace(in.Date)
	in.Company = strings.TrimSpace(in.Company)
	in.Item = strings.TrimSpace(in.Item)
}

// Sanitize trims the set fields of the update
func (u *ReceiptUpdate) Sanitize() {
	for _, f := range []*string{u.Date, u.Company, u.Item} {
		if f != nil {
			*f = strings.TrimSpace(*f)
		}
	}
}

// Validate checks the receipt input and returns a *ValidationError when malformed
func (in *ReceiptInput) Validate() error {
	return toValidationError(getValidator().Struct(in))
}

// Validate checks the set fields of a partial update
func (u *ReceiptUpdate) Validate() error {
	return toValidationError(getValidator().Struct(u))
}

func toValidationError(err error) error {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Fields: []FieldError{{Field: "receipt", Message: err.Error()}}}
	}

	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{
			Field:   strings.ToLower(fe.Field()),
			Message: fieldMessage(fe),
		})
	}
	return &ValidationError{Fields: fields}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "datetime":
		return "must be a date in YYYY-MM-DD format"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return "is invalid"
	}
}
