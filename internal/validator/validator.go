package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// AskRequest is the body of POST /ask.
type AskRequest struct {
	Question string `json:"question" validate:"required,notblank"`
}

func Validate(s any) error {
	return validate.Struct(s)
}

// Check runs Validate and flattens the result into field messages.
func Check(s any) ValidationResult {
	err := Validate(s)
	if err == nil {
		return ValidationResult{Valid: true, Errors: []ValidationError{}}
	}

	result := ValidationResult{Valid: false}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		result.Errors = append(result.Errors, ValidationError{Message: err.Error()})
		return result
	}

	for _, fe := range verrs {
		result.Errors = append(result.Errors, ValidationError{
			Field:   strings.ToLower(fe.Field()),
			Message: message(fe),
		})
	}
	return result
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("%s is required and must be a non-empty string", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
