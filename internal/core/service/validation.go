package service

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/transcope/fleet-auth/internal/core/domain"
)

// signupFields and loginFields carry the validation rules for each operation.
// Field names reported to clients come from the json tags.
type signupFields struct {
	Name     string `json:"name"     validate:"required"`
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,maxbytes=72"`
	Role     string `json:"role"     validate:"omitempty,oneof=manager dispatcher safety_officer financial_analyst"`
}

type loginFields struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// fieldMessages overrides the generic message for a field/tag pair.
var fieldMessages = map[string]string{
	"name.required":     "Name is required",
	"email.required":    "Valid email is required",
	"email.email":       "Valid email is required",
	"password.required": "Password is required",
	"password.min":      "Password must be at least 6 characters",
	"password.maxbytes": "Password must be at most 72 bytes",
	"role.oneof":        "Invalid role",
}

// structValidator wraps go-playground/validator and converts its errors into
// a *domain.ValidationError.
type structValidator struct {
	v *validator.Validate
}

func newStructValidator() *structValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	// bcrypt rejects inputs over 72 bytes; max= would count runes.
	_ = v.RegisterValidation("maxbytes", maxBytes)
	return &structValidator{v: v}
}

func (sv *structValidator) validate(i any) error {
	err := sv.v.Struct(i)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	verr := &domain.ValidationError{Fields: make([]domain.FieldError, 0, len(ve))}
	for _, fe := range ve {
		verr.Fields = append(verr.Fields, domain.FieldError{
			Field:   fe.Field(),
			Message: fieldError(fe),
		})
	}
	return verr
}

func maxBytes(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return len(fl.Field().String()) <= limit
}

// fieldError converts a single FieldError into a human-readable message.
func fieldError(fe validator.FieldError) string {
	field := fe.Field()
	if msg, ok := fieldMessages[field+"."+fe.Tag()]; ok {
		return msg
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "maxbytes":
		return fmt.Sprintf("%s must be at most %s bytes", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}
