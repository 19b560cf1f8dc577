package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	perrors "github.com/kristinauko/BookStoreInventory/internal/errors"
)

const (
	reasonEmpty = "must not be empty"
)

var validate = newValidator()

func newValidator() func(any) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return func(dto any) error {
		err := v.Struct(dto)
		if err == nil {
			return nil
		}
		var vErrs validator.ValidationErrors
		if !errors.As(err, &vErrs) || len(vErrs) == 0 {
			return fmt.Errorf("validation failed: %w", err)
		}
		return toValidationError(vErrs[0])
	}
}

// toValidationError reports the first failing field.
func toValidationError(fe validator.FieldError) *perrors.ValidationError {
	switch {
	case fe.Kind() == reflect.String && (fe.Tag() == "required" || fe.Tag() == "min"):
		return perrors.NewValidationError(fe.Field(), reasonEmpty)
	case fe.Tag() == "min":
		return perrors.NewValidationError(fe.Field(), reasonNegative)
	default:
		return perrors.NewValidationError(fe.Field(), "failed on rule: "+fe.Tag())
	}
}
