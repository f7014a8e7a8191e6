package common

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	validator "github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate runs struct tag validation and converts failures into a ValidationError whose details
// map each offending field to the failed rule.
func Validate(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ValidationError("invalid payload")
	}
	details := make(map[string]string, len(fieldErrs))
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		name := fe.Field()
		if ns := fe.Namespace(); ns != "" {
			if idx := strings.Index(ns, "."); idx >= 0 {
				name = ns[idx+1:]
			}
		}
		details[name] = fe.Tag()
		fields = append(fields, name)
	}
	appErr := ValidationError("invalid fields: %s", strings.Join(fields, ", "))
	appErr.Details = details
	return appErr
}
