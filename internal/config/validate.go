package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(f reflect.Value) any {
		return f.Interface().(Duration).Duration
	}, Duration{})
	return v
}

// Validate checks every field constraint and reports all failures at once.
// It does not check the alert destination; see CheckDestination.
func (c *Config) Validate() error {
	err := newValidator().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("invalid config:\n  - %s", strings.Join(msgs, "\n  - "))
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s: is required", field)
	case "oneof":
		return fmt.Sprintf("%s: %v is not one of [%s]", field, fe.Value(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s: %v must be at least %s", field, fe.Value(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s: %v must be at most %s", field, fe.Value(), fe.Param())
	default:
		return fmt.Sprintf("%s: failed %s", field, fe.Tag())
	}
}
