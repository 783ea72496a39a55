package widgets

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError lists the offending widget fields keyed by column name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+" "+e.Fields[name])
	}
	return fmt.Sprintf("%s: %s", ErrInvalidWidget.Error(), strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidWidget
}

var widgetValidator = newWidgetValidator()

func newWidgetValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		for _, setting := range strings.Split(field.Tag.Get("gorm"), ";") {
			if name, found := strings.CutPrefix(setting, "column:"); found {
				return name
			}
		}
		return field.Name
	})
	return v
}

func validateWidget(widget Widget) error {
	err := widgetValidator.Struct(widget)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err
	}
	result := &ValidationError{Fields: make(map[string]string, len(fieldErrors))}
	for _, fieldError := range fieldErrors {
		result.Fields[fieldError.Field()] = describe(fieldError)
	}
	return result
}

func describe(fieldError validator.FieldError) string {
	switch fieldError.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fieldError.Param()
	case "gte":
		return "must be greater than or equal to " + fieldError.Param()
	case "lte":
		return "must be less than or equal to " + fieldError.Param()
	case "max":
		return fmt.Sprintf("must not exceed %s characters", fieldError.Param())
	default:
		return "is invalid"
	}
}
