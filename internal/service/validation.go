package service

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/noah-isme/wms-audit-api/pkg/errors"
)

// structError converts validator failures into a validation error naming every field.
func structError(err error, message string) *appErrors.Error {
	appErr := appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			appErr.WithField(fe.Namespace(), fieldMessage(fe))
		}
	}
	return appErr
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// fieldErrors collects domain rule violations before they are returned as one validation error.
type fieldErrors struct {
	fields map[string]string
	order  []string
}

func (f *fieldErrors) add(field, message string) {
	if f.fields == nil {
		f.fields = make(map[string]string)
	}
	if _, exists := f.fields[field]; !exists {
		f.order = append(f.order, field)
	}
	f.fields[field] = message
}

func (f *fieldErrors) empty() bool {
	return len(f.fields) == 0
}

// err returns nil when nothing was recorded. The message is the first violation.
func (f *fieldErrors) err() error {
	if f.empty() {
		return nil
	}
	first := f.order[0]
	e := appErrors.Clone(appErrors.ErrValidation, first+": "+f.fields[first])
	for _, field := range f.order {
		e.WithField(field, f.fields[field])
	}
	return e
}
