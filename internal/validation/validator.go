// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

// Package validation validates store inputs with go-playground/validator v10
// before any I/O happens. Every failure wraps ErrValidation so callers can
// tell malformed input apart from storage faults:
//
//	if errors.Is(err, validation.ErrValidation) { ... }
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// ErrValidation is wrapped by every error this package returns.
var ErrValidation = errors.New("validation failed")

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError describes one failed field.
type FieldError struct {
	Field   string
	Tag     string
	Param   string
	Message string
}

// Error is a set of field failures.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	messages := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		messages[i] = f.Message
	}
	return ErrValidation.Error() + ": " + strings.Join(messages, "; ")
}

// Unwrap lets errors.Is match ErrValidation.
func (e *Error) Unwrap() error {
	return ErrValidation
}

// GetValidator returns the shared validator, initializing it once.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// identifier: a printable id with no whitespace, used for tenant,
		// room, user, booking, event and model identities.
		if err := validate.RegisterValidation("identifier", validIdentifier); err != nil {
			panic(fmt.Sprintf("register identifier validator: %v", err))
		}
	})
	return validate
}

func validIdentifier(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" || len(s) > 128 || s == "." || s == ".." {
		return false
	}
	for _, r := range s {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) || r == '/' || r == '\\' {
			return false
		}
	}
	return true
}

// Struct validates s and returns nil or an *Error.
func Struct(s interface{}) error {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	out := &Error{Fields: make([]FieldError, len(fieldErrs))}
	for i, fe := range fieldErrs {
		out.Fields[i] = FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: translateError(fe),
		}
	}
	return out
}

// Newf builds a validation error for checks that struct tags cannot express.
func Newf(field, format string, args ...interface{}) error {
	return &Error{Fields: []FieldError{{
		Field:   field,
		Tag:     "custom",
		Message: field + " " + fmt.Sprintf(format, args...),
	}}}
}

var errorMessageTemplates = map[string]string{
	"required":   "%s is required",
	"identifier": "%s must be a non-empty identifier without whitespace, path separators or dot segments",
}

var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"gt":    "%s must be greater than %s",
	"lt":    "%s must be less than %s",
}

func translateError(fe validator.FieldError) string {
	field, tag, param := fe.Field(), fe.Tag(), fe.Param()

	if template, ok := errorMessageTemplates[tag]; ok {
		return fmt.Sprintf(template, field)
	}
	if template, ok := errorMessageWithParam[tag]; ok {
		return fmt.Sprintf(template, field, param)
	}

	isString := fe.Kind().String() == "string"
	switch tag {
	case "min":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", field, param)
		}
		return fmt.Sprintf("%s must have at least %s", field, param)
	case "max":
		if isString {
			return fmt.Sprintf("%s must be at most %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at most %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}
