// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

// Package validation wraps a singleton go-playground/validator instance with
// the custom tags Shelfwise needs for dataset rows and API queries.
//
//	type ratingRow struct {
//	    ISBN   string `validate:"required,isbn_code"`
//	    Rating int    `validate:"gte=0,lte=10"`
//	}
//	if err := validation.ValidateStruct(&row); err != nil {
//	    // err.Errors()[0].Tag() names the failing rule
//	}
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// isbnCodePattern accepts the identifiers found in the Book-Crossing dump:
// ten or thirteen character ISBNs plus the shorter catalogue codes some
// rows carry. Whitespace, quotes and punctuation are rejected.
var isbnCodePattern = regexp.MustCompile(`^[0-9A-Za-z]{1,13}$`)

// FieldError is a single failed rule.
type FieldError struct {
	field   string
	tag     string
	param   string
	value   interface{}
	message string
}

// Field returns the struct field name.
func (e *FieldError) Field() string { return e.field }

// Tag returns the failing tag, e.g. "lte".
func (e *FieldError) Tag() string { return e.tag }

// Param returns the tag parameter, e.g. "10" for "lte=10".
func (e *FieldError) Param() string { return e.param }

// Value returns the rejected value.
func (e *FieldError) Value() interface{} { return e.value }

func (e *FieldError) Error() string { return e.message }

// Errors is the set of failures for one struct.
type Errors struct {
	errors []FieldError
}

// Errors returns the individual field failures.
func (ve *Errors) Errors() []FieldError {
	return ve.errors
}

func (ve *Errors) Error() string {
	if len(ve.errors) == 0 {
		return "validation failed"
	}
	messages := make([]string, 0, len(ve.errors))
	for i := range ve.errors {
		messages = append(messages, ve.errors[i].Error())
	}
	return strings.Join(messages, "; ")
}

// FirstTag returns the tag of the first failure, or "".
func (ve *Errors) FirstTag() string {
	if len(ve.errors) == 0 {
		return ""
	}
	return ve.errors[0].tag
}

// GetValidator returns the singleton validator with custom tags registered.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		if err := validate.RegisterValidation("isbn_code", validateISBNCode); err != nil {
			panic(fmt.Sprintf("register isbn_code validator: %v", err))
		}
	})
	return validate
}

func validateISBNCode(fl validator.FieldLevel) bool {
	return isbnCodePattern.MatchString(fl.Field().String())
}

// ValidateStruct returns nil when s passes every rule.
func ValidateStruct(s interface{}) *Errors {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return &Errors{errors: []FieldError{{field: "unknown", tag: "unknown", message: err.Error()}}}
	}

	fieldErrors := make([]FieldError, len(validationErrs))
	for i, fe := range validationErrs {
		fieldErrors[i] = FieldError{
			field:   fe.Field(),
			tag:     fe.Tag(),
			param:   fe.Param(),
			value:   fe.Value(),
			message: translateError(fe),
		}
	}
	return &Errors{errors: fieldErrors}
}

var errorMessageTemplates = map[string]string{
	"required":  "%s is required",
	"isbn_code": "%s must be an alphanumeric ISBN of at most 13 characters",
}

var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"min":   "%s must be at least %s",
	"max":   "%s must be at most %s",
}

func translateError(fe validator.FieldError) string {
	if template, ok := errorMessageTemplates[fe.Tag()]; ok {
		return fmt.Sprintf(template, fe.Field())
	}
	if template, ok := errorMessageWithParam[fe.Tag()]; ok {
		return fmt.Sprintf(template, fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
}
