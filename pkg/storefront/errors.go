package storefront

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrInvalidQuantity    = errors.New("quantity must be at least 1")
	ErrItemNotInCart      = errors.New("item not in cart")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrCheckoutInProgress = errors.New("checkout already in progress")
)

// NetworkError means the request never produced an answer: dial failure,
// timeout, open circuit or an unreadable body. Retrying may help.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Retryable() bool { return true }

// ApplicationError is a non-2xx answer. Message is the server's error text.
type ApplicationError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Message, e.StatusCode)
}

func (e *ApplicationError) Retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// IsStatus reports whether err is an ApplicationError with the given code.
func IsStatus(err error, code int) bool {
	var appErr *ApplicationError
	return errors.As(err, &appErr) && appErr.StatusCode == code
}

type FieldError struct {
	Field string
	Rule  string
}

// ValidationError lists the checkout form fields that failed validation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + " (" + f.Rule + ")"
	}
	return "invalid checkout form: " + strings.Join(parts, ", ")
}

// Has reports whether field failed validation.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}
