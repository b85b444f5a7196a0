package router

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ExhaustedError is returned when neither the local backend nor any cloud
// candidate produced an answer.
type ExhaustedError struct {
	Model string
	Role  string
	// Attempts lists every backend that was tried, in order.
	Attempts []string
	Hint     string
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all backends failed for %s (role %s): %s", e.Model, e.Role, strings.Join(e.Attempts, "; "))
}

func (e *ExhaustedError) StatusCode() int { return http.StatusServiceUnavailable }

// IsExhausted reports whether err is an *ExhaustedError.
func IsExhausted(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex)
}

// badRequestError signals a malformed proxy payload.
type badRequestError struct{ msg string }

func (e badRequestError) Error() string   { return e.msg }
func (e badRequestError) StatusCode() int { return http.StatusBadRequest }
