package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"llmvisor/internal/router"
	"llmvisor/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeErrorResponse(w, types.ErrorResponse{Error: msg, Code: status})
}

func writeErrorResponse(w http.ResponseWriter, resp types.ErrorResponse) {
	errorResponsesTotal.WithLabelValues(itoa(resp.Code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Code)
	_ = json.NewEncoder(w).Encode(resp)
}

// statusFor maps err to an HTTP status. Errors implementing HTTPError anywhere
// in the chain decide for themselves; deadlines map to 504.
func statusFor(err error) int {
	var he HTTPError
	switch {
	case errors.As(err, &he):
		return he.StatusCode()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err, carrying the remediation hint and attempt list of
// router exhaustion.
func writeError(w http.ResponseWriter, err error) {
	resp := types.ErrorResponse{Error: err.Error(), Code: statusFor(err)}
	var ex *router.ExhaustedError
	if errors.As(err, &ex) {
		resp.Hint = ex.Hint
		resp.Attempts = ex.Attempts
	}
	writeErrorResponse(w, resp)
}
