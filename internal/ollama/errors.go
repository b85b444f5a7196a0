package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// BackendError is a non-200 reply from the inference backend.
type BackendError struct {
	Path   string
	Status int
	Body   string
}

func (e *BackendError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend %s: status %d", e.Path, e.Status)
	}
	return fmt.Sprintf("backend %s: status %d: %s", e.Path, e.Status, e.Body)
}

// IsBackendError reports whether err is a non-200 backend reply.
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

// IsTimeout reports whether err is a deadline/timeout on a backend call.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
