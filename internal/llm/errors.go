package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"shopilots.com/chatbot/internal/domain"
)

// Classify maps a backend error onto the model error taxonomy in domain.
// Errors that already carry a domain model error, and caller cancellation,
// are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		domain.ErrNoAPIKey, domain.ErrModelAuth, domain.ErrModelQuota,
		domain.ErrModelTimeout, domain.ErrModelUnavailable, domain.ErrStreamInterrupted,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrModelTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", domain.ErrModelTimeout, err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return classifyHTTPStatus(apiErr.Code, err)
	}
	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) {
		return classifyHTTPStatus(httpErr.StatusCode, err)
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.Unauthenticated, codes.PermissionDenied:
			return fmt.Errorf("%w: %v", domain.ErrModelAuth, err)
		case codes.ResourceExhausted:
			return fmt.Errorf("%w: %v", domain.ErrModelQuota, err)
		case codes.DeadlineExceeded:
			return fmt.Errorf("%w: %v", domain.ErrModelTimeout, err)
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
}

func classifyHTTPStatus(code int, err error) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %v", domain.ErrModelAuth, err)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", domain.ErrModelQuota, err)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %v", domain.ErrModelTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
}

// HTTPStatusError is returned by the HTTP backends for non-200 responses.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}
