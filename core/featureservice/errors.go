package featureservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ServiceError is an error reported by a feature service or portal, either as a
// non-2xx HTTP status or as an error object in a 200 response body.
type ServiceError struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int
	// Code is the error code from the response body, zero when absent.
	Code int
	// Message is the service's error message.
	Message string
	// Details are additional messages from the response body.
	Details []string
}

func (e *ServiceError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if len(e.Details) > 0 {
		msg += " (" + strings.Join(e.Details, "; ") + ")"
	}
	code := e.Code
	if code == 0 {
		code = e.StatusCode
	}
	return fmt.Sprintf("feature service error %d: %s", code, msg)
}

// IsGatewayTimeout reports whether err means the request may have been applied
// although no response arrived: an HTTP 504 or a client-side timeout.
func IsGatewayTimeout(err error) bool {
	if err == nil {
		return false
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusGatewayTimeout || se.Code == http.StatusGatewayTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsNotFound reports whether err means the requested layer does not exist.
func IsNotFound(err error) bool {
	var se *ServiceError
	if !errors.As(err, &se) {
		return false
	}
	for _, c := range []int{se.StatusCode, se.Code} {
		if c == http.StatusNotFound || c == http.StatusBadRequest {
			return true
		}
	}
	return false
}

// IsAuthError reports whether err is an authentication or authorization failure.
func IsAuthError(err error) bool {
	var se *ServiceError
	if !errors.As(err, &se) {
		return false
	}
	for _, c := range []int{se.StatusCode, se.Code} {
		if c == http.StatusUnauthorized || c == http.StatusForbidden || c == 498 || c == 499 {
			return true
		}
	}
	return false
}

func retryable(err error) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	var ne net.Error
	return errors.As(err, &ne)
}
