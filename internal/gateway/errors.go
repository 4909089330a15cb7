// Copyright 2025 Peanut Labs
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"fmt"
	"net/http"
)

// Kind tags a GatewayError with the category the HTTP boundary needs in
// order to pick a status code and a response shape.
type Kind string

const (
	KindValidation      Kind = "VALIDATION_ERROR"
	KindUnauthorized    Kind = "UNAUTHORIZED"
	KindForbidden       Kind = "FORBIDDEN"
	KindNotFound        Kind = "NOT_FOUND"
	KindConflict        Kind = "CONFLICT"
	KindRateLimited     Kind = "RATE_LIMIT_EXCEEDED"
	KindExternalService Kind = "EXTERNAL_SERVICE_ERROR"
	KindInternal        Kind = "INTERNAL_ERROR"
)

// GatewayError is the one error type every gateway package returns across
// its exported boundary. The HTTP layer maps Kind to a status code; nothing
// downstream of that mapping needs to know about net/http.
type GatewayError struct {
	Kind       Kind
	Message    string
	Details    map[string]interface{}
	RetryAfter int // seconds, only meaningful for KindRateLimited
	Err        error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func newErr(kind Kind, message string) *GatewayError {
	return &GatewayError{Kind: kind, Message: message}
}

func wrapErr(kind Kind, message string, err error) *GatewayError {
	return &GatewayError{Kind: kind, Message: message, Err: err}
}

func ValidationError(message string) *GatewayError { return newErr(KindValidation, message) }

func ValidationErrorf(format string, args ...interface{}) *GatewayError {
	return newErr(KindValidation, fmt.Sprintf(format, args...))
}

func UnauthorizedError(message string) *GatewayError { return newErr(KindUnauthorized, message) }

func ForbiddenError(message string) *GatewayError { return newErr(KindForbidden, message) }

func NotFoundError(resource string) *GatewayError {
	return newErr(KindNotFound, resource+" not found")
}

func ConflictError(message string) *GatewayError { return newErr(KindConflict, message) }

func RateLimitedError(retryAfterSeconds int) *GatewayError {
	return &GatewayError{
		Kind:       KindRateLimited,
		Message:    "rate limit exceeded",
		RetryAfter: retryAfterSeconds,
	}
}

func ExternalServiceError(service, detail string, err error) *GatewayError {
	return &GatewayError{
		Kind:    KindExternalService,
		Message: fmt.Sprintf("%s: %s", service, detail),
		Err:     err,
	}
}

func InternalError(message string, err error) *GatewayError {
	return wrapErr(KindInternal, message, err)
}

// AsGatewayError unwraps err into a *GatewayError, synthesizing an internal
// one for anything that didn't already carry a Kind.
func AsGatewayError(err error) *GatewayError {
	if err == nil {
		return nil
	}
	if ge, ok := err.(*GatewayError); ok {
		return ge
	}
	return InternalError("unexpected error", err)
}

// HTTPStatus maps a Kind to its response status code per the gateway's
// error mapping table.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
