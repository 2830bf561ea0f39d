package errors

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrBadRequest         = errors.New("bad request")
	ErrInternalServer     = errors.New("internal server error")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Group identifier codec
	ErrMalformedIdentifier   = errors.New("malformed group identifier")
	ErrUnknownIdentifierType = errors.New("unknown group identifier type")

	// Local persistence
	ErrStoreUnavailable = errors.New("local store unavailable")

	// Remote fetch
	ErrRemoteUnavailable = errors.New("remote unavailable")

	// Live channel handshake
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrSchoolMismatch  = errors.New("can not connect to this school")
	ErrSchoolInactive  = errors.New("school is not active")
	ErrSchoolNotFound  = errors.New("school not found")
	ErrTokenExpired    = errors.New("token expired")
	ErrInvalidToken    = errors.New("invalid token")

	// Compose round-trip
	ErrSendFailed = errors.New("send failed")

	ErrGroupNotFound  = errors.New("group not found")
	ErrNotGroupMember = errors.New("not a member of this group")
)

type APIError struct {
	Message string `json:"error"`
	Code    int    `json:"code"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(message string, code int) *APIError {
	return &APIError{
		Message: message,
		Code:    code,
	}
}

func HTTPStatusFromError(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrGroupNotFound), errors.Is(err, ErrSchoolNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrUnauthenticated),
		errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrSchoolMismatch),
		errors.Is(err, ErrSchoolInactive), errors.Is(err, ErrNotGroupMember):
		return http.StatusForbidden
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrMalformedIdentifier),
		errors.Is(err, ErrUnknownIdentifierType):
		return http.StatusBadRequest
	case errors.Is(err, ErrRemoteUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
