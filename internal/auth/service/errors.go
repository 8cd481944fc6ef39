package service

import (
	"errors"
	"net/http"
)

// Kind enumerates every domain failure the auth core can surface.
// Each kind maps 1:1 to a machine-readable code and an HTTP status;
// handlers never invent their own mappings.
type Kind int

const (
	KindInvalidRequest Kind = iota
	KindInvalidClient
	KindInvalidGrant
	KindUnsupportedGrantType
	KindUnsupportedResponseType
	KindInvalidScope
	KindInvalidRedirectURI
	KindMFARequired
	KindInvalidMFACode
	KindExpiredMFAToken
	KindRateLimited
	KindAccountLocked
	KindAccountDisabled
	KindTokenRevoked
	KindTokenExpired
	KindTokenInvalid
	KindServerError
)

// Error is the single error type crossing the service boundary. Meta
// carries kind-specific extras (mfa_token for MFARequired, retry_after
// for RateLimited) without widening the type.
type Error struct {
	Kind        Kind
	Status      int
	Code        string
	Description string
	Meta        map[string]any
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

// Is matches on Kind so errors.Is works against the base values below
// even after WithDescription/WithMeta produced a copy.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// WithDescription returns a copy carrying a more specific description.
func (e *Error) WithDescription(desc string) *Error {
	clone := *e
	clone.Description = desc
	return &clone
}

// WithMeta returns a copy with key=value added to the metadata map.
func (e *Error) WithMeta(key string, value any) *Error {
	clone := *e
	clone.Meta = make(map[string]any, len(e.Meta)+1)
	for k, v := range e.Meta {
		clone.Meta[k] = v
	}
	clone.Meta[key] = value
	return &clone
}

var (
	ErrInvalidRequest = &Error{
		Kind: KindInvalidRequest, Status: http.StatusBadRequest,
		Code: "invalid_request", Description: "the request is missing a required parameter or is malformed",
	}
	ErrInvalidClient = &Error{
		Kind: KindInvalidClient, Status: http.StatusUnauthorized,
		Code: "invalid_client", Description: "client authentication failed",
	}
	ErrInvalidGrant = &Error{
		Kind: KindInvalidGrant, Status: http.StatusBadRequest,
		Code: "invalid_grant", Description: "the provided grant is invalid, expired or already used",
	}
	ErrUnsupportedGrantType = &Error{
		Kind: KindUnsupportedGrantType, Status: http.StatusBadRequest,
		Code: "unsupported_grant_type", Description: "the grant type is not supported",
	}
	ErrUnsupportedResponseType = &Error{
		Kind: KindUnsupportedResponseType, Status: http.StatusBadRequest,
		Code: "unsupported_response_type", Description: "the response type is not supported",
	}
	ErrInvalidScope = &Error{
		Kind: KindInvalidScope, Status: http.StatusBadRequest,
		Code: "invalid_scope", Description: "the requested scope exceeds what the client may grant",
	}
	ErrInvalidRedirectURI = &Error{
		Kind: KindInvalidRedirectURI, Status: http.StatusBadRequest,
		Code: "invalid_redirect_uri", Description: "redirect_uri is not registered for this client",
	}
	// ErrMFARequired is a protocol continuation, not a terminal
	// failure: Meta carries the challenge token under "mfa_token".
	ErrMFARequired = &Error{
		Kind: KindMFARequired, Status: http.StatusUnauthorized,
		Code: "mfa_required", Description: "multi-factor verification is required to complete authentication",
	}
	ErrInvalidMFACode = &Error{
		Kind: KindInvalidMFACode, Status: http.StatusUnauthorized,
		Code: "invalid_mfa_code", Description: "the one-time code is incorrect or was already used",
	}
	ErrExpiredMFAToken = &Error{
		Kind: KindExpiredMFAToken, Status: http.StatusUnauthorized,
		Code: "expired_mfa_token", Description: "the challenge token is unknown or expired",
	}
	// ErrRateLimited carries "retry_after" (seconds) in Meta.
	ErrRateLimited = &Error{
		Kind: KindRateLimited, Status: http.StatusTooManyRequests,
		Code: "rate_limit_exceeded", Description: "too many attempts, slow down",
	}
	ErrAccountLocked = &Error{
		Kind: KindAccountLocked, Status: http.StatusForbidden,
		Code: "account_locked", Description: "the account is temporarily locked after repeated failures",
	}
	ErrAccountDisabled = &Error{
		Kind: KindAccountDisabled, Status: http.StatusForbidden,
		Code: "account_disabled", Description: "the account is disabled",
	}
	ErrTokenRevoked = &Error{
		Kind: KindTokenRevoked, Status: http.StatusUnauthorized,
		Code: "token_revoked", Description: "the token has been revoked",
	}
	ErrTokenExpired = &Error{
		Kind: KindTokenExpired, Status: http.StatusUnauthorized,
		Code: "token_expired", Description: "the token has expired",
	}
	ErrTokenInvalid = &Error{
		Kind: KindTokenInvalid, Status: http.StatusUnauthorized,
		Code: "invalid_token", Description: "the token is malformed or unknown",
	}
	ErrServer = &Error{
		Kind: KindServerError, Status: http.StatusInternalServerError,
		Code: "server_error", Description: "an internal error occurred",
	}
)

// AsError extracts the service error from err, if it carries one.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
