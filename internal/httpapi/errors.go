// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/recipebox/recipebox/internal/auth"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// wireFields renames domain field names to their request body names.
var wireFields = map[string]string{
	auth.FieldPhone: "phone_number",
}

func wireField(field string) string {
	if name, ok := wireFields[field]; ok {
		return name
	}
	return field
}

// newBadRequest reports a malformed request body.
func newBadRequest(field, format string, args ...any) error {
	return auth.ValidationError(field, format, args...)
}

// errMissingBearer is returned when an authenticated route has no token.
var errMissingBearer = errors.New("missing bearer token")

// mapError picks status, code and a client-safe message for err. Store and
// unexpected failures get a generic message so internals never leak.
func mapError(err error) (status int, body errorBody) {
	body.Status = "error"
	if field, ok := auth.IsDuplicateField(err); ok {
		body.Code = auth.CodeDuplicateField
		body.Field = wireField(field)
		body.Message = body.Field + " is already registered"
		return http.StatusConflict, body
	}

	switch {
	case errors.Is(err, auth.ErrValidation):
		body.Code = auth.CodeValidation
		body.Field = wireField(auth.FieldOf(err))
		body.Message = validationMessage(err)
		return http.StatusBadRequest, body
	case errors.Is(err, errMissingBearer):
		body.Code = auth.CodeTokenInvalid
		body.Message = "missing or malformed bearer token"
		return http.StatusUnauthorized, body
	case errors.Is(err, auth.ErrAccountNotFound):
		body.Code = auth.CodeAccountNotFound
		body.Message = auth.ErrAccountNotFound.Error()
		return http.StatusNotFound, body
	case errors.Is(err, auth.ErrIncorrectPassword):
		body.Code = auth.CodeIncorrectPassword
		body.Message = auth.ErrIncorrectPassword.Error()
		return http.StatusUnauthorized, body
	case errors.Is(err, auth.ErrInvalidCredentials):
		body.Code = auth.CodeInvalidCredentials
		body.Message = auth.ErrInvalidCredentials.Error()
		return http.StatusUnauthorized, body
	case errors.Is(err, auth.ErrTokenExpired):
		body.Code = auth.CodeTokenExpired
		body.Message = auth.ErrTokenExpired.Error()
		return http.StatusUnauthorized, body
	case errors.Is(err, auth.ErrTokenInvalid):
		body.Code = auth.CodeTokenInvalid
		body.Message = auth.ErrTokenInvalid.Error()
		return http.StatusUnauthorized, body
	case errors.Is(err, auth.ErrInvalidResetCode):
		body.Code = auth.CodeInvalidResetCode
		body.Message = auth.ErrInvalidResetCode.Error()
		return http.StatusBadRequest, body
	case errors.Is(err, auth.ErrAccountLocked):
		body.Code = auth.CodeAccountLocked
		body.Message = auth.ErrAccountLocked.Error()
		return http.StatusTooManyRequests, body
	case errors.Is(err, auth.ErrRateLimited):
		body.Code = auth.CodeRateLimited
		body.Message = auth.ErrRateLimited.Error()
		return http.StatusTooManyRequests, body
	case errors.Is(err, auth.ErrDeliveryFailed):
		body.Code = auth.CodeDeliveryFailed
		body.Message = "could not deliver the reset code, try again later"
		return http.StatusBadGateway, body
	case errors.Is(err, auth.ErrStoreUnavailable):
		body.Code = auth.CodeStoreUnavailable
		body.Message = "service temporarily unavailable"
		return http.StatusServiceUnavailable, body
	}

	body.Code = "INTERNAL_ERROR"
	body.Message = "internal server error"
	return http.StatusInternalServerError, body
}

// validationMessage returns the public message of a validation error
// without the oops context suffix.
func validationMessage(err error) string {
	var msg interface{ Public() string }
	if errors.As(err, &msg) && msg.Public() != "" {
		return msg.Public()
	}
	return strings.TrimSuffix(err.Error(), ": "+auth.ErrValidation.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) (status int) {
	status, body := mapError(err)
	writeJSON(w, status, body)
	return status
}
