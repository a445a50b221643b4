// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/recipebox/recipebox/internal/auth"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 64 << 10

type registerRequest struct {
	Username          string   `json:"username" jsonschema:"minLength=1,maxLength=30,description=Unique handle starting with a letter"`
	Email             string   `json:"email" jsonschema:"format=email,minLength=1,maxLength=254"`
	Password          string   `json:"password" jsonschema:"minLength=1,maxLength=256"`
	PhoneNumber       string   `json:"phone_number,omitempty" jsonschema:"maxLength=32"`
	FullName          string   `json:"full_name,omitempty" jsonschema:"maxLength=100"`
	Gender            string   `json:"gender,omitempty" jsonschema:"maxLength=32"`
	DateOfBirth       string   `json:"date_of_birth,omitempty" jsonschema:"format=date"`
	Country           string   `json:"country,omitempty" jsonschema:"maxLength=64"`
	ProfilePictureURL string   `json:"profile_picture_url,omitempty" jsonschema:"format=uri,maxLength=2048"`
	FoodPreferences   []string `json:"food_preferences,omitempty" jsonschema:"maxItems=24"`
	CookingLevel      string   `json:"cooking_level,omitempty" jsonschema:"enum=beginner,enum=intermediate,enum=advanced,enum=professional"`
	RememberMe        bool     `json:"remember_me,omitempty"`
}

type loginRequest struct {
	Email      string `json:"email" jsonschema:"minLength=1,maxLength=254"`
	Password   string `json:"password" jsonschema:"minLength=1,maxLength=256"`
	RememberMe bool   `json:"remember_me,omitempty"`
}

type resetRequestRequest struct {
	Email string `json:"email" jsonschema:"minLength=1,maxLength=254"`
}

type resetVerifyRequest struct {
	Email string `json:"email" jsonschema:"minLength=1,maxLength=254"`
	Code  string `json:"code" jsonschema:"pattern=^[0-9]+$,maxLength=12"`
}

type resetCompleteRequest struct {
	Email       string `json:"email" jsonschema:"minLength=1,maxLength=254"`
	Code        string `json:"code" jsonschema:"pattern=^[0-9]+$,maxLength=12"`
	NewPassword string `json:"new_password" jsonschema:"minLength=1,maxLength=256"`
	RememberMe  bool   `json:"remember_me,omitempty"`
}

type sessionResponse struct {
	Token     string    `json:"token"`
	AccountID string    `json:"accountId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type accountResponse struct {
	ID                string    `json:"id"`
	Username          string    `json:"username"`
	Email             string    `json:"email"`
	PhoneNumber       string    `json:"phone_number,omitempty"`
	FullName          string    `json:"full_name,omitempty"`
	Gender            string    `json:"gender,omitempty"`
	DateOfBirth       string    `json:"date_of_birth,omitempty"`
	Country           string    `json:"country,omitempty"`
	ProfilePictureURL string    `json:"profile_picture_url,omitempty"`
	FoodPreferences   []string  `json:"food_preferences"`
	CookingLevel      string    `json:"cooking_level,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type revokedResponse struct {
	Revoked int64 `json:"revoked"`
}

func newSessionResponse(s *auth.IssuedSession) sessionResponse {
	return sessionResponse{Token: s.Token, AccountID: s.AccountID.String(), ExpiresAt: s.ExpiresAt.UTC()}
}

func newAccountResponse(a *auth.Account) accountResponse {
	resp := accountResponse{
		ID:                a.ID.String(),
		Username:          a.Username,
		Email:             a.Email,
		FullName:          a.FullName,
		Gender:            a.Gender,
		Country:           a.Country,
		ProfilePictureURL: a.ProfilePictureURL,
		FoodPreferences:   a.FoodPreferences,
		CookingLevel:      a.CookingLevel,
		CreatedAt:         a.CreatedAt.UTC(),
	}
	if resp.FoodPreferences == nil {
		resp.FoodPreferences = []string{}
	}
	if a.Phone != nil {
		resp.PhoneNumber = *a.Phone
	}
	if a.DateOfBirth != nil {
		resp.DateOfBirth = a.DateOfBirth.Format(auth.DateOfBirthLayout)
	}
	return resp
}

// decode reads the body, validates it against the named schema and fills dst.
func decode(r *http.Request, w http.ResponseWriter, schema string, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return newBadRequest("", "request body exceeds %d bytes", maxBodyBytes)
		}
		return newBadRequest("", "request body could not be read")
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return newBadRequest("", "request body must be a single JSON object")
	}
	if err := validateBody(schema, doc); err != nil {
		return err
	}
	// Re-encode the validated document; it already matched the schema.
	raw, err := json.Marshal(doc)
	if err != nil {
		return newBadRequest("", "request body must be a single JSON object")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return newBadRequest("", "request body must be a single JSON object")
	}
	return nil
}

func sessionOptions(r *http.Request, rememberMe bool) auth.SessionOptions {
	return auth.SessionOptions{RememberMe: rememberMe, UserAgent: r.UserAgent(), IPAddress: clientIP(r)}
}

// clientIP prefers the first X-Forwarded-For hop and falls back to RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, w, "register", &req); err != nil {
		writeError(w, err)
		return
	}
	opts := sessionOptions(r, req.RememberMe)
	session, err := h.auth.Register(r.Context(), auth.RegisterInput{
		Username:          req.Username,
		Email:             req.Email,
		Password:          req.Password,
		Phone:             req.PhoneNumber,
		FullName:          req.FullName,
		Gender:            req.Gender,
		DateOfBirth:       req.DateOfBirth,
		Country:           req.Country,
		ProfilePictureURL: req.ProfilePictureURL,
		FoodPreferences:   req.FoodPreferences,
		CookingLevel:      req.CookingLevel,
		RememberMe:        opts.RememberMe,
		UserAgent:         opts.UserAgent,
		IPAddress:         opts.IPAddress,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(session))
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, w, "login", &req); err != nil {
		writeError(w, err)
		return
	}
	session, err := h.auth.Login(r.Context(), auth.LoginInput{
		Email:          req.Email,
		Password:       req.Password,
		SessionOptions: sessionOptions(r, req.RememberMe),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(session))
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), bearerFrom(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) logoutAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.auth.LogoutAll(r.Context(), bearerFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, revokedResponse{Revoked: n})
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	account, err := h.auth.Me(r.Context(), bearerFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountResponse(account))
}

func (h *handler) requestReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequestRequest
	if err := decode(r, w, "reset-request", &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.auth.RequestReset(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, okResponse{OK: true})
}

func (h *handler) verifyReset(w http.ResponseWriter, r *http.Request) {
	var req resetVerifyRequest
	if err := decode(r, w, "reset-verify", &req); err != nil {
		writeError(w, err)
		return
	}
	ok, err := h.auth.VerifyReset(r.Context(), req.Email, req.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, auth.ErrInvalidResetCode)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *handler) completeReset(w http.ResponseWriter, r *http.Request) {
	var req resetCompleteRequest
	if err := decode(r, w, "reset-complete", &req); err != nil {
		writeError(w, err)
		return
	}
	session, err := h.auth.CompleteReset(r.Context(), auth.CompleteResetInput{
		Email:          req.Email,
		Code:           req.Code,
		NewPassword:    req.NewPassword,
		SessionOptions: sessionOptions(r, req.RememberMe),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(session))
}

func (h *handler) schema(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSuffix(chi.URLParam(r, "name"), ".json")
	raw, err := GenerateSchema(name)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{
			Status:  "error",
			Code:    "SCHEMA_NOT_FOUND",
			Message: "unknown schema, expected one of " + strings.Join(SchemaNames(), ", "),
		})
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // client may disconnect
	w.Write(raw)
}
