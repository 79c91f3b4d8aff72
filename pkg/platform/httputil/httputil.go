// Package httputil centralizes JSON encoding and domain error translation
// for the HTTP transport so every handler emits the same envelopes.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	derrors "verigate/pkg/domain-errors"
)

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError translates a domain error into the JSON error envelope.
// Internal errors omit the description so infrastructure details never leak
// to callers.
func WriteError(w http.ResponseWriter, err error) {
	code := derrors.CodeOf(err)

	body := map[string]string{"error": string(code)}
	var de *derrors.Error
	if code != derrors.CodeInternal && errors.As(err, &de) {
		body["error_description"] = de.Message
	}
	WriteJSON(w, derrors.HTTPStatus(code), body)
}

// Decode parses a JSON request body into T.
func Decode[T any](r *http.Request) (T, error) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		return v, derrors.New(derrors.CodeInvalidInput, "invalid request body")
	}
	return v, nil
}
