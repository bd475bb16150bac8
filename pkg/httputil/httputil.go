package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"charter/pkg/sentinel"
)

type errorBody struct {
	Error string `json:"error"`
}

// RespondJSON writes v as a JSON response with the given status.
func RespondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError translates sentinel errors into HTTP statuses. Unknown errors
// become opaque 500s so internals never leak to clients.
func WriteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sentinel.ErrBadInput):
		RespondJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, sentinel.ErrNotFound):
		RespondJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, sentinel.ErrInvalidState), errors.Is(err, sentinel.ErrConflict):
		RespondJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	default:
		RespondJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

// DecodeJSON decodes a request body, returning false after writing a 400 if
// the body is malformed.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		RespondJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return v, false
	}
	return v, true
}
