package api

import (
	"errors"
	"log/slog"
	"net/http"
)

var errTrailingData = errors.New("unexpected data after JSON body")

// BadRequest writes a 400 error response.
func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusBadRequest, ErrorResponse(msg))
}

// Unauthorized writes a 401 error response.
func Unauthorized(w http.ResponseWriter) {
	WriteJSON(w, http.StatusUnauthorized, ErrorResponse("Authentication required"))
}

// NotFound writes a 404 error response.
func NotFound(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusNotFound, ErrorResponse(msg))
}

// TooLarge writes a 413 error response.
func TooLarge(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse(msg))
}

// TooManyRequests writes a 429 error response.
func TooManyRequests(w http.ResponseWriter) {
	WriteJSON(w, http.StatusTooManyRequests, ErrorResponse("Too many requests, slow down"))
}

// InternalError logs err and writes a 500 with a generic message.
func InternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	slog.ErrorContext(r.Context(), msg, "error", err, "method", r.Method, "path", r.URL.Path)
	WriteJSON(w, http.StatusInternalServerError, ErrorResponse(msg))
}
