package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// MessageBody acknowledges an action that returns no resource.
type MessageBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorResponse builds an error body.
func ErrorResponse(message string) ErrorBody {
	return ErrorBody{Success: false, Error: message}
}

// MessageResponse builds a successful acknowledgement.
func MessageResponse(message string) MessageBody {
	return MessageBody{Success: true, Message: message}
}

// WriteJSON serialises resp as JSON and writes it to w with the given HTTP status code.
func WriteJSON(w http.ResponseWriter, status int, resp any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// DecodeJSON reads a JSON request body into v, rejecting trailing data.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errTrailingData
	}
	return nil
}
