package middleware

import (
	"encoding/json"
	"net/http"
)

// errorResponse matches the error body written by the API handlers.
type errorResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: true, Message: msg})
}
