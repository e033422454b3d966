// handlers/response.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// messageResponse is the body of every non-list response.
type messageResponse struct {
	Message string `json:"message"`
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Handler: failed to marshal JSON response")
		http.Error(w, `{"message":"Failed to marshal JSON response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithMessage(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, messageResponse{Message: message})
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	log.Warn().Int("status", code).Str("message", message).Msg("Handler: API error")
	respondWithMessage(w, code, message)
}
