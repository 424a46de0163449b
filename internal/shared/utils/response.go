package utils

import (
	"encoding/json"
	"log"
	"net/http"
)

// WriteJSON writes body as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[WriteJSON] encode error: %v", err)
	}
}

// WriteError writes {"error": message}, adding "details" when err is set.
func WriteError(w http.ResponseWriter, status int, message string, err error) {
	body := map[string]string{"error": message}
	if err != nil {
		body["details"] = err.Error()
	}
	WriteJSON(w, status, body)
}
