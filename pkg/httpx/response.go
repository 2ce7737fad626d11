package httpx

import (
	"encoding/json"
	"net/http"
)

// WriteJSON renders v as a JSON body with the given status. Responses here
// routinely carry tokens, so every body goes out uncacheable.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// NoCache marks the response as non-storable. RFC 6749 requires this on
// token responses; Pragma covers HTTP/1.0 intermediaries.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}
