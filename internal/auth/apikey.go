package auth

import (
	"net/http"
	"strings"
)

// KeyPrefix is the prefix for all API keys
const KeyPrefix = "sl_key_"

// IsAPIKey reports whether token has the API key format. Anything else
// presented as a bearer token is treated as a session JWT.
func IsAPIKey(token string) bool {
	return strings.HasPrefix(token, KeyPrefix)
}

// credentials extracts the API key and bearer token from r.
func credentials(r *http.Request) (apiKey, bearer string) {
	apiKey = r.Header.Get("X-API-Key")

	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		bearer = strings.TrimSpace(auth[7:])
	}

	if apiKey == "" && IsAPIKey(bearer) {
		apiKey, bearer = bearer, ""
	}
	return apiKey, bearer
}
