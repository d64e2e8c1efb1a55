// Package security provides request hygiene middleware: scanner filtering,
// body limits and content type checks.
package security

import (
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// healthCheckPaths are exempt from security filtering
var healthCheckPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/readyz":  true,
}

// blockedPathPrefixes are scanner probes; the ledger serves nothing under them
var blockedPathPrefixes = []string{
	"/.php",
	"/wp-",
	"/.git/",
	"/.env",
	"/.aws",
	"/web-inf/",
	"/cgi-bin/",
	"/admin/",
	"/phpmyadmin",
	"/phpinfo",
	"/vendor/phpunit",
	"/actuator",
	"/config.",
	"/.htaccess",
	"/.htpasswd",
	"/server-status",
	"/xmlrpc.php",
}

// blockedPathPatterns indicate traversal or injection attempts
var blockedPathPatterns = []string{
	"../",
	"..\\",
	"..%2f",
	"..%5c",
	"%2e%2e",
	"%00",
}

// FilterMiddleware blocks requests whose path matches known scanner probes or
// traversal patterns, checking both the raw and decoded forms.
func FilterMiddleware(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if healthCheckPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			if blocked(r.URL) {
				writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func blocked(u *url.URL) bool {
	candidates := []string{strings.ToLower(u.Path)}
	if raw := u.EscapedPath(); raw != "" {
		candidates = append(candidates, strings.ToLower(raw))
		if decoded, err := url.PathUnescape(raw); err == nil {
			candidates = append(candidates, strings.ToLower(decoded))
		}
	}

	for _, path := range candidates {
		for _, prefix := range blockedPathPrefixes {
			if strings.HasPrefix(path, prefix) {
				return true
			}
		}
		for _, pattern := range blockedPathPatterns {
			if strings.Contains(path, pattern) {
				return true
			}
		}
	}
	return false
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// writeError writes the standard error body without revealing what triggered it
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
