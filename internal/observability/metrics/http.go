// Package metrics provides Prometheus instrumentation for splitledger.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Middleware returns HTTP middleware for request metrics.
func Middleware(next http.Handler) http.Handler {
	if !enabled {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			duration := time.Since(start).Seconds()

			// Normalize path to avoid high cardinality from IDs
			path := normalizePath(r.URL.Path)

			httpRequestsTotal.WithLabelValues(
				r.Method,
				path,
				strconv.Itoa(rw.status),
			).Inc()

			httpDuration.WithLabelValues(
				r.Method,
				path,
			).Observe(duration)
		}()

		next.ServeHTTP(rw, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures status code.
func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

// Hijack supports websocket upgrades on /api/v1/events.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: underlying ResponseWriter does not support hijacking")
	}
	conn, buf, err := h.Hijack()
	if err == nil {
		rw.status = http.StatusSwitchingProtocols
	}
	return conn, buf, err
}

// normalizePath converts dynamic path segments to placeholders to avoid
// high cardinality metrics. For example:
//
//	/api/v1/splits/5f0c.../lines/0xAbC.../paid -> /api/v1/splits/{id}/lines/{address}/paid
//	/api/v1/dao/grants-2025/0xAbC...            -> /api/v1/dao/{campaign}/{address}
func normalizePath(path string) string {
	// Health check endpoints - keep as-is
	if path == "/health" || path == "/healthz" || path == "/readyz" {
		return path
	}
	// Metrics and legacy endpoints - keep as-is
	if path == "/metrics" || path == "/api/dao" {
		return path
	}

	// API v1 paths - normalize dynamic segments
	// Pattern: /api/v1/{resource}/{id}/{action}
	if strings.HasPrefix(path, "/api/v1/") {
		parts := strings.Split(strings.Trim(path[len("/api/v1/"):], "/"), "/")
		if len(parts) == 0 || parts[0] == "" {
			return path
		}
		resource := parts[0] // "splits", "dao", "plans", ...

		normalized := []string{"/api/v1", resource}
		for i := 1; i < len(parts); i++ {
			part := parts[i]
			switch {
			case part == "":
				continue
			case isAddress(part):
				normalized = append(normalized, "{address}")
			case resource == "dao" && i == 1:
				// campaign ids are free-form
				normalized = append(normalized, "{campaign}")
			case isLikelyID(part):
				normalized = append(normalized, "{id}")
			default:
				normalized = append(normalized, part)
			}
		}
		return strings.Join(normalized, "/")
	}
	return path
}

// isAddress returns true for 0x-prefixed 20-byte hex strings
func isAddress(segment string) bool {
	if len(segment) != 42 || !(strings.HasPrefix(segment, "0x") || strings.HasPrefix(segment, "0X")) {
		return false
	}
	return isHex(segment[2:])
}

// isLikelyID returns true if segment looks like an identifier
func isLikelyID(segment string) bool {
	// Hash strings (common for transaction IDs)
	if len(segment) >= 64 && isHex(strings.TrimPrefix(segment, "0x")) {
		return true
	}
	// UUIDs with dashes
	if strings.Count(segment, "-") >= 4 {
		return true
	}
	// Pure numbers (could be chain IDs)
	if isNumeric(segment) {
		return true
	}
	return false
}

// isHex returns true if string is hexadecimal (supports both upper and lowercase)
func isHex(s string) bool {
	for _, c := range s {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return false
		}
	}
	return len(s) > 0
}

// isNumeric returns true if string contains only digits
func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}
