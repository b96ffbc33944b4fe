package provider

import (
	"log"
	"time"
)

// LogRequest logs an outbound API request. Secrets must not be passed in params.
func LogRequest(provider, method, url string, params map[string]any) {
	if len(params) > 0 {
		log.Printf("[%s] %s %s params=%v", provider, method, url, params)
	} else {
		log.Printf("[%s] %s %s", provider, method, url)
	}
}

// LogResponse logs an API response received.
func LogResponse(provider string, statusCode int, duration time.Duration) {
	log.Printf("[%s] response status=%d duration=%dms", provider, statusCode, duration.Milliseconds())
}

// LogError logs an error from an API operation.
func LogError(provider, operation string, err error) {
	log.Printf("[%s] %s error: %v", provider, operation, err)
}

// LogFallback logs a downgrade to the deterministic path.
func LogFallback(provider, fallback string, err error) {
	log.Printf("[%s] falling back to %s: %v", provider, fallback, err)
}
