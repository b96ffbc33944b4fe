package utils

import (
	"encoding/json"
	"net/http"
)

func WriteJSON(w http.ResponseWriter, v any) {
	WriteJSONStatus(w, http.StatusOK, v)
}

// WriteJSONStatus writes v with a specific HTTP status code.
func WriteJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ErrorBody is the JSON shape of every error response. Extra fields such as
// retry_after or current_tier are merged in by WriteError.
type ErrorBody map[string]any

// WriteError writes {error, message} plus extra fields and the request id when known.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, extra ErrorBody) {
	body := ErrorBody{"error": code, "message": message}
	for k, v := range extra {
		body[k] = v
	}
	if r != nil {
		if id, ok := GetRequestIDFromContext(r.Context()); ok {
			body["request_id"] = id
		}
	}
	WriteJSONStatus(w, status, body)
}
