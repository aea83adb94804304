package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	authgate "github.com/playbaseball/authgate"
)

// errorBody is the wire shape of every 4xx/5xx produced by this subsystem.
// The error field carries the stable taxonomy name; internals never leak.
type errorBody struct {
	Timestamp string `json:"timestamp"`
	Status    int    `json:"status"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Path      string `json:"path"`
}

// WriteError renders err as the standard JSON error body.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := authgate.HTTPStatus(err)
	category := authgate.Category(err)

	message := "request rejected"
	if err != nil && category != "Internal" {
		message = err.Error()
	}

	body := errorBody{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Status:    status,
		Error:     category,
		Message:   message,
		Path:      r.URL.Path,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
