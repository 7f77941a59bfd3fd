package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pagegate-org/pagegate/internal/faults"
	"github.com/sirupsen/logrus"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError is the single place the error taxonomy crosses the HTTP
// boundary. Bodies stay generic; the original error goes to the log only.
func writeError(w http.ResponseWriter, log *logrus.Entry, err error) {
	if rl, ok := faults.IsRateLimited(err); ok {
		retryAfter := int(rl.RetryAfter.Round(time.Second) / time.Second)
		w.Header().Set("Retry-After", fmt.Sprint(retryAfter))
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error":      "too many attempts",
			"retryAfter": retryAfter,
		})
		return
	}

	switch {
	case errors.Is(err, faults.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, faults.ErrInvalidCredential):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	case errors.Is(err, faults.ErrTokenInvalid):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid access token"})
	case errors.Is(err, faults.ErrTokenMismatch):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "access token not valid for this resource"})
	default:
		log.WithError(err).Error("Request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
