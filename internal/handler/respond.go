package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/wellpoints/internal/engine"
)

const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// writeError maps engine errors to status codes. Anything unrecognised is
// logged and reported as a 500 without detail.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var cooldown *engine.CooldownError
	switch {
	case errors.As(err, &cooldown):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":             cooldown.Error(),
			"code":              "cooldown_active",
			"remaining_seconds": int(cooldown.Remaining.Seconds()),
			"remaining_hours":   cooldown.RemainingHours(),
		})
	case errors.Is(err, engine.ErrChallengeNotFound):
		writeCode(w, http.StatusNotFound, "challenge_not_found", err)
	case errors.Is(err, engine.ErrProfileNotFound):
		writeCode(w, http.StatusNotFound, "profile_not_found", err)
	case errors.Is(err, engine.ErrInvalidChallenge):
		writeCode(w, http.StatusBadRequest, "invalid_challenge", err)
	case errors.Is(err, engine.ErrChallengeInactive):
		writeCode(w, http.StatusConflict, "challenge_inactive", err)
	case errors.Is(err, engine.ErrNotStarted):
		writeCode(w, http.StatusConflict, "not_started", err)
	default:
		logger.Error("request failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

func writeCode(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error(), "code": code})
}

// validationMessage turns validator errors into a short client-facing string.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	if fe.Param() != "" {
		return fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s is %s", fe.Field(), fe.Tag())
}
