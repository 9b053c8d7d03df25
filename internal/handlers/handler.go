package handlers

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/primary"
	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
	"gitlab.com/fcv-2025.net/codegrader/internal/handlers/response"
)

// MaxBodyBytes bounds every decoded request body
const MaxBodyBytes = 1 << 20

// DecodeJSON reads a bounded JSON body into dst
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// ErrorFor maps a service error to the envelope sent to the client
func ErrorFor(err error) response.ErrorMessage {
	var validation *domain.ValidationError
	var cooldown *domain.CooldownError
	switch {
	case errors.As(err, &validation):
		return response.ErrorMessage{
			Message:    "test cases do not match the method signature",
			StatusCode: http.StatusUnprocessableEntity,
			Violations: validation.Violations,
		}
	case errors.As(err, &cooldown):
		return response.ErrorMessage{Message: cooldown.Error(), StatusCode: http.StatusTooManyRequests}
	case errors.Is(err, domain.ErrNoClassFound),
		errors.Is(err, domain.ErrNoMethodFound),
		errors.Is(err, domain.ErrInvalidArgumentFormat):
		return response.ErrorMessage{Message: err.Error(), StatusCode: http.StatusBadRequest}
	case errors.Is(err, domain.ErrSubmissionNotFound):
		return response.ErrorMessage{Message: err.Error(), StatusCode: http.StatusNotFound}
	case errors.Is(err, domain.ErrQueueFull),
		errors.Is(err, domain.ErrPoolExhausted),
		errors.Is(err, domain.ErrPoolClosed):
		return response.ErrorMessage{Message: "grading capacity exhausted, try again later", StatusCode: http.StatusServiceUnavailable}
	default:
		return response.ErrorMessage{Message: "internal error", StatusCode: http.StatusInternalServerError}
	}
}

// WriteServiceError logs err and writes its envelope
func WriteServiceError(w http.ResponseWriter, logger primary.Logger, op string, err error) {
	msg := ErrorFor(err)
	if msg.StatusCode >= http.StatusInternalServerError {
		logger.Error("Request failed", "op", op, "error", err)
	} else {
		logger.Debug("Request rejected", "op", op, "status", msg.StatusCode, "error", err)
	}

	var cooldown *domain.CooldownError
	if errors.As(err, &cooldown) {
		seconds := int(math.Ceil(cooldown.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	response.WriteError(w, msg)
}
