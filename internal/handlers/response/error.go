package response

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type ErrorMessage struct {
	Message    string                     `json:"message"`
	StatusCode int                        `json:"status_code"`
	Violations []domain.TestCaseViolation `json:"violations,omitempty"`
}

func WriteError(w http.ResponseWriter, err ErrorMessage) {
	WriteJSON(w, err.StatusCode, err)
}

func WriteSuccess(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, data)
}

func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
