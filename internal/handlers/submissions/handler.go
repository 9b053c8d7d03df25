package submissions

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/primary"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/services/submission"
	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
	"gitlab.com/fcv-2025.net/codegrader/internal/handlers"
	"gitlab.com/fcv-2025.net/codegrader/internal/handlers/response"
)

// SubmissionHandler handles submission API requests
type SubmissionHandler struct {
	submissionService submission.ISubmissionService
	logger            primary.Logger
}

// NewSubmissionHandler creates a new submission handler
func NewSubmissionHandler(submissionService submission.ISubmissionService, logger primary.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		submissionService: submissionService,
		logger:            logger,
	}
}

// RegisterRoutes registers the API routes for SubmissionHandler
func (h *SubmissionHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/submissions", h.Submit).Methods(http.MethodPost)
	router.HandleFunc("/api/submissions/{submissionId}", h.Get).Methods(http.MethodGet)
	router.HandleFunc("/api/run", h.Run).Methods(http.MethodPost)
	router.HandleFunc("/api/tasks/{taskId}/validate", h.Validate).Methods(http.MethodPost)
}

func badRequest(w http.ResponseWriter, msg string) {
	response.WriteError(w, response.ErrorMessage{Message: msg, StatusCode: http.StatusBadRequest})
}

func (h *SubmissionHandler) decodeSubmit(w http.ResponseWriter, r *http.Request) (*SubmitRequest, bool) {
	var req SubmitRequest
	if err := handlers.DecodeJSON(w, r, &req); err != nil {
		h.logger.Debug("Failed to decode request", "error", err)
		badRequest(w, "Invalid request")
		return nil, false
	}
	if req.TaskID == uuid.Nil {
		badRequest(w, "taskId is required")
		return nil, false
	}
	if strings.TrimSpace(req.Code) == "" {
		badRequest(w, "code is required")
		return nil, false
	}
	return &req, true
}

// Submit stores a submission and queues it for background grading
func (h *SubmissionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, ok := handlers.UserID(r.Context())
	if !ok {
		response.WriteError(w, response.ErrorMessage{Message: "unauthenticated", StatusCode: http.StatusUnauthorized})
		return
	}
	req, ok := h.decodeSubmit(w, r)
	if !ok {
		return
	}

	sub, err := h.submissionService.Submit(r.Context(), userID, req.TaskID, req.Code)
	if err != nil {
		handlers.WriteServiceError(w, h.logger, "submit", err)
		return
	}

	response.WriteJSON(w, http.StatusAccepted, SubmitResponse{
		SubmissionID: sub.ID,
		Status:       sub.Status,
	})
}

// Get returns a submission of the caller with its results
func (h *SubmissionHandler) Get(w http.ResponseWriter, r *http.Request) {
	submissionID, err := uuid.Parse(mux.Vars(r)["submissionId"])
	if err != nil {
		badRequest(w, "invalid submission id")
		return
	}

	sub, results, err := h.submissionService.Get(r.Context(), submissionID)
	if err != nil {
		handlers.WriteServiceError(w, h.logger, "get submission", err)
		return
	}
	if userID, _ := handlers.UserID(r.Context()); sub.UserID != userID {
		handlers.WriteServiceError(w, h.logger, "get submission", domain.ErrSubmissionNotFound)
		return
	}

	response.WriteSuccess(w, SubmissionResponse{Submission: sub, Results: results})
}

// Run grades code against the visible test cases of a task and returns the outcome
func (h *SubmissionHandler) Run(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSubmit(w, r)
	if !ok {
		return
	}

	outcome, err := h.submissionService.Run(r.Context(), req.TaskID, req.Code)
	if err != nil {
		handlers.WriteServiceError(w, h.logger, "run", err)
		return
	}
	response.WriteSuccess(w, outcome)
}

// Validate checks the test cases of a task against reference code
func (h *SubmissionHandler) Validate(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(mux.Vars(r)["taskId"])
	if err != nil {
		badRequest(w, "invalid task id")
		return
	}
	var req ValidateRequest
	if err := handlers.DecodeJSON(w, r, &req); err != nil {
		badRequest(w, "Invalid request")
		return
	}

	if err := h.submissionService.ValidateTestCases(r.Context(), taskID, req.Code); err != nil {
		handlers.WriteServiceError(w, h.logger, "validate test cases", err)
		return
	}
	response.WriteSuccess(w, ValidateResponse{Valid: true})
}
