package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus represents the grading state of a submission
type SubmissionStatus string

const (
	SubmissionStatusPending  SubmissionStatus = "PENDING"
	SubmissionStatusAccepted SubmissionStatus = "ACCEPTED"
	SubmissionStatusRejected SubmissionStatus = "REJECTED"
	SubmissionStatusErrored  SubmissionStatus = "ERRORED"
)

// IsTerminal reports whether no further automatic transition happens from s.
func (s SubmissionStatus) IsTerminal() bool {
	return s == SubmissionStatusAccepted || s == SubmissionStatusRejected || s == SubmissionStatusErrored
}

// Submission represents a code submission to be graded
type Submission struct {
	ID          uuid.UUID        `db:"id" json:"id"`
	UserID      string           `db:"user_id" json:"userId"`
	TaskID      uuid.UUID        `db:"task_id" json:"taskId"`
	Code        string           `db:"code" json:"code"`
	Status      SubmissionStatus `db:"status" json:"status"`
	Score       float64          `db:"score" json:"score"`
	SubmittedAt time.Time        `db:"submitted_at" json:"submittedAt"`
	CompletedAt *time.Time       `db:"completed_at" json:"completedAt,omitempty"`
}

type SubmissionTable struct {
	ID          string
	UserID      string
	TaskID      string
	Code        string
	Status      string
	Score       string
	SubmittedAt string
	CompletedAt string
}

func GetSubmissionTable() SubmissionTable {
	return SubmissionTable{
		ID:          "id",
		UserID:      "user_id",
		TaskID:      "task_id",
		Code:        "code",
		Status:      "status",
		Score:       "score",
		SubmittedAt: "submitted_at",
		CompletedAt: "completed_at",
	}
}

func (SubmissionTable) TableName() string {
	return "submissions"
}

// NewSubmission creates a new pending submission
func NewSubmission(userID string, taskID uuid.UUID, code string) *Submission {
	return &Submission{
		ID:          uuid.New(),
		UserID:      userID,
		TaskID:      taskID,
		Code:        code,
		Status:      SubmissionStatusPending,
		SubmittedAt: time.Now(),
	}
}

// GradingOutcome is the result of one grading pass
type GradingOutcome struct {
	Results     []*ExecutionResult `json:"results"`
	Score       float64            `json:"score"`
	FullySolved bool               `json:"fullySolved"`
	Status      SubmissionStatus   `json:"status"`
}
