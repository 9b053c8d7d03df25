package domain

import (
	"time"

	"github.com/google/uuid"
)

// TestCase represents a test case for code execution
type TestCase struct {
	ID        uuid.UUID      `db:"id" json:"id"`
	TaskID    uuid.UUID      `db:"task_id" json:"taskId"`
	Input     *string        `db:"input_json" json:"input,omitempty"`
	Expected  *string        `db:"expected_json" json:"expected,omitempty"`
	IsHidden  bool           `db:"is_hidden" json:"isHidden"`
	MaxPoints float64        `db:"max_points" json:"maxPoints"`
	Timeout   *time.Duration `db:"-" json:"timeout,omitempty"`
}

type TestCaseTable struct {
	ID        string
	TaskID    string
	Input     string
	Expected  string
	IsHidden  string
	MaxPoints string
	TimeoutMs string
	Position  string
}

func GetTestCaseTable() TestCaseTable {
	return TestCaseTable{
		ID:        "id",
		TaskID:    "task_id",
		Input:     "input_json",
		Expected:  "expected_json",
		IsHidden:  "is_hidden",
		MaxPoints: "max_points",
		TimeoutMs: "timeout_ms",
		Position:  "position",
	}
}

func (TestCaseTable) TableName() string {
	return "test_cases"
}

// VisibleOnly returns the test cases a user is allowed to see.
func VisibleOnly(testCases []*TestCase) []*TestCase {
	visible := make([]*TestCase, 0, len(testCases))
	for _, tc := range testCases {
		if !tc.IsHidden {
			visible = append(visible, tc)
		}
	}
	return visible
}
