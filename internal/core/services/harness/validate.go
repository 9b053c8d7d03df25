package harness

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

// Validate checks every test case against the signature and reports all
// violations of the batch at once.
func Validate(sig *domain.MethodSignature, testCases []*domain.TestCase) error {
	var violations []domain.TestCaseViolation
	report := func(tc *domain.TestCase, format string, args ...interface{}) {
		violations = append(violations, domain.TestCaseViolation{
			TestCaseID: tc.ID,
			Problem:    fmt.Sprintf(format, args...),
		})
	}

	for _, tc := range testCases {
		if tc.MaxPoints < 0 {
			report(tc, "max points must not be negative, got %v", tc.MaxPoints)
		}
		if tc.Timeout != nil && *tc.Timeout < 0 {
			report(tc, "timeout must not be negative, got %s", *tc.Timeout)
		}
		if tc.Expected != nil && !jsoniter.Valid([]byte(*tc.Expected)) {
			report(tc, "expected value is not valid JSON")
		}

		if len(sig.Params) == 0 {
			continue
		}
		if tc.Input == nil || strings.TrimSpace(*tc.Input) == "" {
			report(tc, "input is missing, expected arguments %s", paramNames(sig))
			continue
		}
		var inputs map[string]jsoniter.RawMessage
		if err := json.UnmarshalFromString(*tc.Input, &inputs); err != nil {
			report(tc, "input is not a JSON object: %v", err)
			continue
		}
		for _, p := range sig.Params {
			if _, ok := inputs[p.Name]; !ok {
				report(tc, "input is missing argument %q of type %s", p.Name, p.Type)
			}
		}
	}

	if len(violations) > 0 {
		return &domain.ValidationError{Violations: violations}
	}
	return nil
}

func paramNames(sig *domain.MethodSignature) string {
	names := make([]string, 0, len(sig.Params))
	for _, p := range sig.Params {
		names = append(names, p.Name)
	}
	return "[" + strings.Join(names, ", ") + "]"
}
