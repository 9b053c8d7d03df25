package harness

import (
	"time"

	jsoniter "github.com/json-iterator/go"

	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

// BuildRequests produces one execution request per test case, in order.
// A test case without input (or with input that is not a JSON object) gets
// empty-string arguments; strict checking is the job of Validate.
func BuildRequests(
	code string,
	sig *domain.MethodSignature,
	testCases []*domain.TestCase,
	defaultTimeout time.Duration,
) []*domain.ExecutionRequest {
	requests := make([]*domain.ExecutionRequest, 0, len(testCases))
	for _, tc := range testCases {
		inputs := decodeInput(tc.Input)

		args := make([]domain.Argument, 0, len(sig.Params))
		for _, p := range sig.Params {
			value := ""
			if raw, ok := inputs[p.Name]; ok {
				value = Literal(string(raw))
			}
			args = append(args, domain.Argument{Name: p.Name, Value: value})
		}

		timeout := defaultTimeout
		if tc.Timeout != nil && *tc.Timeout > 0 {
			timeout = *tc.Timeout
		}

		var expected *string
		if tc.Expected != nil {
			lit := Literal(*tc.Expected)
			expected = &lit
		}

		requests = append(requests, &domain.ExecutionRequest{
			TestCaseID: tc.ID,
			Code:       code,
			Signature:  sig,
			ClassName:  sig.TypeName,
			MethodName: sig.MethodName,
			Arguments:  args,
			Timeout:    timeout,
			Expected:   expected,
			MaxPoints:  tc.MaxPoints,
		})
	}
	return requests
}

func decodeInput(input *string) map[string]jsoniter.RawMessage {
	if input == nil {
		return nil
	}
	var inputs map[string]jsoniter.RawMessage
	if err := json.UnmarshalFromString(*input, &inputs); err != nil {
		return nil
	}
	return inputs
}
