package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

func TestParseSignature(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		typeName string
		method   string
		params   []domain.Param
		results  []string
		variadic bool
		declares bool
	}{
		{
			name:     "pointer receiver without type",
			code:     "func (s *Solution) Solve(a int, b int) int {\n\treturn a + b\n}\n",
			typeName: "Solution",
			method:   "Solve",
			params:   []domain.Param{{Name: "a", Type: "int"}, {Name: "b", Type: "int"}},
			results:  []string{"int"},
		},
		{
			name:     "grouped params and declared type",
			code:     "type Calc struct{ base int }\n\nfunc (c Calc) Add(a, b int, label string) (string, error) {\n\treturn label, nil\n}\n",
			typeName: "Calc",
			method:   "Add",
			params:   []domain.Param{{Name: "a", Type: "int"}, {Name: "b", Type: "int"}, {Name: "label", Type: "string"}},
			results:  []string{"string", "error"},
			declares: true,
		},
		{
			name:     "variadic and composite types",
			code:     "import \"sort\"\n\nfunc (s *Solution) Sum(m map[string]int, xs ...[]int) {\n\tsort.Ints(nil)\n}\n",
			typeName: "Solution",
			method:   "Sum",
			params:   []domain.Param{{Name: "m", Type: "map[string]int"}, {Name: "xs", Type: "...[]int"}},
			results:  []string{},
			variadic: true,
		},
		{
			name:     "unexported helpers are skipped",
			code:     "func helper() int { return 1 }\n\nfunc (s *Solution) solveInner() {}\n\nfunc (s *Solution) Solve() int { return helper() }\n",
			typeName: "Solution",
			method:   "Solve",
			params:   []domain.Param{},
			results:  []string{"int"},
		},
		{
			name:     "body syntax error still yields a signature",
			code:     "func (s *Solution) Solve(a int) int {\n\treturn a +\n}\n",
			typeName: "Solution",
			method:   "Solve",
			params:   []domain.Param{{Name: "a", Type: "int"}},
			results:  []string{"int"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := ParseSignature(tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.typeName, sig.TypeName)
			assert.Equal(t, tt.method, sig.MethodName)
			assert.Equal(t, tt.params, sig.Params)
			assert.Equal(t, tt.results, sig.Results)
			assert.Equal(t, tt.variadic, sig.Variadic)
			assert.Equal(t, tt.declares, sig.DeclaresType)
		})
	}
}

func TestParseSignature_AuthoringErrors(t *testing.T) {
	tests := []struct {
		name string
		code string
		want error
	}{
		{"empty source", "", domain.ErrNoClassFound},
		{"plain function", "func Solve(a int) int { return a }\n", domain.ErrNoClassFound},
		{"type without method", "type Solution struct{}\n", domain.ErrNoMethodFound},
		{"only unexported method", "type S struct{}\nfunc (s S) solve() {}\n", domain.ErrNoMethodFound},
		{"unnamed parameter", "func (s *Solution) Solve(int, string) int { return 0 }\n", domain.ErrInvalidArgumentFormat},
		{"blank parameter", "func (s *Solution) Solve(_ int) int { return 0 }\n", domain.ErrInvalidArgumentFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSignature(tt.code)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseSignature_ParamCountMatchesSource(t *testing.T) {
	sources := map[string]int{
		"func (s *Solution) Solve() {}":                          0,
		"func (s *Solution) Solve(a int) {}":                     1,
		"func (s *Solution) Solve(a, b, c float64, d bool) {}":   4,
		"func (s *Solution) Solve(a []int, b map[int]string) {}": 2,
	}
	for code, n := range sources {
		sig, err := ParseSignature(code)
		require.NoError(t, err, code)
		assert.Len(t, sig.Params, n, code)
	}
}
