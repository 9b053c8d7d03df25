package harness

import (
	stdjson "encoding/json"
	"math/big"
	"reflect"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// exact decodes numbers as their source text so integers beyond 2^53 and
// long decimals survive a round trip.
var exact = jsoniter.Config{
	EscapeHTML:  true,
	SortMapKeys: true,
	UseNumber:   true,
}.Froze()

// Literal turns raw JSON text into a literal value: JSON strings are
// unquoted, everything else is compacted JSON text. Text that is not valid
// JSON is returned trimmed.
func Literal(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	var s string
	if raw[0] == '"' && json.UnmarshalFromString(raw, &s) == nil {
		return s
	}
	out, err := compact(raw)
	if err != nil {
		return raw
	}
	return out
}

func compact(raw string) (string, error) {
	var v interface{}
	if err := exact.UnmarshalFromString(raw, &v); err != nil {
		return "", err
	}
	return exact.MarshalToString(v)
}

// FormatValue renders a returned value as a literal.
func FormatValue(v interface{}) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return Literal(string(out)), nil
}

// MatchExpected compares a returned literal with an expected literal. A
// method with a single string result compares text exactly. Any other
// result compares by JSON value, with numbers compared exactly.
func MatchExpected(returned, expected string, sig *domain.MethodSignature) bool {
	if StringResult(sig) {
		return returned == expected
	}
	returned = strings.TrimSpace(returned)
	expected = strings.TrimSpace(expected)
	if returned == expected {
		return true
	}
	var got, want interface{}
	if exact.UnmarshalFromString(returned, &got) != nil {
		return false
	}
	if exact.UnmarshalFromString(expected, &want) != nil {
		return false
	}
	return equalValues(got, want)
}

// StringResult reports whether the graded value is a single string.
func StringResult(sig *domain.MethodSignature) bool {
	if sig == nil {
		return false
	}
	values := len(sig.Results)
	if sig.ReturnsError() {
		values--
	}
	return values == 1 && sig.Results[0] == "string"
}

func equalValues(got, want interface{}) bool {
	switch w := want.(type) {
	case stdjson.Number:
		g, ok := got.(stdjson.Number)
		return ok && equalNumbers(g, w)
	case []interface{}:
		g, ok := got.([]interface{})
		if !ok || len(g) != len(w) {
			return false
		}
		for idx := range w {
			if !equalValues(g[idx], w[idx]) {
				return false
			}
		}
		return true
	case map[string]interface{}:
		g, ok := got.(map[string]interface{})
		if !ok || len(g) != len(w) {
			return false
		}
		for key, wv := range w {
			gv, found := g[key]
			if !found || !equalValues(gv, wv) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(got, want)
	}
}

func equalNumbers(a, b stdjson.Number) bool {
	if a == b {
		return true
	}
	x, okX := new(big.Rat).SetString(a.String())
	y, okY := new(big.Rat).SetString(b.String())
	return okX && okY && x.Cmp(y) == 0
}
