package interp

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/traefik/yaegi/interp"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// convertArgument turns a literal into a value of the parameter type. An
// empty literal yields the zero value.
func convertArgument(literal string, t reflect.Type) (reflect.Value, error) {
	v := reflect.New(t).Elem()
	if literal == "" {
		return v, nil
	}

	switch t.Kind() {
	case reflect.String:
		v.SetString(literal)
		return v, nil
	case reflect.Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(literal))
		if err != nil {
			return v, fmt.Errorf("cannot convert %q to %s: %w", literal, t, err)
		}
		v.SetBool(b)
		return v, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(strings.TrimSpace(literal), 10, t.Bits())
		if err != nil {
			return v, fmt.Errorf("cannot convert %q to %s: %w", literal, t, err)
		}
		v.SetInt(n)
		return v, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(strings.TrimSpace(literal), 10, t.Bits())
		if err != nil {
			return v, fmt.Errorf("cannot convert %q to %s: %w", literal, t, err)
		}
		v.SetUint(n)
		return v, nil
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(strings.TrimSpace(literal), t.Bits())
		if err != nil {
			return v, fmt.Errorf("cannot convert %q to %s: %w", literal, t, err)
		}
		v.SetFloat(f)
		return v, nil
	}

	ptr := reflect.New(t)
	if err := json.UnmarshalFromString(literal, ptr.Interface()); err != nil {
		return v, fmt.Errorf("cannot decode %q into %s: %w", literal, t, err)
	}
	return ptr.Elem(), nil
}

// innermostMessage reduces a panic value or error to the message of its
// innermost cause.
func innermostMessage(r interface{}) string {
	switch p := r.(type) {
	case interp.Panic:
		r = p.Value
	case *interp.Panic:
		r = p.Value
	}

	err, ok := r.(error)
	if !ok {
		return fmt.Sprint(r)
	}
	for {
		inner := errors.Unwrap(err)
		if inner == nil {
			return err.Error()
		}
		err = inner
	}
}
