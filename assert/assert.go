// Package assert provides the small set of test assertions used across the
// module. Every helper reports through t.Errorf so a test keeps running and
// shows all mismatches at once.
package assert

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

// Equal fails the test if expected and actual are not deeply equal.
func Equal(t testing.TB, expected, actual any, msg string) {
	t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		t.Errorf("%s: expected %#v, got %#v", msg, expected, actual)
	}
}

// NotEqual fails the test if expected and actual are deeply equal.
func NotEqual(t testing.TB, expected, actual any, msg string) {
	t.Helper()
	if reflect.DeepEqual(expected, actual) {
		t.Errorf("%s: expected values to differ, both are %#v", msg, actual)
	}
}

func True(t testing.TB, cond bool, msg string) {
	t.Helper()
	if !cond {
		t.Errorf("%s: expected true", msg)
	}
}

func False(t testing.TB, cond bool, msg string) {
	t.Helper()
	if cond {
		t.Errorf("%s: expected false", msg)
	}
}

// Nil fails the test if v is not nil. Typed nils (nil pointer in an
// interface) count as nil.
func Nil(t testing.TB, v any, msg string) {
	t.Helper()
	if !isNil(v) {
		t.Errorf("%s: expected nil, got %#v", msg, v)
	}
}

func NotNil(t testing.TB, v any, msg string) {
	t.Helper()
	if isNil(v) {
		t.Errorf("%s: expected non-nil value", msg)
	}
}

func NoError(t testing.TB, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", msg, err)
	}
}

func Error(t testing.TB, err error, msg string) {
	t.Helper()
	if err == nil {
		t.Fatalf("%s: expected an error", msg)
	}
}

// ErrorIs fails the test unless errors.Is(err, target).
func ErrorIs(t testing.TB, err, target error, msg string) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Errorf("%s: expected error %v, got %v", msg, target, err)
	}
}

func Less(t testing.TB, a, b int, msg string) {
	t.Helper()
	if a >= b {
		t.Errorf("%s: expected %d < %d", msg, a, b)
	}
}

func Contains(t testing.TB, s, substr, msg string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("%s: expected %q to contain %q", msg, s, substr)
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
