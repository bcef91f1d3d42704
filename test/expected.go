// Package test provides small assertion helpers shared by the unit tests in
// this module. It does not replace the testing package; it just trims the
// boilerplate around common comparisons.
package test

import (
	"fmt"
	"math"
	"reflect"
	"testing"
)

// ExpectFailure marks the test as failed if v does not represent a failure
// value: false, a non-nil error, or any other non-zero/non-nil value is
// accepted as "failed".
func ExpectFailure(t *testing.T, v interface{}) {
	t.Helper()

	switch r := v.(type) {
	case bool:
		if r {
			t.Errorf("expected failure, got success")
		}
	case error:
		if r == nil {
			t.Errorf("expected failure (error), got nil")
		}
	default:
		if v == nil {
			t.Errorf("expected failure, got nil")
		}
	}
}

// ExpectSuccess marks the test as failed if v does not represent success:
// true, a nil error, or a nil interface value.
func ExpectSuccess(t *testing.T, v interface{}) {
	t.Helper()

	switch r := v.(type) {
	case bool:
		if !r {
			t.Errorf("expected success, got failure")
		}
	case error:
		if r != nil {
			t.Errorf("expected success, got error: %v", r)
		}
	default:
		if v != nil {
			t.Errorf("expected success, got %v", v)
		}
	}
}

// Equate fails the test if expected and actual are not deeply equal.
func Equate(t *testing.T, actual interface{}, expected interface{}) {
	t.Helper()
	if !reflect.DeepEqual(actual, expected) {
		t.Errorf("values are not equal\ngot:  %s\nwant: %s", fmt.Sprint(actual), fmt.Sprint(expected))
	}
}

// ExpectEquality fails the test if expected and actual are not deeply equal.
func ExpectEquality(t *testing.T, actual interface{}, expected interface{}) {
	t.Helper()
	Equate(t, actual, expected)
}

// ExpectInequality fails the test if expected and actual are deeply equal.
func ExpectInequality(t *testing.T, actual interface{}, expected interface{}) {
	t.Helper()
	if reflect.DeepEqual(actual, expected) {
		t.Errorf("values should not be equal: %s", fmt.Sprint(actual))
	}
}

// ExpectApproximate fails the test if actual is further from expected than
// tolerance allows.
func ExpectApproximate(t *testing.T, actual float64, expected float64, tolerance float64) {
	t.Helper()
	if math.Abs(actual-expected) > tolerance {
		t.Errorf("value %f is not within %f of %f", actual, tolerance, expected)
	}
}
