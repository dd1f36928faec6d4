package harness

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/txlog"
)

// AssertionError is returned when an assertion fails. It carries the
// recorded log so the failure can be read without rerunning.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Log      []string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nRecorded log:\n")
	for i, line := range e.Log {
		fmt.Fprintf(&buf, "  [%d] %s\n", i+1, line)
	}
	return buf.String()
}

// describeLog renders one line per record for AssertionError.
func describeLog(r *Result) []string {
	lines := make([]string, len(r.Records))
	for i, tx := range r.Records {
		lines[i] = fmt.Sprintf("%s %s %s", methodLabel(r.methods, tx.Code), tx.Request(), tx.Status)
	}
	return lines
}

func methodLabel(t methodTable, code uint32) string {
	if name := t.name(code); name != "" {
		return name
	}
	return fmt.Sprintf("code %d", code)
}

// assertLogCount checks the number of recorded transactions.
func assertLogCount(r *Result, a Assertion) error {
	if len(r.Records) != a.Count {
		return &AssertionError{
			Type:     AssertLogCount,
			Expected: fmt.Sprintf("%d records", a.Count),
			Actual:   fmt.Sprintf("%d records", len(r.Records)),
			Log:      describeLog(r),
		}
	}
	return nil
}

// assertLogContains checks that some record of the method carries a JSON
// request containing the expected fields.
func assertLogContains(r *Result, a Assertion) error {
	for _, tx := range r.Records {
		if !r.methods.matches(a.Method, tx.Code) {
			continue
		}
		req := tx.Request()
		if len(a.Args) == 0 {
			return nil
		}
		if gjson.ValidBytes(req) && len(matchFields(req, a.Args, "request")) == 0 {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertLogContains,
		Expected: fmt.Sprintf("%s with args %v", a.Method, a.Args),
		Actual:   "not found in log",
		Log:      describeLog(r),
	}
}

// assertLogOrder checks that the methods were first recorded in the given
// order. Intervening records are allowed.
func assertLogOrder(r *Result, a Assertion) error {
	positions := make(map[string]int)
	for i, tx := range r.Records {
		for _, m := range a.Methods {
			if positions[m] == 0 && r.methods.matches(m, tx.Code) {
				positions[m] = i + 1
			}
		}
	}

	for _, m := range a.Methods {
		if positions[m] == 0 {
			return &AssertionError{
				Type:     AssertLogOrder,
				Expected: fmt.Sprintf("all methods present: %v", a.Methods),
				Actual:   fmt.Sprintf("missing method: %s", m),
				Log:      describeLog(r),
			}
		}
	}

	for i := 1; i < len(a.Methods); i++ {
		prev, curr := a.Methods[i-1], a.Methods[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertLogOrder,
				Expected: fmt.Sprintf("methods in order: %v", a.Methods),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Log: describeLog(r),
			}
		}
	}
	return nil
}

// assertLogStatus counts records with the given status, optionally limited
// to one method.
func assertLogStatus(r *Result, a Assertion) error {
	want, err := txlog.ParseStatus(a.Status)
	if err != nil {
		return err
	}

	count := 0
	for _, tx := range r.Records {
		if tx.Status != want {
			continue
		}
		if a.Method != "" && !r.methods.matches(a.Method, tx.Code) {
			continue
		}
		count++
	}

	if count != a.Count {
		subject := want.String()
		if a.Method != "" {
			subject = a.Method + " returning " + subject
		}
		return &AssertionError{
			Type:     AssertLogStatus,
			Expected: fmt.Sprintf("%d records of %s", a.Count, subject),
			Actual:   fmt.Sprintf("%d records", count),
			Log:      describeLog(r),
		}
	}
	return nil
}

// assertReplayMatches checks that replaying the log against a fresh
// service reproduced every recorded status.
func assertReplayMatches(r *Result) error {
	if r.Replay == nil {
		return fmt.Errorf("replay_matches: log was not replayed")
	}
	if r.Replay.AllMatched {
		return nil
	}

	var diffs []string
	for _, m := range r.Replay.Mismatches() {
		if m.Error != "" {
			diffs = append(diffs, fmt.Sprintf("#%d call failed: %s", m.Index, m.Error))
			continue
		}
		diffs = append(diffs, fmt.Sprintf("#%d expected %s, received %s", m.Index, m.Expected, m.Actual))
	}
	return &AssertionError{
		Type:     AssertReplayMatches,
		Expected: "every recorded status reproduced",
		Actual:   strings.Join(diffs, "; "),
		Log:      describeLog(r),
	}
}

func wantsReplay(assertions []Assertion) bool {
	for _, a := range assertions {
		if a.Type == AssertReplayMatches {
			return true
		}
	}
	return false
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertLogCount:
			err = assertLogCount(result, assertion)
		case AssertLogContains:
			err = assertLogContains(result, assertion)
		case AssertLogOrder:
			err = assertLogOrder(result, assertion)
		case AssertLogStatus:
			err = assertLogStatus(result, assertion)
		case AssertReplayMatches:
			err = assertReplayMatches(result)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// matchFields checks that the JSON document holds every expected field,
// keyed by gjson path. Extra fields are ignored. It returns one message per
// missing or differing field, in path order.
func matchFields(doc []byte, expected map[string]any, what string) []string {
	paths := make([]string, 0, len(expected))
	for p := range expected {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var errs []string
	for _, p := range paths {
		got := gjson.GetBytes(doc, p)
		if !got.Exists() {
			errs = append(errs, fmt.Sprintf("%s field %q missing", what, p))
			continue
		}
		if !valuesEqual(got.Value(), expected[p]) {
			errs = append(errs, fmt.Sprintf("%s field %q: expected %v, got %s", what, p, expected[p], got.Raw))
		}
	}
	return errs
}

// valuesEqual compares a decoded JSON value with a YAML-decoded one. JSON
// numbers decode as float64 while YAML yields ints, so numbers compare by
// value.
func valuesEqual(actual, expected any) bool {
	if af, ok := toFloat(actual); ok {
		ef, ok := toFloat(expected)
		return ok && af == ef
	}

	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok || len(act) != len(exp) {
			return false
		}
		for k, v := range exp {
			if !valuesEqual(act[k], v) {
				return false
			}
		}
		return true
	case []any:
		act, ok := actual.([]any)
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !valuesEqual(act[i], exp[i]) {
				return false
			}
		}
		return true
	}

	return reflect.DeepEqual(actual, expected)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
