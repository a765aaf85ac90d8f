package testutils

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/mcuadros/go-defaults"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// Presence in expected JSON accepts any value for that key, as long as the key exists.
const Presence = "<<PRESENCE>>"

// TestingT is the subset of *testing.T the asserter reports through.
type TestingT interface {
	Errorf(format string, args ...interface{})
}

// OutputAssertOptions tunes how command output is compared.
type OutputAssertOptions struct {
	// JSON: keys present only in actual are ignored.
	IgnoreExtraKeys bool `default:"true"`
	// JSON: keys removed from both sides before comparing, at any depth.
	IgnoredFields []string
	// Text: trailing blanks on each line and surrounding empty lines are ignored.
	TrimSpace bool `default:"true"`
}

// OutputAsserter compares command output against expectations and reports a diff.
type OutputAsserter struct {
	t       TestingT
	options OutputAssertOptions
}

func NewOutputAsserter(t TestingT) *OutputAsserter {
	opts := OutputAssertOptions{}
	defaults.SetDefaults(&opts)
	return &OutputAsserter{t: t, options: opts}
}

// IgnoringFields drops the given JSON keys before comparison.
func (a *OutputAsserter) IgnoringFields(fields ...string) *OutputAsserter {
	a.options.IgnoredFields = append(a.options.IgnoredFields, fields...)
	return a
}

// Strict compares every JSON key and every whitespace character.
func (a *OutputAsserter) Strict() *OutputAsserter {
	a.options.IgnoreExtraKeys = false
	a.options.TrimSpace = false
	return a
}

// JSON reports a structural diff when actual does not match expected.
func (a *OutputAsserter) JSON(actual, expected string) bool {
	if diff := a.jsonDiff(actual, expected); diff != "" {
		a.t.Errorf("JSON output mismatch:\n%s", diff)
		return false
	}
	return true
}

// Text reports a unified diff when actual does not match expected.
func (a *OutputAsserter) Text(actual, expected string) bool {
	if diff := a.textDiff(actual, expected); diff != "" {
		a.t.Errorf("Text output mismatch:\n%s", diff)
		return false
	}
	return true
}

func (a *OutputAsserter) jsonDiff(actualJSON, expectedJSON string) string {
	var expected, actual interface{}
	if err := json.Unmarshal([]byte(expectedJSON), &expected); err != nil {
		return fmt.Sprintf("invalid expected JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(actualJSON), &actual); err != nil {
		return fmt.Sprintf("invalid actual JSON: %v", err)
	}

	// gojsondiff compares objects only
	expected = map[string]interface{}{"root": expected}
	actual = map[string]interface{}{"root": actual}

	walkPair(expected, actual, func(exp, act map[string]interface{}) {
		for _, f := range a.options.IgnoredFields {
			delete(exp, f)
			delete(act, f)
		}
		for k, v := range exp {
			if s, ok := v.(string); ok && s == Presence {
				if av, present := act[k]; present {
					exp[k] = av
				}
			}
		}
		if a.options.IgnoreExtraKeys {
			for k := range act {
				if _, ok := exp[k]; !ok {
					delete(act, k)
				}
			}
		}
	})

	expectedBytes, _ := json.Marshal(expected)
	actualBytes, _ := json.Marshal(actual)
	diff, err := gojsondiff.New().Compare(expectedBytes, actualBytes)
	if err != nil {
		return fmt.Sprintf("JSON comparison failed: %v", err)
	}
	if !diff.Modified() {
		return ""
	}

	f := formatter.NewAsciiFormatter(expected, formatter.AsciiFormatterConfig{ShowArrayIndex: true})
	out, _ := f.Format(diff)
	return out
}

// walkPair visits every object of expected together with its counterpart in actual.
func walkPair(expected, actual interface{}, visit func(exp, act map[string]interface{})) {
	switch exp := expected.(type) {
	case map[string]interface{}:
		act, ok := actual.(map[string]interface{})
		if !ok {
			return
		}
		visit(exp, act)
		for k := range exp {
			walkPair(exp[k], act[k], visit)
		}
	case []interface{}:
		act, ok := actual.([]interface{})
		if !ok {
			return
		}
		for i := range exp {
			if i < len(act) {
				walkPair(exp[i], act[i], visit)
			}
		}
	}
}

func (a *OutputAsserter) textDiff(actual, expected string) string {
	actual, expected = a.normalizeText(actual), a.normalizeText(expected)
	if actual == expected {
		return ""
	}
	edits := myers.ComputeEdits("", expected, actual)
	return fmt.Sprint(gotextdiff.ToUnified("expected", "actual", expected, edits))
}

func (a *OutputAsserter) normalizeText(text string) string {
	if !a.options.TrimSpace {
		return text
	}
	lines := strings.Split(strings.Trim(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.Join(lines, "\n") + "\n"
}
