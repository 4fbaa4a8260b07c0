// Package conformance checks that each property group's Go predicate and
// ClickHouse filter expression classify keys the same way.
//
// A divergence means FindGroups (and anything else reasoning about groups in
// process) disagrees with what ClickHouse materializes. The registry cannot
// detect this on its own; this package evaluates the filter text with the
// keyfilter reference interpreter and compares.
package conformance

import (
	"fmt"

	"github.com/roach88/propgroups/internal/keyfilter"
	"github.com/roach88/propgroups/internal/propgroup"
)

// Mismatch is a key on which the predicate and the expression disagree.
type Mismatch struct {
	Key        string `json:"key"`
	Predicate  bool   `json:"predicate"`
	Expression bool   `json:"expression"`
}

// Report is the outcome of checking one group.
type Report struct {
	Group      string     `json:"group"`
	Checked    int        `json:"checked"`
	Mismatches []Mismatch `json:"mismatches,omitempty"`
	// ParseError is set when the filter expression is outside the fragment
	// the reference interpreter understands. No keys are checked then.
	ParseError string `json:"parse_error,omitempty"`
}

// OK reports whether the group conforms on every checked key.
func (r Report) OK() bool {
	return r.ParseError == "" && len(r.Mismatches) == 0
}

// Check evaluates def on every key with both classifiers.
func Check(def *propgroup.Definition, keys []string) Report {
	report := Report{Group: def.Name()}

	expr, err := keyfilter.Parse(def.FilterExpression())
	if err != nil {
		report.ParseError = err.Error()
		return report
	}

	for _, key := range keys {
		report.Checked++
		want := def.Contains(key)
		got := expr.Eval(key)
		if want != got {
			report.Mismatches = append(report.Mismatches, Mismatch{
				Key:        key,
				Predicate:  want,
				Expression: got,
			})
		}
	}
	return report
}

// CheckRegistry checks every group of r, in registration order.
func CheckRegistry(r *propgroup.Registry, keys []string) []Report {
	var reports []Report
	for _, name := range r.Groups() {
		def, _ := r.Definition(name)
		reports = append(reports, Check(def, keys))
	}
	return reports
}

// Error summarizes failing reports, or returns nil when all conform.
func Error(reports []Report) error {
	failed := 0
	var first Report
	for _, r := range reports {
		if !r.OK() {
			if failed == 0 {
				first = r
			}
			failed++
		}
	}
	if failed == 0 {
		return nil
	}
	if first.ParseError != "" {
		return fmt.Errorf("%d group(s) do not conform; %s: %s", failed, first.Group, first.ParseError)
	}
	m := first.Mismatches[0]
	return fmt.Errorf("%d group(s) do not conform; %s: key %q predicate=%t expression=%t",
		failed, first.Group, m.Key, m.Predicate, m.Expression)
}
