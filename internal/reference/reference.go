// Package reference implements typed placeholders for values that are not
// known while a pipeline is being declared: the output of a step that has not
// run yet, or a runtime parameter supplied at submission time. A Ref is an
// ordinary comparable struct, so inputs stay serializable and a step can be
// declared before the concrete representation of its producer exists.
package reference

import (
	"fmt"
	"regexp"
)

// RefKind discriminates the two placeholder variants.
type RefKind int

const (
	// ProducerOutput stands for a named output of a previously declared step.
	ProducerOutput RefKind = iota
	// Parameter stands for a named runtime parameter.
	Parameter
)

// Ref is a symbolic placeholder for a not-yet-known value.
// The zero value is not a valid Ref; construct via Output or Param.
type Ref struct {
	Kind     RefKind
	Producer string // step name, ProducerOutput only
	Field    string // output name or parameter name
}

// Output returns a placeholder for the named output of the named step.
func Output(producer, field string) Ref {
	return Ref{Kind: ProducerOutput, Producer: producer, Field: field}
}

// Param returns a placeholder for the named runtime parameter.
func Param(name string) Ref {
	return Ref{Kind: Parameter, Field: name}
}

// nameRe is the safe alphabet for step, output, and parameter names. The
// restriction keeps the string codec below unambiguous and reversible.
var nameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidName reports whether name fits the codec-safe alphabet.
func ValidName(name string) bool {
	return nameRe.MatchString(name)
}

// String encodes the Ref in the interop form used by pipeline documents.
func (r Ref) String() string {
	if r.Kind == Parameter {
		return fmt.Sprintf("{{params.%s}}", r.Field)
	}
	return fmt.Sprintf("{{tasks.%s.outputs.%s}}", r.Producer, r.Field)
}

var (
	taskRefRe  = regexp.MustCompile(`^\{\{tasks\.([A-Za-z0-9_-]+)\.outputs\.([A-Za-z0-9_-]+)\}\}$`)
	paramRefRe = regexp.MustCompile(`^\{\{params\.([A-Za-z0-9_-]+)\}\}$`)
)

// Parse decodes the interop string form of a Ref. The second return value is
// false when s is not a placeholder at all, in which case the caller should
// treat s as a literal. A string that looks like a placeholder but violates
// the safe alphabet is rejected rather than passed through silently.
func Parse(s string) (Ref, bool, error) {
	if m := taskRefRe.FindStringSubmatch(s); m != nil {
		return Output(m[1], m[2]), true, nil
	}
	if m := paramRefRe.FindStringSubmatch(s); m != nil {
		return Param(m[1]), true, nil
	}
	if looksLikeRef(s) {
		return Ref{}, false, fmt.Errorf("malformed placeholder %q", s)
	}
	return Ref{}, false, nil
}

var refShapeRe = regexp.MustCompile(`^\{\{.*\}\}$`)

func looksLikeRef(s string) bool {
	return refShapeRe.MatchString(s)
}
