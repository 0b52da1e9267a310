package models

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func vocabulary() []string {
	var out []string
	for k := range idvStatuses {
		out = append(out, k)
	}
	for k := range proctoringStatuses {
		out = append(out, k)
	}
	return out
}

// TestMappersNeverEmitPending: pending is the initial state, never a target.
func TestMappersNeverEmitPending(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	raw := gen.OneGenOf(gen.OneConstOf(toAny(vocabulary())...), gen.AnyString())

	properties.Property("IDV mapping yields a valid non-pending status or nothing", prop.ForAll(
		func(v string) bool {
			s, ok := StatusFromIDV(v)
			if !ok {
				return s == ""
			}
			return s.IsValid() && s != StatusPending
		},
		raw,
	))

	properties.Property("proctoring mapping yields a valid non-pending status or nothing", prop.ForAll(
		func(v string) bool {
			s, ok := StatusFromProctoring(v)
			if !ok {
				return s == ""
			}
			return s.IsValid() && s != StatusPending
		},
		raw,
	))

	properties.TestingRun(t)
}

// TestTransitionsAreForwardOnly folds random status sequences through
// CanTransitionTo and checks the rank never decreases.
func TestTransitionsAreForwardOnly(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	statuses := gen.OneConstOf(StatusPending, StatusSubmitted, StatusApproved, StatusDenied)

	properties.Property("accepted transitions never lower the rank", prop.ForAll(
		func(seq []Status) bool {
			current := StatusPending
			for _, next := range seq {
				if current.CanTransitionTo(next) {
					if statusRank[next] < statusRank[current] {
						return false
					}
					current = next
				}
			}
			return true
		},
		gen.SliceOf(statuses, reflect.TypeOf(StatusPending)),
	))

	properties.TestingRun(t)
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
