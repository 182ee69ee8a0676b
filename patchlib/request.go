package patchlib

import (
	"fmt"
	"strings"
)

// StackRequests is the set of values pushed before a hook is invoked. Values
// are always pushed in the order this, then parameters ascending. The return
// value is handled separately by the scripts which support it.
type StackRequests uint64

// MaxParams is the number of parameters StackRequests can refer to.
const MaxParams = 62

const (
	RequestThis StackRequests = 1 << iota
	RequestReturnValue
)

// RequestParam returns the request for the (zero-based) parameter i. It
// panics if i is not less than MaxParams.
func RequestParam(i int) StackRequests {
	if i < 0 || i >= MaxParams {
		panic(fmt.Sprintf("patchlib: parameter request %d out of range", i))
	}
	return 1 << (2 + uint(i))
}

// Requests combines requests into a set.
func Requests(r ...StackRequests) StackRequests {
	var s StackRequests
	for _, q := range r {
		s |= q
	}
	return s
}

// Has returns true if all of q are requested.
func (r StackRequests) Has(q StackRequests) bool {
	return r&q == q
}

// Params returns the requested parameter indexes in ascending order.
func (r StackRequests) Params() []int {
	var ps []int
	for i := 0; i < MaxParams; i++ {
		if r&RequestParam(i) != 0 {
			ps = append(ps, i)
		}
	}
	return ps
}

func (r StackRequests) String() string {
	var s []string
	if r.Has(RequestThis) {
		s = append(s, "this")
	}
	for _, p := range r.Params() {
		s = append(s, fmt.Sprintf("param%d", p))
	}
	if r.Has(RequestReturnValue) {
		s = append(s, "return")
	}
	return "[" + strings.Join(s, ", ") + "]"
}
