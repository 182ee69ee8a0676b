package patchlib

import "fmt"

// InvocationStrategy is how a hook gets run from patched code.
type InvocationStrategy int

const (
	// Call invokes the hook in its own class.
	Call InvocationStrategy = iota
	// Transplant copies the hook method into the patched class and invokes
	// the copy.
	Transplant
	// Insert inlines the hook body at the injection point.
	Insert
)

// ParseInvocationStrategy parses the name of a strategy. The empty string is
// Call.
func ParseInvocationStrategy(s string) (InvocationStrategy, error) {
	switch s {
	case "", "call":
		return Call, nil
	case "transplant":
		return Transplant, nil
	case "insert":
		return Insert, nil
	default:
		return 0, fmt.Errorf("%w: unknown invocation strategy %q", ErrInvalidArgument, s)
	}
}

func (s InvocationStrategy) String() string {
	switch s {
	case Call:
		return "call"
	case Transplant:
		return "transplant"
	case Insert:
		return "insert"
	default:
		return fmt.Sprintf("InvocationStrategy(%d)", int(s))
	}
}
