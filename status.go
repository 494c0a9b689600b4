package btreex

import (
	"fmt"
	"strings"
)

// Status is the coarse outcome of a node.
type Status int

const (
	// None means the node never started or has been fully reset.
	None Status = iota
	// Running means the node is in progress.
	Running
	// Success is a completed, successful outcome.
	Success
	// Failure is a completed, failed outcome.
	Failure
)

var statusNames = [...]string{"None", "Running", "Success", "Failure"}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Terminal reports whether s is Success or Failure.
func (s Status) Terminal() bool {
	return s == Success || s == Failure
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	for i, name := range statusNames {
		if strings.EqualFold(name, string(text)) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}

// SubStatus is the phase of a node within one activation-to-completion cycle.
//
//	None -> Enabling -> Entering -> Running -> (Succeeding | Failing) -> Exiting -> Done
//	Done -> Entering (re-entry) | Disabling -> None (reset)
type SubStatus int

const (
	SubNone SubStatus = iota
	SubEnabling
	SubEntering
	SubRunning
	SubSucceeding
	SubFailing
	SubExiting
	SubDone
	SubDisabling
)

var subStatusNames = [...]string{
	"None", "Enabling", "Entering", "Running", "Succeeding", "Failing", "Exiting", "Done", "Disabling",
}

func (s SubStatus) String() string {
	if s >= 0 && int(s) < len(subStatusNames) {
		return subStatusNames[s]
	}
	return fmt.Sprintf("SubStatus(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s SubStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SubStatus) UnmarshalText(text []byte) error {
	for i, name := range subStatusNames {
		if strings.EqualFold(name, string(text)) {
			*s = SubStatus(i)
			return nil
		}
	}
	return fmt.Errorf("unknown sub-status %q", text)
}

// Kind is the structural variant of a node.
type Kind int

const (
	KindLeaf Kind = iota
	KindDecorator
	KindComposite
)

func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "Leaf"
	case KindDecorator:
		return "Decorator"
	case KindComposite:
		return "Composite"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Phase names a lifecycle phase, used to attribute callback failures.
type Phase int

const (
	PhaseEnable Phase = iota
	PhaseEnter
	PhasePreTick
	PhaseTick
	PhasePostTick
	PhaseSuccess
	PhaseFailure
	PhaseExit
	PhaseDisable
	PhaseInvalidate
)

var phaseNames = [...]string{
	"enable", "enter", "pre-tick", "tick", "post-tick", "success", "failure", "exit", "disable", "invalidate",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}
