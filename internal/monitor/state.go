// Package monitor follows long-running backend operations. A Subscription
// turns an operation's progress stream into ordered callbacks ending in
// exactly one completion or failure; a Loader builds the load-with-progress
// flow of a city dataset on top of it.
package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
)

// State is the lifecycle state of an operation.
type State int32

// Operation states. Complete and Failed are terminal.
const (
	Pending State = iota
	InProgress
	Complete
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case InProgress:
		return "in_progress"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Terminal reports whether s is Complete or Failed.
func (s State) Terminal() bool {
	return s == Complete || s == Failed
}

// MarshalJSON encodes the state by name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a state name.
func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for _, st := range []State{Pending, InProgress, Complete, Failed} {
		if st.String() == name {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown operation state %q", name)
}

// ConnectionErrorMessage is reported when the progress stream breaks or
// ends before a terminal frame.
const ConnectionErrorMessage = "Connection error"

// ErrOperationFailed is wrapped by every *OperationError.
var ErrOperationFailed = errors.New("operation failed")

// OperationError reports an operation that ended in the Failed state.
type OperationError struct {
	OperationID string
	Message     string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation %s failed: %s", e.OperationID, e.Message)
}

func (e *OperationError) Unwrap() error {
	return ErrOperationFailed
}
