// Package fault defines the error taxonomy shared by every genesynth layer.
//
// Every failure in the core is fatal to the run. The Kind sentinel tells the
// caller which phase rejected the schema:
//   - ErrConfig: the schema could not be turned into a graph
//   - ErrGeneration: a fixture could not produce its values
//   - ErrIntegrity: produced values violate a declared invariant
//   - ErrLane: an execution lane failed to run a task
package fault

import (
	"errors"
	"fmt"
)

var (
	ErrConfig     = errors.New("configuration error")
	ErrGeneration = errors.New("generation error")
	ErrIntegrity  = errors.New("integrity error")
	ErrLane       = errors.New("lane error")
)

// Error carries the failing node together with the taxonomy kind.
type Error struct {
	Kind error
	Node string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Node != "" {
		msg += ": " + e.Node
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func Configf(node, format string, args ...any) error {
	return &Error{Kind: ErrConfig, Node: node, Msg: fmt.Sprintf(format, args...)}
}

func Generationf(node, format string, args ...any) error {
	return &Error{Kind: ErrGeneration, Node: node, Msg: fmt.Sprintf(format, args...)}
}

func Integrityf(node, format string, args ...any) error {
	return &Error{Kind: ErrIntegrity, Node: node, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and node to an existing error. An error that already
// carries a kind is returned unchanged so the original classification wins.
func Wrap(kind error, node string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Kind: kind, Node: node, Err: err}
}

// NodeOf returns the node recorded on the first fault.Error in err's chain.
func NodeOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Node
	}
	return ""
}
