package genai

import "fmt"

// SynthesisError reports that the generative backend returned no usable
// payload or malformed output for the named operation.
type SynthesisError struct {
	Op  string
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesize %s: %v", e.Op, e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}

func synthesisErr(op string, err error) *SynthesisError {
	return &SynthesisError{Op: op, Err: err}
}
