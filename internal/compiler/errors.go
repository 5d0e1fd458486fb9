package compiler

import (
	stderrors "errors"
	"fmt"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/quip/internal/catalog"
)

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Problem converts the error to a catalog problem of error severity.
func (e *CompileError) Problem() catalog.Problem {
	p := catalog.Problem{
		Severity: catalog.SeverityError,
		Message:  fmt.Sprintf("%s: %s", e.Field, e.Message),
	}
	if e.Pos.IsValid() {
		p.Source = e.Pos.Filename()
		p.Line = e.Pos.Line()
	}
	return p
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}

// problemOf turns any compile failure into a problem.
func problemOf(err error) catalog.Problem {
	var ce *CompileError
	if stderrors.As(err, &ce) {
		return ce.Problem()
	}
	return catalog.Problem{Severity: catalog.SeverityError, Message: err.Error()}
}
