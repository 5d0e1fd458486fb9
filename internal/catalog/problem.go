package catalog

import "fmt"

// Severity classifies a Problem.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Problem is a single diagnostic raised while compiling or validating a
// catalog. Problems are returned as values; nothing accumulates globally.
type Problem struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Source   string   `json:"source,omitempty"`
	Line     int      `json:"line,omitempty"`
}

func (p Problem) Error() string {
	switch {
	case p.Source != "" && p.Line > 0:
		return fmt.Sprintf("%s:%d: %s: %s", p.Source, p.Line, p.Severity, p.Message)
	case p.Source != "":
		return fmt.Sprintf("%s: %s: %s", p.Source, p.Severity, p.Message)
	default:
		return fmt.Sprintf("%s: %s", p.Severity, p.Message)
	}
}

// Problems is the result of a compile or validate pass.
type Problems []Problem

// Fatal reports whether any problem is an error.
func (ps Problems) Fatal() bool {
	for _, p := range ps {
		if p.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns the error-severity problems.
func (ps Problems) Errors() Problems {
	return ps.filter(SeverityError)
}

// Warnings returns the warning-severity problems.
func (ps Problems) Warnings() Problems {
	return ps.filter(SeverityWarning)
}

func (ps Problems) filter(sev Severity) Problems {
	var out Problems
	for _, p := range ps {
		if p.Severity == sev {
			out = append(out, p)
		}
	}
	return out
}

func errorf(r *Rule, format string, args ...any) Problem {
	p := Problem{Severity: SeverityError, Message: fmt.Sprintf(format, args...)}
	if r != nil {
		p.Source, p.Line = r.Source, r.Line
	}
	return p
}

func warnf(r *Rule, format string, args ...any) Problem {
	p := errorf(r, format, args...)
	p.Severity = SeverityWarning
	return p
}
