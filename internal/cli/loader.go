package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/quip/internal/catalog"
	"github.com/roach88/quip/internal/compiler"
	"github.com/roach88/quip/internal/engine"
)

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeNotFound      = "E002" // Path not found
	ErrCodeLoadFailed    = "E003" // Catalog could not be read
	ErrCodeCatalogErrors = "E004" // Catalog has error-severity problems
	ErrCodeWriteFailed   = "E005" // File write error
	ErrCodeBadFact       = "E101" // Unknown fact or unparsable value
	ErrCodeBadQuery      = "E102" // Invalid mode, bucket or range
	ErrCodeEngine        = "E201" // Engine failed to initialise
	ErrCodeStore         = "E301" // Database error
	ErrCodeScenario      = "E401" // Scenario files could not be found
)

// Catalog formats accepted by LoadCatalog.
const (
	FormatCUE  = "cue"
	FormatJSON = "json"
)

// LoadedCatalog is a catalog read from disk with its problems.
type LoadedCatalog struct {
	Path     string
	Format   string
	Catalog  *catalog.Catalog
	Problems catalog.Problems
}

// LoadError reports a catalog path that could not be read at all.
type LoadError struct {
	Code    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// LoadCatalog reads a catalog from a directory of CUE files, a single .cue
// file or a compiled .json catalog. Compile and validation problems are
// returned in LoadedCatalog.Problems, not as an error.
func LoadCatalog(path string) (*LoadedCatalog, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("catalog not found: %s", path), Err: err}
	}

	out := &LoadedCatalog{Path: path, Format: FormatCUE}

	switch {
	case info.IsDir():
		c, ps, err := compiler.LoadDir(path)
		if err != nil {
			var lerr *compiler.LoadError
			if errors.As(err, &lerr) {
				return nil, &LoadError{Code: ErrCodeLoadFailed, Message: lerr.Message, Err: lerr.Err}
			}
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "loading catalog", Err: err}
		}
		out.Catalog, out.Problems = c, ps

	case strings.EqualFold(filepath.Ext(path), ".json"):
		f, err := os.Open(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "opening catalog", Err: err}
		}
		defer f.Close()
		c, err := catalog.Decode(f)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "reading JSON catalog", Err: err}
		}
		out.Format = FormatJSON
		out.Catalog, out.Problems = c, catalog.Validate(c)

	default:
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "reading catalog", Err: err}
		}
		out.Catalog, out.Problems = compiler.CompileSource(filepath.Base(path), src)
	}

	return out, nil
}

// catalogSource re-reads path on every engine Init and Reload. A catalog
// with errors is refused rather than loaded empty.
func catalogSource(path string) engine.Source {
	return engine.SourceFunc(func(ctx context.Context) (*catalog.Catalog, error) {
		loaded, err := LoadCatalog(path)
		if err != nil {
			return nil, err
		}
		if errs := loaded.Problems.Errors(); len(errs) > 0 {
			return nil, &LoadError{
				Code:    ErrCodeCatalogErrors,
				Message: fmt.Sprintf("catalog has %d error(s)", len(errs)),
				Err:     errs[0],
			}
		}
		return loaded.Catalog, nil
	})
}
