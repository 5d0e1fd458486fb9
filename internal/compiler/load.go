package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/quip/internal/catalog"
)

// LoadError reports a catalog directory that could not be read or built.
// Compile problems inside readable CUE are returned as catalog.Problems
// instead.
type LoadError struct {
	Dir     string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Dir, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// LoadDir builds every .cue file in dir as one CUE instance and compiles
// it. The files must share a package clause.
func LoadDir(dir string) (*catalog.Catalog, catalog.Problems, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, nil, &LoadError{Dir: dir, Message: "catalog directory not accessible", Err: err}
	}
	if !info.IsDir() {
		return nil, nil, &LoadError{Dir: dir, Message: "not a directory"}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, nil, &LoadError{Dir: dir, Message: "scanning directory", Err: err}
	}
	if len(files) == 0 {
		return nil, nil, &LoadError{Dir: dir, Message: "no CUE files found"}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, nil, &LoadError{Dir: dir, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, nil, &LoadError{Dir: dir, Message: "loading CUE files", Err: inst.Err}
	}

	value := cuecontext.New().BuildInstance(inst)
	c, ps := CompileCatalog(value)
	return c, ps, nil
}

// CompileSource compiles a single CUE document. filename is only used in
// positions.
func CompileSource(filename string, src []byte) (*catalog.Catalog, catalog.Problems) {
	value := cuecontext.New().CompileBytes(src, cue.Filename(filename))
	return CompileCatalog(value)
}

// FindCUEFiles returns the .cue files directly inside dir.
func FindCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".cue" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}
