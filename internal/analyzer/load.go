package analyzer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/compiler"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/ir"
)

// LoadResult contains the analyzers built from a directory of definitions.
type LoadResult struct {
	Analyzers []*SpecAnalyzer
	FileCount int // Number of CUE files found
}

// LoadError reports a definition file that could not be loaded.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// LoadDir compiles every .cue file under dir into analyzers. Each file is
// compiled on its own and may define any number of interfaces under the
// top-level "interface" field. Proto files are resolved against the
// directory of the defining file, then against protoPaths.
//
// A missing directory returns an error matching fs.ErrNotExist.
func LoadDir(dir string, protoPaths []string) (*LoadResult, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("analyzers directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("analyzers directory: not a directory: %s", dir)
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("scan analyzers directory: %w", err)
	}

	result := &LoadResult{FileCount: len(files)}
	ctx := cuecontext.New()
	seen := make(map[string]string)

	for _, path := range files {
		specs, err := loadFile(ctx, path)
		if err != nil {
			return nil, &LoadError{File: path, Err: err}
		}

		importPaths := append([]string{filepath.Dir(path)}, protoPaths...)
		for _, spec := range specs {
			if prev, ok := seen[spec.Name]; ok {
				return nil, &LoadError{File: path, Err: fmt.Errorf("interface %q already defined in %s", spec.Name, prev)}
			}
			seen[spec.Name] = path

			a, err := NewSpecAnalyzer(spec, importPaths)
			if err != nil {
				return nil, &LoadError{File: path, Err: err}
			}
			result.Analyzers = append(result.Analyzers, a)
		}
	}

	return result, nil
}

// RegisterDir loads dir and registers every analyzer in r. A missing
// directory registers nothing.
func RegisterDir(r *Registry, dir string, protoPaths []string) (int, error) {
	result, err := LoadDir(dir, protoPaths)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	for _, a := range result.Analyzers {
		if err := r.Register(a); err != nil {
			return 0, err
		}
	}
	return len(result.Analyzers), nil
}

func loadFile(ctx *cue.Context, path string) ([]*ir.InterfaceSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("building CUE value: %w", err)
	}

	ifaces := value.LookupPath(cue.ParsePath("interface"))
	if !ifaces.Exists() {
		return nil, nil
	}

	iter, err := ifaces.Fields()
	if err != nil {
		return nil, fmt.Errorf("iterating interfaces: %w", err)
	}

	var specs []*ir.InterfaceSpec
	for iter.Next() {
		spec, err := compiler.CompileInterface(iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths, sorted.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}
