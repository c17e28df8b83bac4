// Package interp locates a usable Python interpreter among a prioritized
// candidate list. The build and start phases run in separate process
// contexts, so each phase resolves independently — there is no cached result.
package interp

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrNoRuntime is returned when no candidate interpreter is available.
var ErrNoRuntime = errors.New("no usable runtime found")

// Selection identifies the interpreter that won the probe.
type Selection struct {
	Name string // candidate name as declared, e.g. "python3.11"
	Path string // absolute path reported by the probe
}

// Resolver probes candidate interpreters in declared order. The lookPath
// field is swappable so tests never touch the real PATH.
type Resolver struct {
	lookPath func(name string) (string, error)
}

// New returns a Resolver that probes the real PATH.
func New() *Resolver {
	return &Resolver{lookPath: exec.LookPath}
}

// Resolve probes each candidate in order and returns the first one found.
// Ties are broken by declaration order. When the list is exhausted the error
// wraps ErrNoRuntime and names every attempted candidate — a silent default
// on a heterogeneous host would bind the deploy to the wrong interpreter.
func (r *Resolver) Resolve(candidates []string) (Selection, error) {
	if len(candidates) == 0 {
		return Selection{}, fmt.Errorf("%w: empty candidate list", ErrNoRuntime)
	}

	for _, name := range candidates {
		path, err := r.lookPath(name)
		if err != nil {
			continue
		}
		return Selection{Name: name, Path: path}, nil
	}

	return Selection{}, fmt.Errorf("%w: tried %s", ErrNoRuntime, strings.Join(candidates, ", "))
}
