// Package analyzer renders recorded transactions for a named interface.
//
// An Analyzer knows how to turn the opaque request and reply payloads of one
// interface into human-readable text. Analyzers are registered once at
// startup in a Registry and looked up by interface name; the inspector, the
// live tailer and the replay verifier all print through Print.
package analyzer

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/txlog"
)

// ErrNotFound is returned by Lookup when no analyzer is registered for an
// interface name.
var ErrNotFound = errors.New("analyzer not found")

// Analyzer renders the payloads of one interface.
type Analyzer interface {
	// InterfaceName is the descriptor the analyzer was built for.
	InterfaceName() string

	// Render writes a description of one call. Render never fails: payloads
	// it cannot decode are described as such.
	Render(w io.Writer, code uint32, request, reply []byte)
}

// Registry maps interface names to analyzers.
type Registry struct {
	mu        sync.RWMutex
	analyzers map[string]Analyzer
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{analyzers: make(map[string]Analyzer)}
}

// Register adds an analyzer. Registering a second analyzer for the same
// interface name is an error.
func (r *Registry) Register(a Analyzer) error {
	name := a.InterfaceName()
	if name == "" {
		return fmt.Errorf("register analyzer: empty interface name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.analyzers[name]; exists {
		return fmt.Errorf("register analyzer: duplicate interface %q", name)
	}
	r.analyzers[name] = a
	return nil
}

// Lookup returns the analyzer for name, or an error wrapping ErrNotFound.
func (r *Registry) Lookup(name string) (Analyzer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.analyzers[name]
	if !ok {
		return nil, fmt.Errorf("%w for interface: %s", ErrNotFound, name)
	}
	return a, nil
}

// Names returns the registered interface names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.analyzers))
	for name := range r.analyzers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered analyzers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.analyzers)
}

// Print writes the numbered block for one recorded transaction:
//
//	Transaction 1:
//	<analyzer output>
//	Status returned from this transaction: NO_ERROR
//
// followed by a blank line.
func Print(w io.Writer, a Analyzer, n int, tx txlog.Transaction) {
	fmt.Fprintf(w, "Transaction %d:\n", n)
	a.Render(w, tx.Code, tx.Data, tx.Reply)
	fmt.Fprintf(w, "Status returned from this transaction: %s\n\n", tx.Status)
}
