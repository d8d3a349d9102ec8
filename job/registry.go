package job

import (
	"context"
	"fmt"
	"sync"

	"github.com/loomworks/tether/codec"
)

// Definition is a typed job function definition. A is the argument type
// and R the result type; both must be serializable by the registry codec.
type Definition[A, R any] struct {
	// Name is the function identifier.
	Name string

	// Version distinguishes incompatible revisions of the same function.
	// Jobs hash over name and version, so bumping the version invalidates
	// cached results.
	Version string

	// Handler is the function that computes the result.
	Handler func(ctx context.Context, args A) (R, error)
}

// NewDefinition creates a typed job function definition.
func NewDefinition[A, R any](name, version string, handler func(ctx context.Context, args A) (R, error)) *Definition[A, R] {
	return &Definition[A, R]{
		Name:    name,
		Version: version,
		Handler: handler,
	}
}

// Registry maps function name and version to type-erased job functions.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	codec codec.Codec
	fns   map[string]Func
}

// NewRegistry creates an empty registry. A nil codec selects the default
// (msgpack).
func NewRegistry(c codec.Codec) *Registry {
	if c == nil {
		c = codec.Default()
	}

	return &Registry{
		codec: c,
		fns:   make(map[string]Func),
	}
}

// Codec returns the registry's argument/result codec.
func (r *Registry) Codec() codec.Codec { return r.codec }

// RegisterDefinition registers a typed definition. The generic handler is
// wrapped in a closure that decodes the arguments into A, runs the typed
// handler, and encodes the R result.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[A, R any](r *Registry, def *Definition[A, R]) {
	fn := func(ctx context.Context, args []byte) ([]byte, error) {
		var a A
		if len(args) > 0 {
			if err := r.codec.Unmarshal(args, &a); err != nil {
				return nil, fmt.Errorf("decode args for %s@%s: %w", def.Name, def.Version, err)
			}
		}

		result, err := def.Handler(ctx, a)
		if err != nil {
			return nil, err
		}

		encoded, err := r.codec.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("encode result for %s@%s: %w", def.Name, def.Version, err)
		}

		return encoded, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.fns[functionKey(def.Name, def.Version)] = fn
}

// Get returns the function registered under the given name and version.
// Returns false if none is registered.
func (r *Registry) Get(name, version string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.fns[functionKey(name, version)]

	return fn, ok
}

// Names returns all registered function keys in "name@version" form.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.fns))
	for name := range r.fns {
		names = append(names, name)
	}

	return names
}

// functionKey builds the registry key for a name and version.
func functionKey(name, version string) string {
	return name + "@" + version
}
