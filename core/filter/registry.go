package filter

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// CustomOperatorProvider supplies the semantics of one or more custom
// operator codes. Resolve rewrites a definition (whose value has already
// been coerced to the property's declared kind) into a resolved predicate
// tree the backend can compile.
type CustomOperatorProvider interface {
	// SupportedOperators lists the codes this provider handles.
	SupportedOperators() []string
	// Resolve produces the predicate tree for one definition.
	Resolve(def FilterDefinition, ref PropertyReference) (*ResolvedFilter, error)
}

// OperatorRegistry is the process-wide store of custom operator providers,
// keyed by uppercase operator code. Lookups are lock-free; registration is
// atomic over a provider's entire supported set.
type OperatorRegistry struct {
	providers sync.Map // string -> CustomOperatorProvider
	mu        sync.Mutex
	logger    *zap.Logger
}

// NewOperatorRegistry creates an empty registry. Most callers use the
// package-level DefaultRegistry instead.
func NewOperatorRegistry(logger *zap.Logger) *OperatorRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OperatorRegistry{logger: logger}
}

// DefaultRegistry is the shared process-wide registry consulted by contexts
// that are not configured with their own.
var DefaultRegistry = NewOperatorRegistry(nil)

// Register adds every code of the provider's supported set, all-or-nothing.
// A collision with an already registered code fails the whole registration
// and leaves the registry untouched.
func (r *OperatorRegistry) Register(provider CustomOperatorProvider) error {
	if provider == nil {
		return fmt.Errorf("operator provider cannot be nil")
	}
	codes := provider.SupportedOperators()
	if len(codes) == 0 {
		return fmt.Errorf("operator provider declares no supported operators")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	normalized := make([]string, 0, len(codes))
	for _, code := range codes {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" {
			return fmt.Errorf("operator provider declares a blank operator code")
		}
		if _, exists := r.providers.Load(code); exists {
			return fmt.Errorf("duplicate operator %q", code)
		}
		normalized = append(normalized, code)
	}
	for _, code := range normalized {
		r.providers.Store(code, provider)
		r.logger.Info("Registered custom operator", zap.String("code", code))
	}
	return nil
}

// Unregister removes every code of the provider's supported set.
func (r *OperatorRegistry) Unregister(provider CustomOperatorProvider) {
	if provider == nil {
		return
	}
	r.UnregisterCodes(provider.SupportedOperators()...)
}

// UnregisterCodes removes the given codes, ignoring unknown ones.
func (r *OperatorRegistry) UnregisterCodes(codes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, code := range codes {
		r.providers.Delete(strings.ToUpper(strings.TrimSpace(code)))
	}
}

// Lookup resolves a code to its provider. Case is normalized.
func (r *OperatorRegistry) Lookup(code string) (CustomOperatorProvider, bool) {
	v, ok := r.providers.Load(strings.ToUpper(strings.TrimSpace(code)))
	if !ok {
		return nil, false
	}
	return v.(CustomOperatorProvider), true
}

// UnregisterAll empties the registry.
func (r *OperatorRegistry) UnregisterAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers.Range(func(key, _ any) bool {
		r.providers.Delete(key)
		return true
	})
}
