package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	codes []string
}

func (p *stubProvider) SupportedOperators() []string { return p.codes }

func (p *stubProvider) Resolve(def FilterDefinition, ref PropertyReference) (*ResolvedFilter, error) {
	return Resolved(ref, OpEq, def.Value), nil
}

func TestOperatorRegistry_RegisterAndLookup(t *testing.T) {
	registry := NewOperatorRegistry(nil)
	provider := &stubProvider{codes: []string{"starts_with", "ENDS_WITH"}}

	require.NoError(t, registry.Register(provider))

	got, ok := registry.Lookup("STARTS_WITH")
	assert.True(t, ok)
	assert.Same(t, provider, got)

	// Case is normalized on lookup too.
	got, ok = registry.Lookup("ends_with")
	assert.True(t, ok)
	assert.Same(t, provider, got)
}

func TestOperatorRegistry_DuplicateIsAtomic(t *testing.T) {
	registry := NewOperatorRegistry(nil)
	require.NoError(t, registry.Register(&stubProvider{codes: []string{"COLLIDES"}}))

	err := registry.Register(&stubProvider{codes: []string{"FRESH", "COLLIDES"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate operator")

	// All-or-nothing: the non-colliding code must not have been registered.
	_, ok := registry.Lookup("FRESH")
	assert.False(t, ok)
}

func TestOperatorRegistry_Unregister(t *testing.T) {
	registry := NewOperatorRegistry(nil)
	provider := &stubProvider{codes: []string{"A", "B"}}
	require.NoError(t, registry.Register(provider))

	registry.Unregister(provider)
	_, ok := registry.Lookup("A")
	assert.False(t, ok)
	_, ok = registry.Lookup("B")
	assert.False(t, ok)

	// Re-registration after removal succeeds.
	require.NoError(t, registry.Register(provider))
	registry.UnregisterCodes("a")
	_, ok = registry.Lookup("A")
	assert.False(t, ok)
	_, ok = registry.Lookup("B")
	assert.True(t, ok)
}

func TestOperatorRegistry_UnregisterAll(t *testing.T) {
	registry := NewOperatorRegistry(nil)
	require.NoError(t, registry.Register(&stubProvider{codes: []string{"X"}}))
	require.NoError(t, registry.Register(&stubProvider{codes: []string{"Y"}}))

	registry.UnregisterAll()
	_, ok := registry.Lookup("X")
	assert.False(t, ok)
	_, ok = registry.Lookup("Y")
	assert.False(t, ok)
}

func TestOperatorRegistry_RejectsInvalidProviders(t *testing.T) {
	registry := NewOperatorRegistry(nil)
	assert.Error(t, registry.Register(nil))
	assert.Error(t, registry.Register(&stubProvider{}))
	assert.Error(t, registry.Register(&stubProvider{codes: []string{"  "}}))
}
