package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfexsgo/core/internal/engine"
)

func TestRegistryMatchesByLanguagePattern(t *testing.T) {
	r := engine.NewRegistry()
	r.Register(engine.CWLDescriptor, &engine.CWLAdapter{})
	r.Register(engine.NextflowDescriptor, &engine.NextflowAdapter{})

	desc, adapter, ok := r.MatchLanguage("https://w3id.org/cwl/v1.2", "https://www.commonwl.org/")
	require.True(t, ok)
	assert.Equal(t, "cwl", desc.ShortName)
	assert.NotNil(t, adapter)

	_, _, ok = r.MatchLanguage("https://example.org/unknown-lang", "")
	assert.False(t, ok)
}

func TestRegistryOrdersByPriority(t *testing.T) {
	r := engine.NewRegistry()
	r.Register(engine.NextflowDescriptor, &engine.NextflowAdapter{})
	r.Register(engine.CWLDescriptor, &engine.CWLAdapter{})

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "cwl", all[0].Descriptor.ShortName, "higher-priority engine must come first")
}

func TestByTRSDescriptorLookup(t *testing.T) {
	r := engine.NewRegistry()
	r.Register(engine.CWLDescriptor, &engine.CWLAdapter{})
	desc, _, ok := r.ByTRSDescriptor("CWL")
	require.True(t, ok)
	assert.Equal(t, "cwl", desc.ShortName)
}
