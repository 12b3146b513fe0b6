package patterns

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/componentforge/forge/pkg/models"
)

func TestLoadBuiltin(t *testing.T) {
	reg, err := LoadBuiltin()
	require.NoError(t, err)

	assert.GreaterOrEqual(t, reg.Len(), 10, "curated library ships at least 10 patterns")

	button, ok := reg.Get("shadcn-button")
	require.True(t, ok)
	assert.Equal(t, "Button", button.Metadata.ComponentType)
	assert.Contains(t, button.Metadata.Props, "variant")
	assert.Contains(t, button.Code, "Button")
	assert.NotEmpty(t, button.Version)

	// Every pattern has a code blob and a BM25 document.
	for _, p := range reg.All() {
		assert.NotEmpty(t, p.Code, p.ID)
		assert.NotEmpty(t, p.BM25Doc, p.ID)
		assert.Equal(t, strings.ToLower(p.BM25Doc), p.BM25Doc, p.ID)
	}
}

func TestRegistry_IDOrder(t *testing.T) {
	reg, err := LoadBuiltin()
	require.NoError(t, err)

	all := reg.All()
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].ID, all[i].ID)
	}
}

func TestRegistry_ByComponentType(t *testing.T) {
	reg, err := LoadBuiltin()
	require.NoError(t, err)

	buttons := reg.ByComponentType("Button")
	require.NotEmpty(t, buttons)
	for _, p := range buttons {
		assert.Equal(t, "Button", p.Metadata.ComponentType)
	}

	assert.Empty(t, reg.ByComponentType("Carousel"))
}

func TestNewRegistry_DuplicateID(t *testing.T) {
	_, err := NewRegistry([]models.Pattern{
		{ID: "dup", Version: "1"},
		{ID: "dup", Version: "2"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestGallery_Select(t *testing.T) {
	reg, err := LoadBuiltin()
	require.NoError(t, err)
	gallery := NewGallery(reg)

	button, _ := reg.Get("shadcn-button")
	exemplars := gallery.Select("Input", button)
	require.NotEmpty(t, exemplars)
	assert.LessOrEqual(t, len(exemplars), MaxExemplars)
	for _, ex := range exemplars {
		assert.Equal(t, "Input", ex.ComponentType)
		assert.NotEqual(t, button.Code, ex.Code)
	}
}

func TestBuildDoc(t *testing.T) {
	doc := BuildDoc(models.Pattern{
		Name:     "Button",
		Metadata: models.PatternMetadata{
			ComponentType: "Button",
			Description:   "Clickable Button",
			Props:         []string{"Variant", "Size"},
			A11y:          []string{"aria-label"},
		},
	})
	assert.Contains(t, doc, "button")
	assert.Contains(t, doc, "variant")
	assert.Contains(t, doc, "aria-label")
	assert.Equal(t, strings.ToLower(doc), doc)
}
