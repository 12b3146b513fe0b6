package patterns

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/componentforge/forge/pkg/models"
)

//go:embed library/*.yaml library/*.tsx
var builtinLibrary embed.FS

// Registry is the dense id → Pattern collection shared read-only across
// runs. No locking: it is never mutated after construction.
type Registry struct {
	byID  map[string]models.Pattern
	order []string
}

// NewRegistry builds a registry from loaded patterns. Duplicate ids reject
// the whole library: (id, version) immutability is a curation invariant.
func NewRegistry(loaded []models.Pattern) (*Registry, error) {
	r := &Registry{byID: make(map[string]models.Pattern, len(loaded))}
	for _, p := range loaded {
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate pattern id %q", p.ID)
		}
		r.byID[p.ID] = p
		r.order = append(r.order, p.ID)
	}
	sort.Strings(r.order)
	return r, nil
}

// LoadBuiltin loads the embedded curated library.
func LoadBuiltin() (*Registry, error) {
	loaded, err := Load(builtinLibrary, "library")
	if err != nil {
		return nil, err
	}
	return NewRegistry(loaded)
}

// LoadDir loads a library from a directory on disk, falling back to the
// embedded library when dir is empty or absent.
func LoadDir(dir string) (*Registry, error) {
	if dir == "" {
		return LoadBuiltin()
	}
	if _, err := os.Stat(dir); err != nil {
		return LoadBuiltin()
	}
	loaded, err := Load(os.DirFS(dir), ".")
	if err != nil {
		return nil, err
	}
	return NewRegistry(loaded)
}

var _ fs.FS = builtinLibrary

// Get returns a pattern by id.
func (r *Registry) Get(id string) (models.Pattern, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// All returns every pattern in id order.
func (r *Registry) All() []models.Pattern {
	out := make([]models.Pattern, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Len reports the library size.
func (r *Registry) Len() int { return len(r.order) }

// ByComponentType returns patterns whose component type matches, in id order.
func (r *Registry) ByComponentType(componentType string) []models.Pattern {
	var out []models.Pattern
	for _, id := range r.order {
		if p := r.byID[id]; p.Metadata.ComponentType == componentType {
			out = append(out, p)
		}
	}
	return out
}
