// Package patterns holds the curated pattern library: loading, the in-memory
// registry, and the exemplar gallery used for few-shot prompting. The library
// is read-only after curation; callers pass pattern ids across stages, never
// raw references.
package patterns

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/componentforge/forge/pkg/models"
)

// record is the on-disk YAML shape of one curated pattern. The TypeScript
// source lives in a sibling blob referenced by code_file.
type record struct {
	ID            string   `yaml:"id"`
	Name          string   `yaml:"name"`
	Source        string   `yaml:"source"`
	Version       string   `yaml:"version"`
	ComponentType string   `yaml:"component_type"`
	Description   string   `yaml:"description"`
	Props         []string `yaml:"props"`
	Variants      []string `yaml:"variants"`
	States        []string `yaml:"states"`
	A11y          []string `yaml:"a11y"`
	CodeFile      string   `yaml:"code_file"`
}

// Load reads every *.yaml pattern record under dir in fsys, resolves its
// code blob, and builds the normalized BM25 document. Records are returned
// sorted by id so curation order never leaks into retrieval ties.
func Load(fsys fs.FS, dir string) ([]models.Pattern, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read pattern library dir %q: %w", dir, err)
	}

	var loaded []models.Pattern
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read pattern record %s: %w", entry.Name(), err)
		}
		var rec record
		if err := yaml.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("parse pattern record %s: %w", entry.Name(), err)
		}
		if err := validateRecord(rec); err != nil {
			return nil, fmt.Errorf("pattern record %s: %w", entry.Name(), err)
		}
		code, err := fs.ReadFile(fsys, path.Join(dir, rec.CodeFile))
		if err != nil {
			return nil, fmt.Errorf("read code blob for pattern %s: %w", rec.ID, err)
		}

		p := models.Pattern{
			ID:       rec.ID,
			Name:     rec.Name,
			Source:   rec.Source,
			Version:  rec.Version,
			Code:     string(code),
			Metadata: models.PatternMetadata{
				ComponentType: rec.ComponentType,
				Description:   rec.Description,
				Props:         rec.Props,
				Variants:      rec.Variants,
				States:        rec.States,
				A11y:          rec.A11y,
			},
		}
		p.BM25Doc = BuildDoc(p)
		loaded = append(loaded, p)
	}

	if len(loaded) == 0 {
		return nil, fmt.Errorf("pattern library dir %q contains no records", dir)
	}
	sort.Slice(loaded, func(i, j int) bool { return loaded[i].ID < loaded[j].ID })
	return loaded, nil
}

func validateRecord(rec record) error {
	switch {
	case rec.ID == "":
		return fmt.Errorf("missing id")
	case rec.Version == "":
		return fmt.Errorf("missing version")
	case rec.ComponentType == "":
		return fmt.Errorf("missing component_type")
	case rec.CodeFile == "":
		return fmt.Errorf("missing code_file")
	}
	return nil
}

// BuildDoc produces the normalized text document indexed for BM25: the
// component type, name, description, and capability keywords, lowercased.
func BuildDoc(p models.Pattern) string {
	parts := []string{
		p.Metadata.ComponentType,
		p.Name,
		p.Metadata.Description,
		strings.Join(p.Metadata.Props, " "),
		strings.Join(p.Metadata.Variants, " "),
		strings.Join(p.Metadata.States, " "),
		strings.Join(p.Metadata.A11y, " "),
	}
	return strings.ToLower(strings.Join(parts, " "))
}
