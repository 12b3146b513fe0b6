package generator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/componentforge/forge/pkg/models"
)

// TokensHash is the canonical hash of a token set, used in provenance
// headers and cache keys.
func TokensHash(tokens models.DesignTokens) string {
	data, err := tokens.CanonicalJSON()
	if err != nil {
		return ""
	}
	return shortHash(data)
}

// RequirementsHash hashes the approved requirement subset: status changes
// that do not alter the accepted set do not change the hash.
func RequirementsHash(set *models.RequirementSet) string {
	accepted := set.Accepted()
	type entry struct {
		Category models.RequirementCategory `json:"category"`
		Name     string                     `json:"name"`
		Value    string                     `json:"value"`
	}
	entries := make([]entry, 0, len(accepted))
	for _, p := range accepted {
		entries = append(entries, entry{Category: p.Category, Name: p.Name, Value: p.Value})
	}
	data, err := json.Marshal(struct {
		ComponentType string  `json:"component_type"`
		Entries       []entry `json:"entries"`
	}{set.Classification.ComponentType, entries})
	if err != nil {
		return ""
	}
	return shortHash(data)
}

func shortHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}
