package terminology

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Concept struct {
	Display string `yaml:"display" json:"display"`
	SNOMED  string `yaml:"snomed" json:"snomed"`
	LOINC   string `yaml:"loinc" json:"loinc"`
	ICD10   string `yaml:"icd10" json:"icd10"`
}

// Catalog maps coded identifiers to human-readable concepts so evidence
// summaries sent to the oracle carry code names, not bare codes.
type Catalog struct {
	Concepts map[string]Concept `yaml:"concepts" json:"concepts"`
}

func Load(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultCatalog(), err
	}
	var cat Catalog
	if err := yaml.Unmarshal(content, &cat); err != nil {
		return Catalog{}, err
	}
	if len(cat.Concepts) == 0 {
		return Catalog{}, fmt.Errorf("terminology catalog empty")
	}
	return cat, nil
}

// Lookup resolves a code against any of the catalog's code systems.
func (c Catalog) Lookup(code string) (Concept, bool) {
	trimmed := strings.TrimSpace(code)
	if c.Concepts == nil || trimmed == "" {
		return Concept{}, false
	}
	for _, concept := range c.Concepts {
		if concept.ICD10 == trimmed || concept.SNOMED == trimmed || concept.LOINC == trimmed {
			return concept, true
		}
	}
	if concept, ok := c.Concepts[strings.ToLower(trimmed)]; ok {
		return concept, true
	}
	return Concept{}, false
}

// Annotate renders codes as "code (Display)" where the catalog knows them.
func (c Catalog) Annotate(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		if concept, ok := c.Lookup(code); ok && concept.Display != "" {
			out = append(out, fmt.Sprintf("%s (%s)", code, concept.Display))
			continue
		}
		out = append(out, code)
	}
	return out
}

func DefaultCatalog() Catalog {
	return Catalog{Concepts: map[string]Concept{
		"glioblastoma": {
			Display: "Glioblastoma",
			SNOMED:  "393563007",
			ICD10:   "C71.9",
		},
		"craniotomy": {
			Display: "Craniotomy for tumor resection",
			SNOMED:  "25353009",
		},
		"mri-brain": {
			Display: "MRI of brain",
			SNOMED:  "816077007",
			LOINC:   "24590-2",
		},
		"temozolomide": {
			Display: "Temozolomide therapy",
			SNOMED:  "108787006",
		},
	}}
}
