package domain

import "fmt"

// Catalog is the immutable set of known diseases, keyed by (name, stage).
type Catalog struct {
	byKey map[DiseaseKey]Disease
}

// NewCatalog indexes diseases. Every reportable disease must be present since
// results for a missing one could not be persisted.
func NewCatalog(diseases []Disease) (*Catalog, error) {
	byKey := make(map[DiseaseKey]Disease, len(diseases))
	for _, d := range diseases {
		if _, dup := byKey[d.Key()]; dup {
			return nil, fmt.Errorf("duplicate disease %s", d.Key())
		}
		byKey[d.Key()] = d
	}
	for _, k := range ReportableDiseases {
		if _, ok := byKey[k]; !ok {
			return nil, fmt.Errorf("disease catalog is missing %s", k)
		}
	}
	return &Catalog{byKey: byKey}, nil
}

func (c *Catalog) Lookup(key DiseaseKey) (Disease, bool) {
	d, ok := c.byKey[key]
	return d, ok
}

func (c *Catalog) Len() int {
	return len(c.byKey)
}
