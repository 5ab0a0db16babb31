// Package catalog serves the static drug lookup document: a JSON catalog
// loaded once at startup and filtered in memory.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// Price is one priced pack of a drug.
type Price struct {
	Name    string  `json:"name,omitempty"`
	Variant string  `json:"variant,omitempty"`
	Pack    string  `json:"pack,omitempty"`
	MRP     float64 `json:"mrp"`
}

// Drug is one catalog entry, keyed by generic name.
type Drug struct {
	GenericName     string   `json:"generic_name"`
	Category        string   `json:"category"`
	PrimaryStrength string   `json:"primary_strength,omitempty"`
	Brands          []string `json:"brands,omitempty"`
	BrandMRP        *Price   `json:"brand_mrp,omitempty"`
	JanAushadhiMRP  *Price   `json:"jan_aushadhi_mrp,omitempty"`
	SavingsPercent  float64  `json:"savings_percent,omitempty"`
	CGHSCodes       []string `json:"cghs_codes,omitempty"`
	CGHSEntry       string   `json:"cghs_entry,omitempty"`
	ESICStatus      string   `json:"esic_status,omitempty"`
	ESICDetail      string   `json:"esic_detail,omitempty"`
}

// Catalog is an immutable-after-load drug index.
type Catalog struct {
	mu     sync.RWMutex
	drugs  []Drug
	byName map[string]*Drug
}

type document struct {
	Drugs []Drug `json:"drugs"`
}

// Load reads the catalog document from disk. A missing file yields an empty
// catalog rather than a startup failure: the chat core does not depend on
// the lookup browser.
func Load(path string) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]*Drug)}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	c.drugs = doc.Drugs
	sort.Slice(c.drugs, func(i, j int) bool {
		return strings.ToLower(c.drugs[i].GenericName) < strings.ToLower(c.drugs[j].GenericName)
	})
	for i := range c.drugs {
		c.byName[strings.ToLower(c.drugs[i].GenericName)] = &c.drugs[i]
	}
	return c, nil
}

// Len reports the number of catalog entries.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.drugs)
}

// Get looks up a single drug by generic name, case-insensitively.
func (c *Catalog) Get(name string) (Drug, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Drug{}, false
	}
	return *d, true
}

// Filter returns entries whose generic name or any brand contains the query
// substring, optionally restricted to a category. Empty query and category
// return everything, ordered by generic name.
func (c *Catalog) Filter(query, category string) []Drug {
	q := strings.ToLower(strings.TrimSpace(query))
	cat := strings.TrimSpace(category)
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Drug, 0, len(c.drugs))
	for _, d := range c.drugs {
		if cat != "" && !strings.EqualFold(cat, "All") && d.Category != cat {
			continue
		}
		if q != "" && !matches(d, q) {
			continue
		}
		out = append(out, d)
	}
	return out
}

func matches(d Drug, q string) bool {
	if strings.Contains(strings.ToLower(d.GenericName), q) {
		return true
	}
	for _, b := range d.Brands {
		if strings.Contains(strings.ToLower(b), q) {
			return true
		}
	}
	return false
}
