package manufacturer

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// catalogFile is the YAML document shape for a manufacturer catalog file.
type catalogFile struct {
	Manufacturers []*Config `yaml:"manufacturers"`
}

// CatalogRepo is a read-only Repository backed by a YAML catalog file,
// loaded once at startup.
type CatalogRepo struct {
	byID  map[string]*Config
	order []string
}

// LoadCatalog reads and validates a YAML manufacturer catalog.
func LoadCatalog(path string) (*CatalogRepo, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(raw)
}

// ParseCatalog builds a CatalogRepo from raw YAML.
func ParseCatalog(raw []byte) (*CatalogRepo, error) {
	var doc catalogFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	repo := &CatalogRepo{byID: make(map[string]*Config, len(doc.Manufacturers))}
	for i, m := range doc.Manufacturers {
		if strings.TrimSpace(m.ID) == "" {
			return nil, fmt.Errorf("catalog entry %d: id is required", i)
		}
		if strings.TrimSpace(m.Name) == "" {
			return nil, fmt.Errorf("catalog entry %q: name is required", m.ID)
		}
		if _, dup := repo.byID[m.ID]; dup {
			return nil, fmt.Errorf("catalog entry %q: duplicate id", m.ID)
		}
		if m.SignatureRequired && m.FulfillmentTemplateRef == "" && m.DispatchEmail == "" {
			return nil, fmt.Errorf("catalog entry %q: signature_required needs either fulfillment_template_ref or dispatch_email", m.ID)
		}
		repo.byID[m.ID] = m
		repo.order = append(repo.order, m.ID)
	}
	sort.Strings(repo.order)
	return repo, nil
}

func (r *CatalogRepo) GetByID(_ context.Context, id string) (*Config, error) {
	m, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("manufacturer %q not found", id)
	}
	return m, nil
}

func (r *CatalogRepo) List(_ context.Context) ([]*Config, error) {
	out := make([]*Config, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out, nil
}
