package reference

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"

	"github.com/wudi/rxverify/rx"
)

// Seed is the YAML layout of a reference table file.
type Seed struct {
	Doctors           []SeedDoctor           `yaml:"doctors"`
	Interactions      []SeedInteraction      `yaml:"interactions"`
	Contraindications []SeedContraindication `yaml:"contraindications"`
}

type SeedDoctor struct {
	LicenseNumber string `yaml:"license_number"`
	Name          string `yaml:"name"`
	Specialty     string `yaml:"specialty"`
	Status        string `yaml:"status"`
}

type SeedInteraction struct {
	Drug1       string `yaml:"drug1"`
	Drug2       string `yaml:"drug2"`
	Severity    string `yaml:"severity"`
	Description string `yaml:"description"`
}

type SeedContraindication struct {
	DrugName   string   `yaml:"drug_name"`
	Conditions []string `yaml:"conditions"`
	Severity   string   `yaml:"severity"`
}

type pairKey struct{ a, b string }

func newPairKey(drugA, drugB string) pairKey {
	a, b := Pair(drugA, drugB)
	return pairKey{a, b}
}

// Table is an in-memory reference store. It serves every lookup capability
// and accepts upserts, so it backs tests and deployments without databases.
// Keys match exactly, like the SQL tables they stand in for.
type Table struct {
	mu                sync.RWMutex
	doctors           map[string]rx.Doctor
	interactions      map[pairKey]rx.Interaction
	contraindications map[string]rx.Contraindication
}

func NewTable() *Table {
	return &Table{
		doctors:           make(map[string]rx.Doctor),
		interactions:      make(map[pairKey]rx.Interaction),
		contraindications: make(map[string]rx.Contraindication),
	}
}

// LoadSeed reads a YAML seed file into a new Table.
func LoadSeed(path string) (*Table, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("seed path is required")
	}
	content, err := os.ReadFile(trimmed)
	if err != nil {
		return nil, fmt.Errorf("read reference seed: %w", err)
	}
	return ParseSeed(content)
}

// ParseSeed builds a Table from YAML seed content.
func ParseSeed(content []byte) (*Table, error) {
	var seed Seed
	if err := yaml.Unmarshal(content, &seed); err != nil {
		return nil, fmt.Errorf("parse reference seed: %w", err)
	}
	t := NewTable()
	for _, d := range seed.Doctors {
		if err := t.AddDoctor(context.Background(), rx.Doctor{
			LicenseNumber: strings.TrimSpace(d.LicenseNumber),
			Name:          strings.TrimSpace(d.Name),
			Specialty:     strings.TrimSpace(d.Specialty),
			Status:        strings.TrimSpace(d.Status),
		}); err != nil {
			return nil, err
		}
	}
	for _, in := range seed.Interactions {
		if err := t.UpsertInteraction(context.Background(), rx.Interaction{
			DrugA:       strings.TrimSpace(in.Drug1),
			DrugB:       strings.TrimSpace(in.Drug2),
			Severity:    rx.ParseSeverity(strings.ToLower(strings.TrimSpace(in.Severity))),
			Description: strings.TrimSpace(in.Description),
		}); err != nil {
			return nil, err
		}
	}
	for _, c := range seed.Contraindications {
		if err := t.UpsertContraindication(context.Background(), rx.Contraindication{
			Drug:       strings.TrimSpace(c.DrugName),
			Conditions: c.Conditions,
			Severity:   rx.ParseSeverity(strings.ToLower(strings.TrimSpace(c.Severity))),
		}); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Table) LookupInteraction(_ context.Context, drugA, drugB string) (rx.Interaction, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	in, ok := t.interactions[newPairKey(drugA, drugB)]
	return in, ok, nil
}

func (t *Table) LookupContraindication(_ context.Context, drug string) (rx.Contraindication, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.contraindications[drug]
	if !ok {
		return rx.Contraindication{}, false, nil
	}
	c.Conditions = append([]string(nil), c.Conditions...)
	return c, true, nil
}

func (t *Table) FindByLicense(_ context.Context, license string) (rx.Doctor, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.doctors[license]
	return d, ok, nil
}

// AddDoctor registers a doctor; license numbers are unique.
func (t *Table) AddDoctor(_ context.Context, d rx.Doctor) error {
	if d.LicenseNumber == "" {
		return fmt.Errorf("license number is required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.doctors[d.LicenseNumber]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, d.LicenseNumber)
	}
	t.doctors[d.LicenseNumber] = d
	return nil
}

// UpdateDoctorStatus sets the license status and reports whether the license
// is registered. Setting the current status again is not an error.
func (t *Table) UpdateDoctorStatus(_ context.Context, license, status string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.doctors[license]
	if !ok {
		return false, nil
	}
	d.Status = status
	t.doctors[license] = d
	return true, nil
}

// UpsertInteraction stores a finding for the unordered pair; writing (B, A)
// replaces an earlier (A, B).
func (t *Table) UpsertInteraction(_ context.Context, in rx.Interaction) error {
	if in.DrugA == "" || in.DrugB == "" {
		return fmt.Errorf("both drug names are required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interactions[newPairKey(in.DrugA, in.DrugB)] = in
	return nil
}

func (t *Table) UpsertContraindication(_ context.Context, c rx.Contraindication) error {
	if c.Drug == "" {
		return fmt.Errorf("drug name is required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	c.Conditions = append([]string(nil), c.Conditions...)
	t.contraindications[c.Drug] = c
	return nil
}
