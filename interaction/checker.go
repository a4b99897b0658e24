// Package interaction cross-checks a medication list against reference data.
// Every unordered pair of positions gets one interaction finding and every
// medication gets one contraindication finding; rows missing from the
// reference store become synthetic findings of unknown severity.
package interaction

import (
	"context"
	"fmt"

	"github.com/wudi/rxverify/reference"
	"github.com/wudi/rxverify/rx"
)

const (
	unknownInteraction      = "Interaction data not available in database"
	unknownContraindication = "Contraindication data not available in database"
	unknownCondition        = "Unknown"
)

// Findings is the checker's output, in list order.
type Findings struct {
	Interactions      []rx.Interaction
	Contraindications []rx.Contraindication
}

// Checker issues lookups against the configured sources.
type Checker struct {
	interactions      reference.InteractionSource
	contraindications reference.ContraindicationSource
}

func NewChecker(interactions reference.InteractionSource, contraindications reference.ContraindicationSource) *Checker {
	return &Checker{interactions: interactions, contraindications: contraindications}
}

// Check returns the findings for meds. Positions i < j produce one pair each,
// so duplicated names are paired with each other too. The first lookup error
// aborts the check.
func (c *Checker) Check(ctx context.Context, meds []rx.Medication) (Findings, error) {
	out := Findings{
		Interactions:      make([]rx.Interaction, 0, pairCount(len(meds))),
		Contraindications: make([]rx.Contraindication, 0, len(meds)),
	}
	for i := 0; i < len(meds); i++ {
		for j := i + 1; j < len(meds); j++ {
			if err := ctx.Err(); err != nil {
				return Findings{}, err
			}
			found, err := c.pair(ctx, meds[i].Name, meds[j].Name)
			if err != nil {
				return Findings{}, err
			}
			out.Interactions = append(out.Interactions, found)
		}
	}
	for _, med := range meds {
		found, err := c.single(ctx, med.Name)
		if err != nil {
			return Findings{}, err
		}
		out.Contraindications = append(out.Contraindications, found)
	}
	return out, nil
}

func (c *Checker) pair(ctx context.Context, a, b string) (rx.Interaction, error) {
	row, ok, err := c.interactions.LookupInteraction(ctx, a, b)
	if err != nil {
		return rx.Interaction{}, fmt.Errorf("lookup interaction %s/%s: %w", a, b, err)
	}
	if !ok {
		return rx.Interaction{DrugA: a, DrugB: b, Severity: rx.SeverityUnknown, Description: unknownInteraction}, nil
	}
	return rx.Interaction{DrugA: a, DrugB: b, Severity: rx.ParseSeverity(string(row.Severity)), Description: row.Description}, nil
}

func (c *Checker) single(ctx context.Context, drug string) (rx.Contraindication, error) {
	row, ok, err := c.contraindications.LookupContraindication(ctx, drug)
	if err != nil {
		return rx.Contraindication{}, fmt.Errorf("lookup contraindication %s: %w", drug, err)
	}
	if !ok {
		return rx.Contraindication{
			Drug:        drug,
			Conditions:  []string{unknownCondition},
			Severity:    rx.SeverityUnknown,
			Description: unknownContraindication,
		}, nil
	}
	conditions := row.Conditions
	if conditions == nil {
		conditions = []string{}
	}
	return rx.Contraindication{
		Drug:        drug,
		Conditions:  conditions,
		Severity:    rx.ParseSeverity(string(row.Severity)),
		Description: row.Description,
	}, nil
}

func pairCount(n int) int {
	if n < 2 {
		return 0
	}
	return n * (n - 1) / 2
}
