package interaction

import (
	"context"
	"errors"
	"testing"

	"github.com/wudi/rxverify/reference"
	"github.com/wudi/rxverify/rx"
)

func meds(names ...string) []rx.Medication {
	out := make([]rx.Medication, len(names))
	for i, n := range names {
		out[i] = rx.Medication{Name: n, Dosage: rx.Dosage{Amount: 100, Unit: rx.UnitMG}}
	}
	return out
}

func seeded(t *testing.T) *reference.Table {
	t.Helper()
	table := reference.NewTable()
	ctx := context.Background()
	if err := table.UpsertInteraction(ctx, rx.Interaction{DrugA: "Warfarin", DrugB: "Aspirin", Severity: rx.SeveritySevere, Description: "Bleeding"}); err != nil {
		t.Fatalf("seed interaction: %v", err)
	}
	if err := table.UpsertContraindication(ctx, rx.Contraindication{Drug: "Aspirin", Conditions: []string{"ulcer"}, Severity: rx.SeverityModerate}); err != nil {
		t.Fatalf("seed contraindication: %v", err)
	}
	return table
}

func TestPairCountIsNChooseTwo(t *testing.T) {
	table := reference.NewTable()
	c := NewChecker(table, table)
	for n, want := range map[int]int{0: 0, 1: 0, 2: 1, 3: 3, 5: 10} {
		names := make([]string, n)
		for i := range names {
			names[i] = "Drug"
		}
		got, err := c.Check(context.Background(), meds(names...))
		if err != nil {
			t.Fatalf("Check() error = %v", err)
		}
		if len(got.Interactions) != want {
			t.Fatalf("n=%d: expected %d pairs, got %d", n, want, len(got.Interactions))
		}
		if len(got.Contraindications) != n {
			t.Fatalf("n=%d: expected %d contraindications, got %d", n, n, len(got.Contraindications))
		}
	}
}

func TestPairOrderDoesNotChangeFinding(t *testing.T) {
	table := seeded(t)
	c := NewChecker(table, table)

	forward, err := c.Check(context.Background(), meds("Warfarin", "Aspirin"))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	reverse, err := c.Check(context.Background(), meds("Aspirin", "Warfarin"))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	f, r := forward.Interactions[0], reverse.Interactions[0]
	if f.Severity != rx.SeveritySevere || r.Severity != rx.SeveritySevere {
		t.Fatalf("expected severe both ways, got %q and %q", f.Severity, r.Severity)
	}
	if f.Description != r.Description {
		t.Fatalf("descriptions differ: %q vs %q", f.Description, r.Description)
	}
	if r.DrugA != "Aspirin" || r.DrugB != "Warfarin" {
		t.Fatalf("pair should keep list order, got %s/%s", r.DrugA, r.DrugB)
	}
}

func TestUnknownFallbacks(t *testing.T) {
	table := seeded(t)
	c := NewChecker(table, table)
	got, err := c.Check(context.Background(), meds("Aspirin", "Zinc"))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	in := got.Interactions[0]
	if in.Severity != rx.SeverityUnknown || in.Description != "Interaction data not available in database" {
		t.Fatalf("unexpected interaction fallback %+v", in)
	}
	if got.Contraindications[0].Severity != rx.SeverityModerate {
		t.Fatalf("expected stored contraindication for Aspirin, got %+v", got.Contraindications[0])
	}
	zinc := got.Contraindications[1]
	if zinc.Severity != rx.SeverityUnknown || len(zinc.Conditions) != 1 || zinc.Conditions[0] != "Unknown" {
		t.Fatalf("unexpected contraindication fallback %+v", zinc)
	}
	if zinc.Description != "Contraindication data not available in database" {
		t.Fatalf("unexpected fallback description %q", zinc.Description)
	}
}

func TestDuplicatesArePaired(t *testing.T) {
	table := reference.NewTable()
	c := NewChecker(table, table)
	got, err := c.Check(context.Background(), meds("Ibuprofen", "Ibuprofen"))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(got.Interactions) != 1 || got.Interactions[0].DrugA != "Ibuprofen" || got.Interactions[0].DrugB != "Ibuprofen" {
		t.Fatalf("expected self pair, got %+v", got.Interactions)
	}
	if len(got.Contraindications) != 2 {
		t.Fatalf("expected one contraindication per detection, got %d", len(got.Contraindications))
	}
}

func TestLookupErrorAborts(t *testing.T) {
	failing := reference.InteractionFunc(func(context.Context, string, string) (rx.Interaction, bool, error) {
		return rx.Interaction{}, false, reference.ErrUnavailable
	})
	c := NewChecker(failing, reference.NewTable())
	got, err := c.Check(context.Background(), meds("A", "B"))
	if !errors.Is(err, reference.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if len(got.Interactions) != 0 || len(got.Contraindications) != 0 {
		t.Fatalf("expected no partial findings, got %+v", got)
	}
}

func TestEmptyListHasNoFindings(t *testing.T) {
	table := reference.NewTable()
	got, err := NewChecker(table, table).Check(context.Background(), nil)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if got.Interactions == nil || got.Contraindications == nil {
		t.Fatalf("expected empty non-nil slices")
	}
}
