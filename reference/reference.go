// Package reference defines the read-only lookups the verification core
// needs from reference data: pairwise drug interactions, per-drug
// contraindications and prescriber licenses. Each capability is a single
// method so backends and test fakes stay small.
//
// A lookup that finds no row returns ok == false and a nil error. A backend
// that cannot be reached returns an error wrapping ErrUnavailable.
package reference

import (
	"context"
	"errors"

	"github.com/wudi/rxverify/rx"
)

var (
	// ErrUnavailable reports that the backing store cannot be queried.
	ErrUnavailable = errors.New("reference data unavailable")
	// ErrDuplicate reports a second doctor with an existing license number.
	ErrDuplicate = errors.New("license number already registered")
)

// InteractionSource finds the interaction recorded for two drugs. The lookup
// is symmetric: (a, b) and (b, a) return the same row.
type InteractionSource interface {
	LookupInteraction(ctx context.Context, drugA, drugB string) (rx.Interaction, bool, error)
}

// ContraindicationSource finds the contraindications recorded for a drug.
type ContraindicationSource interface {
	LookupContraindication(ctx context.Context, drug string) (rx.Contraindication, bool, error)
}

// LicenseRegistry resolves a license number to the registered doctor.
type LicenseRegistry interface {
	FindByLicense(ctx context.Context, license string) (rx.Doctor, bool, error)
}

// InteractionFunc adapts a function to InteractionSource.
type InteractionFunc func(ctx context.Context, drugA, drugB string) (rx.Interaction, bool, error)

func (f InteractionFunc) LookupInteraction(ctx context.Context, drugA, drugB string) (rx.Interaction, bool, error) {
	return f(ctx, drugA, drugB)
}

// ContraindicationFunc adapts a function to ContraindicationSource.
type ContraindicationFunc func(ctx context.Context, drug string) (rx.Contraindication, bool, error)

func (f ContraindicationFunc) LookupContraindication(ctx context.Context, drug string) (rx.Contraindication, bool, error) {
	return f(ctx, drug)
}

// LicenseFunc adapts a function to LicenseRegistry.
type LicenseFunc func(ctx context.Context, license string) (rx.Doctor, bool, error)

func (f LicenseFunc) FindByLicense(ctx context.Context, license string) (rx.Doctor, bool, error) {
	return f(ctx, license)
}

// Pair orders two drug names so that (a, b) and (b, a) yield the same key.
func Pair(drugA, drugB string) (string, string) {
	if drugB < drugA {
		return drugB, drugA
	}
	return drugA, drugB
}

// DoctorWriter maintains the license registry. UpdateDoctorStatus reports
// false only when the license is not registered.
type DoctorWriter interface {
	AddDoctor(ctx context.Context, d rx.Doctor) error
	UpdateDoctorStatus(ctx context.Context, license, status string) (bool, error)
}

// FindingWriter maintains the interaction and contraindication tables.
type FindingWriter interface {
	UpsertInteraction(ctx context.Context, in rx.Interaction) error
	UpsertContraindication(ctx context.Context, c rx.Contraindication) error
}
