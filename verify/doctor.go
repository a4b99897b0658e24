package verify

import (
	"context"

	"github.com/wudi/rxverify/observability"
	"github.com/wudi/rxverify/rx"
)

const (
	msgNoLicense          = "No license number provided"
	msgLicenseNotFound    = "License number not found in database"
	msgLicenseUnavailable = "License database unavailable"
)

// VerifyDoctor checks license against the registry. A registered license is
// valid whatever its recorded status; the status is reported in DoctorInfo.
func (v *Verifier) VerifyDoctor(ctx context.Context, license string) rx.DoctorVerification {
	if license == "" {
		return rx.DoctorVerification{Message: msgNoLicense}
	}
	if v.licenses == nil {
		return rx.DoctorVerification{Message: msgLicenseUnavailable}
	}
	d, ok, err := v.licenses.FindByLicense(ctx, license)
	if err != nil {
		v.logger.Warn("license lookup failed",
			observability.String("license", license),
			observability.Error("error", err))
		return rx.DoctorVerification{Message: msgLicenseUnavailable}
	}
	if !ok {
		return rx.DoctorVerification{Message: msgLicenseNotFound}
	}
	return rx.DoctorVerification{
		IsValid: true,
		DoctorInfo: &rx.DoctorInfo{
			Name:          d.Name,
			Specialty:     d.Specialty,
			LicenseStatus: d.Status,
		},
	}
}
