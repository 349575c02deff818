package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/planning-intel/internal/normalize"
)

// Applicant type classification values.
const (
	TypeIndividual = "individual"
	TypeCompany    = "company"
)

// RawApplicant is an applicant record as received from a planning data
// source. Only PlanningReference and ApplicantName are required.
type RawApplicant struct {
	PlanningReference string `json:"planning_reference"`
	ApplicantName     string `json:"applicant_name"`
	Borough           string `json:"borough,omitempty"`
	ContactEmail      string `json:"contact_email,omitempty"`
	ContactPhone      string `json:"contact_phone,omitempty"`
	ContactAddress    string `json:"contact_address,omitempty"`
	Description       string `json:"description,omitempty"`
	RawPayload        []byte `json:"-"` // original source record, kept for persistence
}

// NormalizedApplicant is a validated, canonicalized applicant ready for
// matching. NormalizedName is a pure function of RawName.
type NormalizedApplicant struct {
	PlanningReference string
	RawName           string
	NormalizedName    string
	ApplicantType     string
	Borough           string
	ContactEmail      string
	ContactPhone      string
	ContactAddress    string
	Description       string
	RawPayload        []byte
	ProcessedAt       time.Time
}

// Validator validates and normalizes raw applicant records.
type Validator struct {
	norm *normalize.Normalizer
}

// NewValidator creates a validator over the given normalizer.
func NewValidator(norm *normalize.Normalizer) *Validator {
	return &Validator{norm: norm}
}

// Validate checks the required fields of a raw record. The message explains
// the first failure found.
func (v *Validator) Validate(raw RawApplicant) (bool, string) {
	if strings.TrimSpace(raw.PlanningReference) == "" {
		return false, "missing required field: planning_reference"
	}
	if strings.TrimSpace(raw.ApplicantName) == "" {
		return false, "missing required field: applicant_name"
	}

	if len(strings.TrimSpace(raw.PlanningReference)) < 3 {
		return false, "planning reference too short"
	}
	if len(strings.TrimSpace(raw.ApplicantName)) < 2 {
		return false, "applicant name too short"
	}

	return true, "valid"
}

// Normalize converts a validated raw record into its canonical form:
// uppercased reference, trimmed fields, derived normalized name and
// applicant type, and a processing timestamp.
func (v *Validator) Normalize(raw RawApplicant) NormalizedApplicant {
	rawName := strings.TrimSpace(raw.ApplicantName)

	applicantType := TypeCompany
	if v.norm.IsLikelyIndividual(rawName) {
		applicantType = TypeIndividual
	}

	return NormalizedApplicant{
		PlanningReference: strings.ToUpper(strings.TrimSpace(raw.PlanningReference)),
		RawName:           rawName,
		NormalizedName:    v.norm.Normalize(rawName),
		ApplicantType:     applicantType,
		Borough:           strings.TrimSpace(raw.Borough),
		ContactEmail:      strings.TrimSpace(raw.ContactEmail),
		ContactPhone:      strings.TrimSpace(raw.ContactPhone),
		ContactAddress:    strings.TrimSpace(raw.ContactAddress),
		Description:       strings.TrimSpace(raw.Description),
		RawPayload:        raw.RawPayload,
		ProcessedAt:       time.Now(),
	}
}

// Deduplicate drops later records that share a (planning reference,
// normalized name) key with an earlier one. Order-preserving; the first
// occurrence wins.
func (v *Validator) Deduplicate(applicants []NormalizedApplicant) []NormalizedApplicant {
	seen := make(map[string]bool, len(applicants))
	deduplicated := make([]NormalizedApplicant, 0, len(applicants))

	for _, applicant := range applicants {
		key := fmt.Sprintf("%s|%s", applicant.PlanningReference, applicant.NormalizedName)
		if seen[key] {
			continue
		}
		seen[key] = true
		deduplicated = append(deduplicated, applicant)
	}

	return deduplicated
}
