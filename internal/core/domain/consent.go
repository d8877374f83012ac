package domain

import (
	"fmt"
	"strings"
	"time"
)

// ConsentState is the externally observable state of data-processing consent.
type ConsentState string

const (
	ConsentNotGranted ConsentState = "NOT_GRANTED"
	ConsentGranted    ConsentState = "GRANTED"
)

// LegalBasis is the legal ground for processing a person's data.
type LegalBasis string

const (
	LegalBasisConsent            LegalBasis = "CONSENT"
	LegalBasisContract           LegalBasis = "CONTRACT"
	LegalBasisLegitimateInterest LegalBasis = "LEGITIMATE_INTEREST"
	LegalBasisLegalObligation    LegalBasis = "LEGAL_OBLIGATION"
)

// DataClassification labels how sensitive a person's record is.
type DataClassification string

const (
	ClassificationPublic       DataClassification = "PUBLIC"
	ClassificationInternal     DataClassification = "INTERNAL"
	ClassificationConfidential DataClassification = "CONFIDENTIAL"
	ClassificationSensitive    DataClassification = "SENSITIVE"
)

func ParseLegalBasis(s string) (LegalBasis, error) {
	switch b := LegalBasis(strings.ToUpper(strings.TrimSpace(s))); b {
	case LegalBasisConsent, LegalBasisContract, LegalBasisLegitimateInterest, LegalBasisLegalObligation:
		return b, nil
	}
	return "", fmt.Errorf("%w: unknown legal basis %q", ErrInvalidInput, s)
}

func ParseDataClassification(s string) (DataClassification, error) {
	switch c := DataClassification(strings.ToUpper(strings.TrimSpace(s))); c {
	case ClassificationPublic, ClassificationInternal, ClassificationConfidential, ClassificationSensitive:
		return c, nil
	}
	return "", fmt.Errorf("%w: unknown data classification %q", ErrInvalidInput, s)
}

// Consent tracks a person's data-processing consent. GrantedAt survives a
// revocation so the last grant stays on record.
type Consent struct {
	Granted               bool               `json:"granted"`
	GrantedAt             *time.Time         `json:"granted_at,omitempty"`
	RevokedAt             *time.Time         `json:"revoked_at,omitempty"`
	LegalBasis            LegalBasis         `json:"legal_basis"`
	Classification        DataClassification `json:"data_classification"`
	ScheduledDeletionDate *time.Time         `json:"scheduled_deletion_date,omitempty"`
}

// NewConsent returns the consent record every new person starts with.
func NewConsent() Consent {
	return Consent{
		LegalBasis:     LegalBasisConsent,
		Classification: ClassificationInternal,
	}
}

func (c *Consent) State() ConsentState {
	if c.Granted {
		return ConsentGranted
	}
	return ConsentNotGranted
}

// Grant moves to GRANTED from any state and stamps GrantedAt. Re-granting
// refreshes the stamp; it never moves backwards.
func (c *Consent) Grant(now time.Time) {
	now = now.UTC()
	if c.GrantedAt != nil && now.Before(*c.GrantedAt) {
		now = *c.GrantedAt
	}
	c.Granted = true
	c.GrantedAt = &now
}

// Revoke moves to NOT_GRANTED from any state. GrantedAt is left untouched.
func (c *Consent) Revoke(now time.Time) {
	now = now.UTC()
	c.Granted = false
	c.RevokedAt = &now
}

// ScheduleDeletion sets (or clears, with nil) the date the record is due for removal.
func (c *Consent) ScheduleDeletion(date *time.Time) {
	if date == nil {
		c.ScheduledDeletionDate = nil
		return
	}
	d := DateOnly(*date)
	c.ScheduledDeletionDate = &d
}

// DueForDeletion reports whether p is still active and its scheduled
// deletion date is on or before asOf (compared by calendar day, UTC).
func DueForDeletion(p *Person, asOf time.Time) bool {
	if p == nil || !p.Active || p.Consent.ScheduledDeletionDate == nil {
		return false
	}
	return !DateOnly(*p.Consent.ScheduledDeletionDate).After(DateOnly(asOf))
}

// DateOnly truncates t to midnight UTC.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
