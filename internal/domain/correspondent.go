package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Profile field names tracked by the extractor and merger.
const (
	FieldName    = "name"
	FieldCompany = "company"
	FieldSalary  = "salary"
	FieldAddress = "address"
	FieldNotes   = "notes"
)

// TrackedFields lists every profile field in a stable order.
var TrackedFields = []string{FieldName, FieldCompany, FieldSalary, FieldAddress, FieldNotes}

// Correspondent is the external party in a conversation, identified by
// phone. Profile fields are filled in incrementally from conversation
// turns under the confidence-weighted merge policy.
type Correspondent struct {
	ID              string
	Phone           string
	Name            string
	Company         string
	Salary          *float64
	Address         string
	Notes           string
	FieldConfidence map[string]float64
	LastSeenAt      time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewCorrespondent creates a correspondent record for first contact.
func NewCorrespondent(id, phone string, now time.Time) *Correspondent {
	return &Correspondent{
		ID:              id,
		Phone:           phone,
		FieldConfidence: map[string]float64{},
		LastSeenAt:      now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// FactCandidate is one extracted profile fact with the extractor's
// confidence in it.
type FactCandidate struct {
	Value      string
	Confidence float64
}

// FactCandidates maps tracked field names to extracted candidates.
// Absent fields simply have no entry.
type FactCandidates map[string]FactCandidate

// FieldThresholds maps field names to the minimum confidence at which a
// candidate may overwrite an existing value regardless of the stored
// confidence.
type FieldThresholds map[string]float64

// DefaultFieldThresholds returns the hand-tuned per-field acceptance
// thresholds carried over from the original deployment.
func DefaultFieldThresholds() FieldThresholds {
	return FieldThresholds{
		FieldName:    0.80,
		FieldCompany: 0.70,
		FieldSalary:  0.85,
		FieldAddress: 0.85,
		FieldNotes:   0.60,
	}
}

// CoerceSalary strips non-numeric characters from a salary candidate and
// parses the remainder. Returns false when nothing numeric and finite
// survives, in which case the candidate is treated as absent.
func CoerceSalary(value string) (float64, bool) {
	var b strings.Builder
	for _, r := range value {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsInf(n, 0) || math.IsNaN(n) {
		return 0, false
	}
	return n, true
}

// MergeFacts applies the confidence-weighted merge policy to the
// correspondent, field by field. A candidate is accepted when the field
// is currently empty, its confidence clears the field threshold, or it
// beats the stored confidence. Returns the names of the fields that
// changed. LastSeenAt is updated unconditionally, even with no
// candidates.
func (c *Correspondent) MergeFacts(facts FactCandidates, thresholds FieldThresholds, now time.Time) []string {
	c.LastSeenAt = now

	var changed []string
	for _, field := range TrackedFields {
		cand, ok := facts[field]
		if !ok || strings.TrimSpace(cand.Value) == "" {
			continue
		}

		var salary float64
		if field == FieldSalary {
			coerced, ok := CoerceSalary(cand.Value)
			if !ok {
				continue
			}
			salary = coerced
		}

		oldConf := 0.0
		if c.FieldConfidence != nil {
			oldConf = c.FieldConfidence[field]
		}
		empty := c.fieldEmpty(field)
		if !empty && cand.Confidence < thresholds[field] && cand.Confidence <= oldConf {
			continue
		}

		switch field {
		case FieldName:
			c.Name = cand.Value
		case FieldCompany:
			c.Company = cand.Value
		case FieldSalary:
			c.Salary = &salary
		case FieldAddress:
			c.Address = cand.Value
		case FieldNotes:
			c.Notes = cand.Value
		}
		if c.FieldConfidence == nil {
			c.FieldConfidence = map[string]float64{}
		}
		c.FieldConfidence[field] = cand.Confidence
		changed = append(changed, field)
	}

	if len(changed) > 0 {
		c.UpdatedAt = now
	}
	return changed
}

func (c *Correspondent) fieldEmpty(field string) bool {
	switch field {
	case FieldName:
		return c.Name == ""
	case FieldCompany:
		return c.Company == ""
	case FieldSalary:
		return c.Salary == nil
	case FieldAddress:
		return c.Address == ""
	case FieldNotes:
		return c.Notes == ""
	}
	return false
}

// NormalizePhone reduces a phone identifier to digits only, stripping
// any "whatsapp:" prefix and punctuation.
func NormalizePhone(phone string) string {
	phone = strings.TrimPrefix(strings.TrimSpace(phone), "whatsapp:")
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateCorrespondent validates a Correspondent instance
func ValidateCorrespondent(c *Correspondent) error {
	if c == nil {
		return fmt.Errorf("correspondent cannot be nil")
	}

	if c.ID == "" {
		return fmt.Errorf("correspondent ID is required")
	}

	if c.Phone == "" {
		return fmt.Errorf("correspondent Phone is required")
	}

	if c.Phone != NormalizePhone(c.Phone) {
		return fmt.Errorf("correspondent Phone must be digits only: %s", c.Phone)
	}

	for field, conf := range c.FieldConfidence {
		if conf < 0 || conf > 1 {
			return fmt.Errorf("correspondent confidence for %s out of range: %f", field, conf)
		}
	}

	return nil
}
