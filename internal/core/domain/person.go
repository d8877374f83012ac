package domain

import (
	"fmt"
	"strings"
	"time"
)

// PersonType classifies a person in the school.
type PersonType string

const (
	PersonStudent  PersonType = "STUDENT"
	PersonGuardian PersonType = "GUARDIAN"
	PersonTeacher  PersonType = "TEACHER"
	PersonStaff    PersonType = "STAFF"
	PersonOther    PersonType = "OTHER"
)

func ParsePersonType(s string) (PersonType, error) {
	switch t := PersonType(strings.ToUpper(strings.TrimSpace(s))); t {
	case PersonStudent, PersonGuardian, PersonTeacher, PersonStaff, PersonOther:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown person type %q", ErrInvalidInput, s)
}

type AddressType string

const (
	AddressResidential AddressType = "RESIDENTIAL"
	AddressCommercial  AddressType = "COMMERCIAL"
)

// Address is owned by exactly one person.
type Address struct {
	ID           string      `json:"id"`
	PersonID     string      `json:"person_id"`
	PostalCode   string      `json:"postal_code"`
	Street       string      `json:"street"`
	Number       string      `json:"number"`
	Complement   string      `json:"complement,omitempty"`
	Neighborhood string      `json:"neighborhood"`
	City         string      `json:"city"`
	State        string      `json:"state"`
	Type         AddressType `json:"type"`
	Principal    bool        `json:"principal"`
	CreatedAt    time.Time   `json:"created_at"`
}

// FullAddress renders the address on one line, skipping empty parts.
func (a Address) FullAddress() string {
	var sb strings.Builder
	sb.WriteString(a.Street)
	if a.Number != "" {
		sb.WriteString(", " + a.Number)
	}
	if strings.TrimSpace(a.Complement) != "" {
		sb.WriteString(" - " + a.Complement)
	}
	if a.Neighborhood != "" {
		sb.WriteString(", " + a.Neighborhood)
	}
	if a.City != "" {
		sb.WriteString(", " + a.City)
	}
	if a.State != "" {
		sb.WriteString(" - " + a.State)
	}
	if a.PostalCode != "" {
		sb.WriteString(", " + a.PostalCode)
	}
	return strings.TrimPrefix(sb.String(), ", ")
}

// Person is the aggregate root: the person, its addresses and its consent.
type Person struct {
	ID             string     `json:"id"`
	Type           PersonType `json:"type"`
	FullName       string     `json:"full_name"`
	NationalID     string     `json:"national_id,omitempty"`
	SecondaryID    string     `json:"secondary_id,omitempty"`
	BirthDate      *time.Time `json:"birth_date,omitempty"`
	Email          string     `json:"email"`
	Phone          string     `json:"phone,omitempty"`
	SecondaryPhone string     `json:"secondary_phone,omitempty"`
	PhotoURL       string     `json:"photo_url,omitempty"`
	Active         bool       `json:"active"`
	Consent        Consent    `json:"consent"`
	Addresses      []Address  `json:"addresses,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// AddAddress attaches a to the person. When a is principal every other owned
// address is demoted in the same step; the IDs of demoted addresses are returned.
func (p *Person) AddAddress(a Address) ([]string, error) {
	a.PersonID = p.ID
	if a.Type == "" {
		a.Type = AddressResidential
	}

	var demoted []string
	if a.Principal {
		for i := range p.Addresses {
			if p.Addresses[i].Principal {
				p.Addresses[i].Principal = false
				demoted = append(demoted, p.Addresses[i].ID)
			}
		}
	}
	p.Addresses = append(p.Addresses, a)

	if err := p.CheckInvariants(); err != nil {
		return nil, err
	}
	return demoted, nil
}

// RemoveAddress detaches the owned address with the given ID.
func (p *Person) RemoveAddress(addressID string) (Address, error) {
	for i, a := range p.Addresses {
		if a.ID == addressID {
			p.Addresses = append(p.Addresses[:i], p.Addresses[i+1:]...)
			return a, nil
		}
	}
	return Address{}, ErrAddressNotFound
}

// PrincipalAddress returns the principal address, if any.
func (p *Person) PrincipalAddress() (Address, bool) {
	for _, a := range p.Addresses {
		if a.Principal {
			return a, true
		}
	}
	return Address{}, false
}

// CheckInvariants fails when more than one owned address is principal.
func (p *Person) CheckInvariants() error {
	n := 0
	for _, a := range p.Addresses {
		if a.PersonID != "" && a.PersonID != p.ID {
			return fmt.Errorf("%w: address %s owned by %s attached to %s", ErrInvariantViolation, a.ID, a.PersonID, p.ID)
		}
		if a.Principal {
			n++
		}
	}
	if n > 1 {
		return fmt.Errorf("%w: person %s has %d principal addresses", ErrInvariantViolation, p.ID, n)
	}
	return nil
}

// Activate marks the person active. Reports whether anything changed.
func (p *Person) Activate() bool {
	if p.Active {
		return false
	}
	p.Active = true
	return true
}

// Deactivate marks the person inactive. Calling it on an inactive person is a no-op.
func (p *Person) Deactivate() bool {
	if !p.Active {
		return false
	}
	p.Active = false
	return true
}
