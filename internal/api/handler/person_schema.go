package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/waldorf/school-records/internal/core/domain"
	"github.com/waldorf/school-records/internal/core/ports"
)

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

const dateLayout = "2006-01-02"

// --- Request types ---

type addressRequest struct {
	PostalCode   string `json:"postal_code"  validate:"required,max=10"`
	Street       string `json:"street"       validate:"required,max=200"`
	Number       string `json:"number"       validate:"max=20"`
	Complement   string `json:"complement"   validate:"max=100"`
	Neighborhood string `json:"neighborhood" validate:"max=100"`
	City         string `json:"city"         validate:"required,max=100"`
	State        string `json:"state"        validate:"required,len=2"`
	Type         string `json:"type"         validate:"omitempty,oneof=RESIDENTIAL COMMERCIAL"`
	// Principal defaults to true when omitted.
	Principal *bool `json:"principal"`
}

type personFieldsRequest struct {
	Type                  string `json:"type"                    validate:"required,oneof=STUDENT GUARDIAN TEACHER STAFF OTHER"`
	FullName              string `json:"full_name"               validate:"required,min=3,max=200"`
	NationalID            string `json:"national_id"             validate:"max=14"`
	SecondaryID           string `json:"secondary_id"            validate:"max=20"`
	BirthDate             string `json:"birth_date"              validate:"omitempty,datetime=2006-01-02"`
	Email                 string `json:"email"                   validate:"required,email,max=254"`
	Phone                 string `json:"phone"                   validate:"max=20"`
	SecondaryPhone        string `json:"secondary_phone"         validate:"max=20"`
	PhotoURL              string `json:"photo_url"               validate:"omitempty,url,max=500"`
	LegalBasis            string `json:"legal_basis"             validate:"omitempty,oneof=CONSENT CONTRACT LEGITIMATE_INTEREST LEGAL_OBLIGATION"`
	DataClassification    string `json:"data_classification"     validate:"omitempty,oneof=PUBLIC INTERNAL CONFIDENTIAL SENSITIVE"`
	ScheduledDeletionDate string `json:"scheduled_deletion_date" validate:"omitempty,datetime=2006-01-02"`
}

type createPersonRequest struct {
	personFieldsRequest
	Addresses []addressRequest `json:"addresses" validate:"omitempty,dive"`
}

type updatePersonRequest struct {
	personFieldsRequest
}

// --- Response types ---

type personResponse struct {
	*domain.Person
	ConsentState     domain.ConsentState `json:"consent_state"`
	PrincipalAddress string              `json:"principal_address,omitempty"`
}

type personPageResponse struct {
	Items      []personResponse `json:"items"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
	TotalPages int              `json:"total_pages"`
}

type addressResponse struct {
	domain.Address
	FullAddress string `json:"full_address"`
}

type countResponse struct {
	Type       string `json:"type"`
	ActiveOnly bool   `json:"active_only"`
	Count      int64  `json:"count"`
}

// --- Mapping ---

func (r personFieldsRequest) toInput() (ports.PersonInput, error) {
	birth, err := parseDate("birth_date", r.BirthDate)
	if err != nil {
		return ports.PersonInput{}, err
	}
	deletion, err := parseDate("scheduled_deletion_date", r.ScheduledDeletionDate)
	if err != nil {
		return ports.PersonInput{}, err
	}
	return ports.PersonInput{
		Type:                  r.Type,
		FullName:              r.FullName,
		NationalID:            r.NationalID,
		SecondaryID:           r.SecondaryID,
		BirthDate:             birth,
		Email:                 r.Email,
		Phone:                 r.Phone,
		SecondaryPhone:        r.SecondaryPhone,
		PhotoURL:              r.PhotoURL,
		LegalBasis:            r.LegalBasis,
		Classification:        r.DataClassification,
		ScheduledDeletionDate: deletion,
	}, nil
}

func (r addressRequest) toInput() ports.AddressInput {
	principal := true
	if r.Principal != nil {
		principal = *r.Principal
	}
	return ports.AddressInput{
		PostalCode:   r.PostalCode,
		Street:       r.Street,
		Number:       r.Number,
		Complement:   r.Complement,
		Neighborhood: r.Neighborhood,
		City:         r.City,
		State:        r.State,
		Type:         r.Type,
		Principal:    principal,
	}
}

func parseDate(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusUnprocessableEntity, fmt.Sprintf("%s must be a date (YYYY-MM-DD)", field))
	}
	return &t, nil
}

func toPersonResponse(p *domain.Person) personResponse {
	resp := personResponse{Person: p, ConsentState: p.Consent.State()}
	if a, ok := p.PrincipalAddress(); ok {
		resp.PrincipalAddress = a.FullAddress()
	}
	return resp
}

func toPersonResponses(ps []*domain.Person) []personResponse {
	out := make([]personResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, toPersonResponse(p))
	}
	return out
}

func toAddressResponse(a domain.Address) addressResponse {
	return addressResponse{Address: a, FullAddress: a.FullAddress()}
}
