package ports

import (
	"context"
	"time"

	"github.com/waldorf/school-records/internal/core/domain"
)

// AddressInput holds the fields of a new address.
type AddressInput struct {
	PostalCode   string
	Street       string
	Number       string
	Complement   string
	Neighborhood string
	City         string
	State        string
	Type         string
	Principal    bool
}

// PersonInput carries the data for creating or updating a person.
// Empty LegalBasis / Classification leave the current values untouched on update.
type PersonInput struct {
	Type                  string
	FullName              string
	NationalID            string
	SecondaryID           string
	BirthDate             *time.Time
	Email                 string
	Phone                 string
	SecondaryPhone        string
	PhotoURL              string
	LegalBasis            string
	Classification        string
	ScheduledDeletionDate *time.Time
	Addresses             []AddressInput // create only
}

// ListPersonsInput carries all parameters for the list endpoint.
type ListPersonsInput struct {
	Type   string
	Active *bool
	Term   string
	Page   int
	Limit  int
}

// PersonPage is returned by List.
type PersonPage struct {
	Items      []*domain.Person
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

// PersonService defines the use-case operations on the person aggregate.
type PersonService interface {
	Create(ctx context.Context, in PersonInput) (*domain.Person, error)
	Update(ctx context.Context, id string, in PersonInput) (*domain.Person, error)
	Get(ctx context.Context, id string) (*domain.Person, error)
	GetByNationalID(ctx context.Context, nationalID string) (*domain.Person, error)
	GetByEmail(ctx context.Context, email string) (*domain.Person, error)
	List(ctx context.Context, in ListPersonsInput) (*PersonPage, error)

	Deactivate(ctx context.Context, id string) error
	Reactivate(ctx context.Context, id string) error
	Purge(ctx context.Context, id string) error

	GrantConsent(ctx context.Context, id string) (*domain.Consent, error)
	RevokeConsent(ctx context.Context, id string) (*domain.Consent, error)

	AddAddress(ctx context.Context, personID string, in AddressInput) (*domain.Address, error)
	RemoveAddress(ctx context.Context, personID, addressID string) error
	ListAddresses(ctx context.Context, personID string) ([]domain.Address, error)

	CountByType(ctx context.Context, personType string, activeOnly bool) (int64, error)
	PendingDeletions(ctx context.Context, asOf time.Time) ([]*domain.Person, error)
}
