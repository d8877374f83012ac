package ports

import (
	"context"
	"time"

	"github.com/waldorf/school-records/internal/core/domain"
)

// PersonFilter carries the query parameters for listing persons.
type PersonFilter struct {
	Type   domain.PersonType // empty = any type
	Active *bool             // nil = active and inactive
	Term   string            // optional: partial match on full name, email or national ID
	Page   int               // 1-based
	Limit  int               // capped at 100 by the service
}

// PersonRepository defines persistence operations for the person root.
// Addresses are stored separately, see AddressRepository.
type PersonRepository interface {
	// Create inserts p and sets its ID.
	Create(ctx context.Context, p *domain.Person) error
	Update(ctx context.Context, p *domain.Person) error
	FindByID(ctx context.Context, id string) (*domain.Person, error)
	FindByNationalID(ctx context.Context, nationalID string) (*domain.Person, error)
	FindByEmail(ctx context.Context, email string) (*domain.Person, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter PersonFilter) ([]*domain.Person, int64, error)
	// CountByType counts persons of type t; activeOnly restricts to active ones.
	CountByType(ctx context.Context, t domain.PersonType, activeOnly bool) (int64, error)
	// ListScheduledForDeletion returns active persons whose scheduled deletion date is on or before asOf.
	ListScheduledForDeletion(ctx context.Context, asOf time.Time) ([]*domain.Person, error)
}

// UniquenessChecker answers whether an identifier is already taken by
// another person. excludeID skips the person being updated.
type UniquenessChecker interface {
	ExistsByNationalID(ctx context.Context, nationalID, excludeID string) (bool, error)
	ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error)
}

// AddressRepository persists the addresses owned by persons.
type AddressRepository interface {
	FindOwned(ctx context.Context, personID string) ([]domain.Address, error)
	// Insert stores a and sets its ID.
	Insert(ctx context.Context, a *domain.Address) error
	// ClearPrincipal sets principal=false on every address owned by personID.
	ClearPrincipal(ctx context.Context, personID string) (int64, error)
	// SetPrincipal marks one owned address as principal.
	SetPrincipal(ctx context.Context, personID, addressID string) error
	Delete(ctx context.Context, personID, addressID string) error
	DeleteOwned(ctx context.Context, personID string) (int64, error)
}

// AggregateLocker serializes writes to one aggregate. Locks on different
// keys never block each other.
type AggregateLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// DeletionCandidateHandler acts on a person whose scheduled deletion date has passed.
type DeletionCandidateHandler interface {
	HandleDeletionCandidate(ctx context.Context, p *domain.Person) error
}
