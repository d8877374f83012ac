package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/waldorf/school-records/internal/core/domain"
	"github.com/waldorf/school-records/internal/core/ports"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// PersonService enforces the person aggregate rules. Every write takes the
// per-person lock before reading, so read-modify-write sequences on one
// person never interleave.
type PersonService struct {
	persons   ports.PersonRepository
	addresses ports.AddressRepository
	unique    ports.UniquenessChecker
	locker    ports.AggregateLocker
	log       zerolog.Logger
	now       func() time.Time
}

// PersonOption customises a PersonService.
type PersonOption func(*PersonService)

// WithPersonClock overrides the clock used for timestamps.
func WithPersonClock(now func() time.Time) PersonOption {
	return func(s *PersonService) { s.now = now }
}

func NewPersonService(
	persons ports.PersonRepository,
	addresses ports.AddressRepository,
	unique ports.UniquenessChecker,
	locker ports.AggregateLocker,
	log zerolog.Logger,
	opts ...PersonOption,
) *PersonService {
	s := &PersonService{
		persons:   persons,
		addresses: addresses,
		unique:    unique,
		locker:    locker,
		log:       log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates uniqueness, stores the person and attaches the initial addresses.
func (s *PersonService) Create(ctx context.Context, in ports.PersonInput) (*domain.Person, error) {
	pt, err := domain.ParsePersonType(in.Type)
	if err != nil {
		return nil, err
	}
	in.Email = domain.NormalizeIdentifier(in.Email)
	in.NationalID = strings.TrimSpace(in.NationalID)

	if err := s.checkUnique(ctx, in.NationalID, in.Email, ""); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	p := &domain.Person{
		Type:      pt,
		Active:    true,
		Consent:   domain.NewConsent(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := applyPersonInput(p, in); err != nil {
		return nil, err
	}

	for _, a := range in.Addresses {
		if _, err := newAddress("", a, now); err != nil {
			return nil, err
		}
	}

	if err := s.persons.Create(ctx, p); err != nil {
		s.log.Error().Err(err).Msg("failed to create person")
		return nil, err
	}
	s.log.Info().Str("person_id", p.ID).Str("type", string(p.Type)).Msg("person created")

	for _, a := range in.Addresses {
		if _, err := s.AddAddress(ctx, p.ID, a); err != nil {
			s.discard(ctx, p.ID)
			return nil, fmt.Errorf("create person: add address: %w", err)
		}
	}
	return s.Get(ctx, p.ID)
}

// discard removes a person whose creation could not be completed.
func (s *PersonService) discard(ctx context.Context, id string) {
	ctx = context.WithoutCancel(ctx)
	if _, err := s.addresses.DeleteOwned(ctx, id); err != nil {
		s.log.Error().Err(err).Str("person_id", id).Msg("rollback: could not delete addresses of incomplete person")
	}
	if err := s.persons.Delete(ctx, id); err != nil {
		s.log.Error().Err(err).Str("person_id", id).Msg("rollback: could not delete incomplete person")
		return
	}
	s.log.Warn().Str("person_id", id).Msg("incomplete person rolled back")
}

// Update replaces the mutable fields of a person. The type never changes.
func (s *PersonService) Update(ctx context.Context, id string, in ports.PersonInput) (*domain.Person, error) {
	in.Email = domain.NormalizeIdentifier(in.Email)
	in.NationalID = strings.TrimSpace(in.NationalID)

	return s.mutate(ctx, id, func(p *domain.Person) (bool, error) {
		nationalID, email := "", ""
		if in.NationalID != "" && in.NationalID != p.NationalID {
			nationalID = in.NationalID
		}
		if in.Email != p.Email {
			email = in.Email
		}
		if err := s.checkUnique(ctx, nationalID, email, p.ID); err != nil {
			return false, err
		}
		if err := applyPersonInput(p, in); err != nil {
			return false, err
		}
		return true, nil
	})
}

func (s *PersonService) Get(ctx context.Context, id string) (*domain.Person, error) {
	p, err := s.persons.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.withAddresses(ctx, p)
}

func (s *PersonService) GetByNationalID(ctx context.Context, nationalID string) (*domain.Person, error) {
	p, err := s.persons.FindByNationalID(ctx, strings.TrimSpace(nationalID))
	if err != nil {
		return nil, err
	}
	return s.withAddresses(ctx, p)
}

func (s *PersonService) GetByEmail(ctx context.Context, email string) (*domain.Person, error) {
	p, err := s.persons.FindByEmail(ctx, domain.NormalizeIdentifier(email))
	if err != nil {
		return nil, err
	}
	return s.withAddresses(ctx, p)
}

// List returns a page of persons. Addresses are not loaded.
func (s *PersonService) List(ctx context.Context, in ports.ListPersonsInput) (*ports.PersonPage, error) {
	filter := ports.PersonFilter{
		Active: in.Active,
		Term:   strings.TrimSpace(in.Term),
		Page:   in.Page,
		Limit:  in.Limit,
	}
	if in.Type != "" {
		pt, err := domain.ParsePersonType(in.Type)
		if err != nil {
			return nil, err
		}
		filter.Type = pt
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = defaultPageSize
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}

	items, total, err := s.persons.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	totalPages := int((total + int64(filter.Limit) - 1) / int64(filter.Limit))
	return &ports.PersonPage{
		Items:      items,
		Total:      total,
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalPages: totalPages,
	}, nil
}

// Deactivate soft-deletes a person. Deactivating an inactive person is a no-op.
func (s *PersonService) Deactivate(ctx context.Context, id string) error {
	_, err := s.mutate(ctx, id, func(p *domain.Person) (bool, error) {
		return p.Deactivate(), nil
	})
	if err == nil {
		s.log.Info().Str("person_id", id).Msg("person deactivated")
	}
	return err
}

func (s *PersonService) Reactivate(ctx context.Context, id string) error {
	_, err := s.mutate(ctx, id, func(p *domain.Person) (bool, error) {
		return p.Activate(), nil
	})
	if err == nil {
		s.log.Info().Str("person_id", id).Msg("person reactivated")
	}
	return err
}

// Purge permanently removes a person together with every address it owns.
func (s *PersonService) Purge(ctx context.Context, id string) error {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := s.persons.FindByID(ctx, id); err != nil {
		return err
	}
	if err := s.persons.Delete(ctx, id); err != nil {
		return fmt.Errorf("purge person %s: %w", id, err)
	}
	n, err := s.addresses.DeleteOwned(ctx, id)
	if err != nil {
		return fmt.Errorf("purge person %s: cascade addresses: %w", id, err)
	}
	s.log.Warn().Str("person_id", id).Int64("addresses", n).Msg("person purged")
	return nil
}

func (s *PersonService) GrantConsent(ctx context.Context, id string) (*domain.Consent, error) {
	p, err := s.mutate(ctx, id, func(p *domain.Person) (bool, error) {
		p.Consent.Grant(s.now())
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("person_id", id).Msg("consent granted")
	return &p.Consent, nil
}

func (s *PersonService) RevokeConsent(ctx context.Context, id string) (*domain.Consent, error) {
	p, err := s.mutate(ctx, id, func(p *domain.Person) (bool, error) {
		p.Consent.Revoke(s.now())
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("person_id", id).Msg("consent revoked")
	return &p.Consent, nil
}

// AddAddress attaches a new address. When it is principal, the previous
// principal is demoted while the person lock is held; if the insert then
// fails, the demoted address is promoted back.
func (s *PersonService) AddAddress(ctx context.Context, personID string, in ports.AddressInput) (*domain.Address, error) {
	addr, err := newAddress(personID, in, s.now().UTC())
	if err != nil {
		return nil, err
	}

	unlock, err := s.lock(ctx, personID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, err := s.persons.FindByID(ctx, personID)
	if err != nil {
		return nil, err
	}
	owned, err := s.addresses.FindOwned(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("add address: load owned: %w", err)
	}
	p.Addresses = owned
	if err := p.CheckInvariants(); err != nil {
		s.log.Error().Err(err).Str("person_id", personID).Msg("stored addresses already violate the principal invariant")
		return nil, err
	}

	demoted, err := p.AddAddress(addr)
	if err != nil {
		return nil, err
	}

	if len(demoted) > 0 {
		if _, err := s.addresses.ClearPrincipal(ctx, personID); err != nil {
			return nil, fmt.Errorf("add address: demote principal: %w", err)
		}
	}
	if err := s.addresses.Insert(ctx, &addr); err != nil {
		s.restorePrincipal(ctx, personID, demoted)
		return nil, fmt.Errorf("add address: %w", err)
	}

	s.log.Info().
		Str("person_id", personID).
		Str("address_id", addr.ID).
		Bool("principal", addr.Principal).
		Strs("demoted", demoted).
		Msg("address added")
	return &addr, nil
}

func (s *PersonService) restorePrincipal(ctx context.Context, personID string, demoted []string) {
	ctx = context.WithoutCancel(ctx)
	for _, id := range demoted {
		if err := s.addresses.SetPrincipal(ctx, personID, id); err != nil {
			s.log.Error().Err(err).Str("person_id", personID).Str("address_id", id).Msg("could not restore principal address after failed insert")
			continue
		}
		s.log.Warn().Str("person_id", personID).Str("address_id", id).Msg("principal address restored after failed insert")
	}
}

// newAddress normalises an address request. The type defaults to RESIDENTIAL.
func newAddress(personID string, in ports.AddressInput, now time.Time) (domain.Address, error) {
	addrType := domain.AddressResidential
	if in.Type != "" {
		switch t := domain.AddressType(strings.ToUpper(strings.TrimSpace(in.Type))); t {
		case domain.AddressResidential, domain.AddressCommercial:
			addrType = t
		default:
			return domain.Address{}, fmt.Errorf("%w: unknown address type %q", domain.ErrInvalidInput, in.Type)
		}
	}
	return domain.Address{
		PersonID:     personID,
		PostalCode:   strings.TrimSpace(in.PostalCode),
		Street:       strings.TrimSpace(in.Street),
		Number:       strings.TrimSpace(in.Number),
		Complement:   strings.TrimSpace(in.Complement),
		Neighborhood: strings.TrimSpace(in.Neighborhood),
		City:         strings.TrimSpace(in.City),
		State:        strings.ToUpper(strings.TrimSpace(in.State)),
		Type:         addrType,
		Principal:    in.Principal,
		CreatedAt:    now,
	}, nil
}

func (s *PersonService) RemoveAddress(ctx context.Context, personID, addressID string) error {
	unlock, err := s.lock(ctx, personID)
	if err != nil {
		return err
	}
	defer unlock()

	p, err := s.persons.FindByID(ctx, personID)
	if err != nil {
		return err
	}
	if p.Addresses, err = s.addresses.FindOwned(ctx, personID); err != nil {
		return fmt.Errorf("remove address: load owned: %w", err)
	}
	if _, err := p.RemoveAddress(addressID); err != nil {
		return err
	}
	if err := s.addresses.Delete(ctx, personID, addressID); err != nil {
		return fmt.Errorf("remove address: %w", err)
	}
	s.log.Info().Str("person_id", personID).Str("address_id", addressID).Msg("address removed")
	return nil
}

func (s *PersonService) ListAddresses(ctx context.Context, personID string) ([]domain.Address, error) {
	if _, err := s.persons.FindByID(ctx, personID); err != nil {
		return nil, err
	}
	return s.addresses.FindOwned(ctx, personID)
}

func (s *PersonService) CountByType(ctx context.Context, personType string, activeOnly bool) (int64, error) {
	pt, err := domain.ParsePersonType(personType)
	if err != nil {
		return 0, err
	}
	return s.persons.CountByType(ctx, pt, activeOnly)
}

// PendingDeletions selects the persons due for deletion as of asOf. The
// repository pre-filters; the domain predicate has the final word.
func (s *PersonService) PendingDeletions(ctx context.Context, asOf time.Time) ([]*domain.Person, error) {
	candidates, err := s.persons.ListScheduledForDeletion(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("pending deletions: %w", err)
	}
	due := candidates[:0]
	for _, p := range candidates {
		if domain.DueForDeletion(p, asOf) {
			due = append(due, p)
		}
	}
	return due, nil
}

// mutate runs fn on the locked, freshly loaded person and saves it when fn reports a change.
func (s *PersonService) mutate(ctx context.Context, id string, fn func(p *domain.Person) (bool, error)) (*domain.Person, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, err := s.persons.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	changed, err := fn(p)
	if err != nil {
		return nil, err
	}
	if changed {
		p.UpdatedAt = s.now().UTC()
		if err := s.persons.Update(ctx, p); err != nil {
			return nil, fmt.Errorf("update person %s: %w", id, err)
		}
	}
	return p, nil
}

func (s *PersonService) lock(ctx context.Context, personID string) (func(), error) {
	if personID == "" {
		return nil, domain.ErrPersonNotFound
	}
	unlock, err := s.locker.Lock(ctx, "person:"+personID)
	if err != nil {
		return nil, fmt.Errorf("lock person %s: %w", personID, err)
	}
	return unlock, nil
}

func (s *PersonService) checkUnique(ctx context.Context, nationalID, email, excludeID string) error {
	if nationalID != "" {
		taken, err := s.unique.ExistsByNationalID(ctx, nationalID, excludeID)
		if err != nil {
			return fmt.Errorf("uniqueness check: %w", err)
		}
		if taken {
			return &domain.DuplicateIdentifierError{Field: domain.FieldNationalID, Value: nationalID}
		}
	}
	if email != "" {
		taken, err := s.unique.ExistsByEmail(ctx, email, excludeID)
		if err != nil {
			return fmt.Errorf("uniqueness check: %w", err)
		}
		if taken {
			return &domain.DuplicateIdentifierError{Field: domain.FieldEmail, Value: email}
		}
	}
	return nil
}

func (s *PersonService) withAddresses(ctx context.Context, p *domain.Person) (*domain.Person, error) {
	owned, err := s.addresses.FindOwned(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("load addresses: %w", err)
	}
	p.Addresses = owned
	return p, nil
}

func applyPersonInput(p *domain.Person, in ports.PersonInput) error {
	if strings.TrimSpace(in.FullName) == "" {
		return fmt.Errorf("%w: full name is required", domain.ErrInvalidInput)
	}
	if in.Email == "" {
		return fmt.Errorf("%w: email is required", domain.ErrInvalidInput)
	}

	p.FullName = strings.TrimSpace(in.FullName)
	p.NationalID = in.NationalID
	p.SecondaryID = strings.TrimSpace(in.SecondaryID)
	p.BirthDate = in.BirthDate
	p.Email = in.Email
	p.Phone = strings.TrimSpace(in.Phone)
	p.SecondaryPhone = strings.TrimSpace(in.SecondaryPhone)
	p.PhotoURL = strings.TrimSpace(in.PhotoURL)

	if in.LegalBasis != "" {
		b, err := domain.ParseLegalBasis(in.LegalBasis)
		if err != nil {
			return err
		}
		p.Consent.LegalBasis = b
	}
	if in.Classification != "" {
		c, err := domain.ParseDataClassification(in.Classification)
		if err != nil {
			return err
		}
		p.Consent.Classification = c
	}
	p.Consent.ScheduleDeletion(in.ScheduledDeletionDate)
	return nil
}
