package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/waldorf/school-records/internal/core/domain"
	"github.com/waldorf/school-records/internal/core/ports"
)

const (
	collectionPersons = "persons"

	indexPersonEmail      = "uniq_person_email"
	indexPersonNationalID = "uniq_person_national_id"
)

// PersonRepository stores the person root. It also answers uniqueness checks.
type PersonRepository struct {
	col *mongo.Collection
}

func NewPersonRepository(db *mongo.Database) *PersonRepository {
	return &PersonRepository{col: db.Collection(collectionPersons)}
}

type mongoConsent struct {
	Granted               bool       `bson:"granted"`
	GrantedAt             *time.Time `bson:"granted_at,omitempty"`
	RevokedAt             *time.Time `bson:"revoked_at,omitempty"`
	LegalBasis            string     `bson:"legal_basis"`
	Classification        string     `bson:"data_classification"`
	ScheduledDeletionDate *time.Time `bson:"scheduled_deletion_date,omitempty"`
}

type mongoPerson struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	Type           string             `bson:"type"`
	FullName       string             `bson:"full_name"`
	NationalID     string             `bson:"national_id,omitempty"`
	SecondaryID    string             `bson:"secondary_id,omitempty"`
	BirthDate      *time.Time         `bson:"birth_date,omitempty"`
	Email          string             `bson:"email"`
	Phone          string             `bson:"phone,omitempty"`
	SecondaryPhone string             `bson:"secondary_phone,omitempty"`
	PhotoURL       string             `bson:"photo_url,omitempty"`
	Active         bool               `bson:"active"`
	Consent        mongoConsent       `bson:"consent"`
	CreatedAt      time.Time          `bson:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at"`
}

func personToDoc(p *domain.Person) mongoPerson {
	doc := mongoPerson{
		Type:           string(p.Type),
		FullName:       p.FullName,
		NationalID:     p.NationalID,
		SecondaryID:    p.SecondaryID,
		BirthDate:      p.BirthDate,
		Email:          p.Email,
		Phone:          p.Phone,
		SecondaryPhone: p.SecondaryPhone,
		PhotoURL:       p.PhotoURL,
		Active:         p.Active,
		Consent: mongoConsent{
			Granted:               p.Consent.Granted,
			GrantedAt:             p.Consent.GrantedAt,
			RevokedAt:             p.Consent.RevokedAt,
			LegalBasis:            string(p.Consent.LegalBasis),
			Classification:        string(p.Consent.Classification),
			ScheduledDeletionDate: p.Consent.ScheduledDeletionDate,
		},
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if oid, ok := objectID(p.ID); ok {
		doc.ID = oid
	}
	return doc
}

func (m mongoPerson) toDomain() *domain.Person {
	return &domain.Person{
		ID:             m.ID.Hex(),
		Type:           domain.PersonType(m.Type),
		FullName:       m.FullName,
		NationalID:     m.NationalID,
		SecondaryID:    m.SecondaryID,
		BirthDate:      utcPtr(m.BirthDate),
		Email:          m.Email,
		Phone:          m.Phone,
		SecondaryPhone: m.SecondaryPhone,
		PhotoURL:       m.PhotoURL,
		Active:         m.Active,
		Consent: domain.Consent{
			Granted:               m.Consent.Granted,
			GrantedAt:             utcPtr(m.Consent.GrantedAt),
			RevokedAt:             utcPtr(m.Consent.RevokedAt),
			LegalBasis:            domain.LegalBasis(m.Consent.LegalBasis),
			Classification:        domain.DataClassification(m.Consent.Classification),
			ScheduledDeletionDate: utcPtr(m.Consent.ScheduledDeletionDate),
		},
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// mapPersonWriteError turns unique-index violations into DuplicateIdentifierError.
func mapPersonWriteError(err error, p *domain.Person) error {
	switch duplicateKeyIndex(err) {
	case "":
		return err
	case indexPersonNationalID:
		return &domain.DuplicateIdentifierError{Field: domain.FieldNationalID, Value: p.NationalID}
	default:
		return &domain.DuplicateIdentifierError{Field: domain.FieldEmail, Value: p.Email}
	}
}

func (r *PersonRepository) Create(ctx context.Context, p *domain.Person) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := personToDoc(p)
	doc.ID = primitive.NilObjectID
	res, err := r.col.InsertOne(ctx, doc)
	if err != nil {
		return mapPersonWriteError(err, p)
	}
	p.ID = res.InsertedID.(primitive.ObjectID).Hex()
	return nil
}

func (r *PersonRepository) Update(ctx context.Context, p *domain.Person) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	oid, ok := objectID(p.ID)
	if !ok {
		return domain.ErrPersonNotFound
	}
	doc := personToDoc(p)
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": oid}, doc)
	if err != nil {
		return mapPersonWriteError(err, p)
	}
	if res.MatchedCount == 0 {
		return domain.ErrPersonNotFound
	}
	return nil
}

func (r *PersonRepository) FindByID(ctx context.Context, id string) (*domain.Person, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, domain.ErrPersonNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *PersonRepository) FindByNationalID(ctx context.Context, nationalID string) (*domain.Person, error) {
	if nationalID == "" {
		return nil, domain.ErrPersonNotFound
	}
	return r.findOne(ctx, bson.M{"national_id": nationalID})
}

func (r *PersonRepository) FindByEmail(ctx context.Context, email string) (*domain.Person, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *PersonRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	oid, ok := objectID(id)
	if !ok {
		return domain.ErrPersonNotFound
	}
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrPersonNotFound
	}
	return nil
}

// personListFilter builds the query document for List.
func personListFilter(f ports.PersonFilter) bson.M {
	filter := bson.M{}
	if f.Type != "" {
		filter["type"] = string(f.Type)
	}
	if f.Active != nil {
		filter["active"] = *f.Active
	}
	if f.Term != "" {
		rx := primitive.Regex{Pattern: regexp.QuoteMeta(f.Term), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"full_name": rx},
			bson.M{"email": rx},
			bson.M{"national_id": rx},
		}
	}
	return filter
}

func (r *PersonRepository) List(ctx context.Context, f ports.PersonFilter) ([]*domain.Person, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := personListFilter(f)
	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count persons: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "full_name", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64((f.Page - 1) * f.Limit)).
		SetLimit(int64(f.Limit))
	items, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *PersonRepository) CountByType(ctx context.Context, t domain.PersonType, activeOnly bool) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"type": string(t)}
	if activeOnly {
		filter["active"] = true
	}
	n, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count persons by type: %w", err)
	}
	return n, nil
}

func (r *PersonRepository) ListScheduledForDeletion(ctx context.Context, asOf time.Time) ([]*domain.Person, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{
		"active":                          true,
		"consent.scheduled_deletion_date": bson.M{"$lte": asOf.UTC()},
	}
	return r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "consent.scheduled_deletion_date", Value: 1}}))
}

func (r *PersonRepository) ExistsByNationalID(ctx context.Context, nationalID, excludeID string) (bool, error) {
	return r.exists(ctx, bson.M{"national_id": nationalID}, excludeID)
}

func (r *PersonRepository) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	return r.exists(ctx, bson.M{"email": email}, excludeID)
}

// EnsureIndexes creates the identifier, listing and deletion-scan indexes.
func (r *PersonRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName(indexPersonEmail).SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "national_id", Value: 1}},
			Options: options.Index().SetName(indexPersonNationalID).SetUnique(true).
				SetPartialFilterExpression(bson.M{"national_id": bson.M{"$exists": true}}),
		},
		{Keys: bson.D{{Key: "type", Value: 1}, {Key: "active", Value: 1}}},
		{Keys: bson.D{{Key: "full_name", Value: 1}}},
		{Keys: bson.D{{Key: "active", Value: 1}, {Key: "consent.scheduled_deletion_date", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("person indexes: %w", err)
	}
	return nil
}

func (r *PersonRepository) findOne(ctx context.Context, filter bson.M) (*domain.Person, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc mongoPerson
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrPersonNotFound
		}
		return nil, fmt.Errorf("find person: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *PersonRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domain.Person, error) {
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find persons: %w", err)
	}
	var docs []mongoPerson
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode persons: %w", err)
	}
	out := make([]*domain.Person, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (r *PersonRepository) exists(ctx context.Context, filter bson.M, excludeID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if oid, ok := objectID(excludeID); ok {
		filter["_id"] = bson.M{"$ne": oid}
	}
	n, err := r.col.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count persons: %w", err)
	}
	return n > 0, nil
}
