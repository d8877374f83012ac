package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/waldorf/school-records/internal/core/domain"
)

const (
	collectionAddresses = "addresses"

	// indexOnePrincipal allows at most one principal address per person.
	indexOnePrincipal = "uniq_principal_per_person"
)

type AddressRepository struct {
	col *mongo.Collection
}

func NewAddressRepository(db *mongo.Database) *AddressRepository {
	return &AddressRepository{col: db.Collection(collectionAddresses)}
}

type mongoAddress struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	PersonID     string             `bson:"person_id"`
	PostalCode   string             `bson:"postal_code"`
	Street       string             `bson:"street"`
	Number       string             `bson:"number,omitempty"`
	Complement   string             `bson:"complement,omitempty"`
	Neighborhood string             `bson:"neighborhood,omitempty"`
	City         string             `bson:"city"`
	State        string             `bson:"state"`
	Type         string             `bson:"type"`
	Principal    bool               `bson:"principal"`
	CreatedAt    time.Time          `bson:"created_at"`
}

func (m mongoAddress) toDomain() domain.Address {
	return domain.Address{
		ID:           m.ID.Hex(),
		PersonID:     m.PersonID,
		PostalCode:   m.PostalCode,
		Street:       m.Street,
		Number:       m.Number,
		Complement:   m.Complement,
		Neighborhood: m.Neighborhood,
		City:         m.City,
		State:        m.State,
		Type:         domain.AddressType(m.Type),
		Principal:    m.Principal,
		CreatedAt:    m.CreatedAt.UTC(),
	}
}

func (r *AddressRepository) FindOwned(ctx context.Context, personID string) ([]domain.Address, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, bson.M{"person_id": personID},
		options.Find().SetSort(bson.D{{Key: "principal", Value: -1}, {Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find addresses: %w", err)
	}
	var docs []mongoAddress
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode addresses: %w", err)
	}
	out := make([]domain.Address, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

// Insert stores a and sets its ID. A second principal for the same person
// trips the partial unique index and is reported as ErrInvariantViolation.
func (r *AddressRepository) Insert(ctx context.Context, a *domain.Address) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := mongoAddress{
		PersonID:     a.PersonID,
		PostalCode:   a.PostalCode,
		Street:       a.Street,
		Number:       a.Number,
		Complement:   a.Complement,
		Neighborhood: a.Neighborhood,
		City:         a.City,
		State:        a.State,
		Type:         string(a.Type),
		Principal:    a.Principal,
		CreatedAt:    a.CreatedAt,
	}
	res, err := r.col.InsertOne(ctx, doc)
	if err != nil {
		if duplicateKeyIndex(err) == indexOnePrincipal {
			return fmt.Errorf("%w: person %s already has a principal address", domain.ErrInvariantViolation, a.PersonID)
		}
		return fmt.Errorf("insert address: %w", err)
	}
	a.ID = res.InsertedID.(primitive.ObjectID).Hex()
	return nil
}

func (r *AddressRepository) ClearPrincipal(ctx context.Context, personID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateMany(ctx,
		bson.M{"person_id": personID, "principal": true},
		bson.M{"$set": bson.M{"principal": false}},
	)
	if err != nil {
		return 0, fmt.Errorf("clear principal: %w", err)
	}
	return res.ModifiedCount, nil
}

// SetPrincipal marks addressID as principal. It trips the partial unique
// index when the person already has another principal address.
func (r *AddressRepository) SetPrincipal(ctx context.Context, personID, addressID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	oid, ok := objectID(addressID)
	if !ok {
		return domain.ErrAddressNotFound
	}
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": oid, "person_id": personID},
		bson.M{"$set": bson.M{"principal": true}},
	)
	if err != nil {
		if duplicateKeyIndex(err) == indexOnePrincipal {
			return fmt.Errorf("%w: person %s already has a principal address", domain.ErrInvariantViolation, personID)
		}
		return fmt.Errorf("set principal: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrAddressNotFound
	}
	return nil
}

func (r *AddressRepository) Delete(ctx context.Context, personID, addressID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	oid, ok := objectID(addressID)
	if !ok {
		return domain.ErrAddressNotFound
	}
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": oid, "person_id": personID})
	if err != nil {
		return fmt.Errorf("delete address: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrAddressNotFound
	}
	return nil
}

func (r *AddressRepository) DeleteOwned(ctx context.Context, personID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.DeleteMany(ctx, bson.M{"person_id": personID})
	if err != nil {
		return 0, fmt.Errorf("delete addresses: %w", err)
	}
	return res.DeletedCount, nil
}

// EnsureIndexes creates the owner index and the one-principal backstop.
func (r *AddressRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "person_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{
			Keys: bson.D{{Key: "person_id", Value: 1}},
			Options: options.Index().SetName(indexOnePrincipal).SetUnique(true).
				SetPartialFilterExpression(bson.M{"principal": true}),
		},
	})
	if err != nil {
		return fmt.Errorf("address indexes: %w", err)
	}
	return nil
}
