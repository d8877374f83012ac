package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/waldorf/school-records/internal/core/domain"
)

const (
	collectionCredentials = "credentials"

	indexCredentialUsername = "uniq_username"
	indexCredentialEmail    = "uniq_email"
)

// CredentialRepository stores login credentials. Username and email are
// stored already normalised, so lookups are exact matches.
type CredentialRepository struct {
	col *mongo.Collection
}

func NewCredentialRepository(db *mongo.Database) *CredentialRepository {
	return &CredentialRepository{col: db.Collection(collectionCredentials)}
}

type mongoCredential struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Username     string             `bson:"username"`
	Email        string             `bson:"email"`
	DisplayName  string             `bson:"display_name"`
	PasswordHash string             `bson:"password_hash"`
	Active       bool               `bson:"active"`
	Locked       bool               `bson:"locked"`
	Roles        []string           `bson:"roles"`
	PersonID     string             `bson:"person_id,omitempty"`
	CreatedAt    time.Time          `bson:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at"`
}

func (m mongoCredential) toDomain() *domain.Credential {
	roles := make([]domain.RoleName, 0, len(m.Roles))
	for _, r := range m.Roles {
		roles = append(roles, domain.RoleName(r))
	}
	return &domain.Credential{
		ID:           m.ID.Hex(),
		Username:     m.Username,
		Email:        m.Email,
		DisplayName:  m.DisplayName,
		PasswordHash: m.PasswordHash,
		Active:       m.Active,
		Locked:       m.Locked,
		Roles:        roles,
		PersonID:     m.PersonID,
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
}

func identifierFilter(identifier string) bson.M {
	id := domain.NormalizeIdentifier(identifier)
	return bson.M{"$or": bson.A{bson.M{"username": id}, bson.M{"email": id}}}
}

func (r *CredentialRepository) FindByIdentifier(ctx context.Context, identifier string) (*domain.Credential, error) {
	return r.findOne(ctx, identifierFilter(identifier))
}

func (r *CredentialRepository) FindByID(ctx context.Context, id string) (*domain.Credential, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, domain.ErrCredentialNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *CredentialRepository) ExistsByIdentifier(ctx context.Context, identifier string) (bool, error) {
	return r.exists(ctx, identifierFilter(identifier))
}

func (r *CredentialRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, bson.M{"email": domain.NormalizeIdentifier(email)})
}

// Create inserts cred and returns the stored copy with its ID.
func (r *CredentialRepository) Create(ctx context.Context, cred *domain.Credential) (*domain.Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	roles := make([]string, 0, len(cred.Roles))
	for _, role := range cred.Roles {
		roles = append(roles, string(role))
	}
	doc := mongoCredential{
		Username:     domain.NormalizeIdentifier(cred.Username),
		Email:        domain.NormalizeIdentifier(cred.Email),
		DisplayName:  cred.DisplayName,
		PasswordHash: cred.PasswordHash,
		Active:       cred.Active,
		Locked:       cred.Locked,
		Roles:        roles,
		PersonID:     cred.PersonID,
		CreatedAt:    cred.CreatedAt,
		UpdatedAt:    cred.UpdatedAt,
	}

	res, err := r.col.InsertOne(ctx, doc)
	if err != nil {
		switch duplicateKeyIndex(err) {
		case indexCredentialUsername:
			return nil, &domain.DuplicateIdentifierError{Field: domain.FieldUsername, Value: doc.Username}
		case indexCredentialEmail:
			return nil, &domain.DuplicateIdentifierError{Field: domain.FieldEmail, Value: doc.Email}
		case "":
			return nil, fmt.Errorf("insert credential: %w", err)
		default:
			return nil, domain.ErrCredentialExists
		}
	}

	doc.ID = res.InsertedID.(primitive.ObjectID)
	return doc.toDomain(), nil
}

// EnsureIndexes creates the unique identifier indexes on the credentials collection.
func (r *CredentialRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetName(indexCredentialUsername).SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetName(indexCredentialEmail).SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("credential indexes: %w", err)
	}
	return nil
}

func (r *CredentialRepository) findOne(ctx context.Context, filter bson.M) (*domain.Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc mongoCredential
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("find credential: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *CredentialRepository) exists(ctx context.Context, filter bson.M) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	n, err := r.col.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count credentials: %w", err)
	}
	return n > 0, nil
}
