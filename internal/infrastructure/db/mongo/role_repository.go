package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/waldorf/school-records/internal/core/domain"
)

const collectionRoles = "roles"

// RoleRepository reads the role catalog. Permissions are embedded in each role document.
type RoleRepository struct {
	col *mongo.Collection
}

func NewRoleRepository(db *mongo.Database) *RoleRepository {
	return &RoleRepository{col: db.Collection(collectionRoles)}
}

type mongoPermission struct {
	Name        string `bson:"name"`
	Description string `bson:"description,omitempty"`
	Resource    string `bson:"resource"`
	Action      string `bson:"action"`
	Scope       string `bson:"scope"`
}

type mongoRole struct {
	Name        string            `bson:"_id"`
	Description string            `bson:"description,omitempty"`
	AccessLevel int               `bson:"access_level"`
	Active      bool              `bson:"active"`
	Permissions []mongoPermission `bson:"permissions"`
}

func roleFromDoc(m mongoRole) domain.Role {
	perms := make([]domain.Permission, 0, len(m.Permissions))
	for _, p := range m.Permissions {
		perms = append(perms, domain.Permission{
			Name:        p.Name,
			Description: p.Description,
			Resource:    domain.Resource(p.Resource),
			Action:      domain.Action(p.Action),
			Scope:       domain.Scope(p.Scope),
		})
	}
	return domain.Role{
		Name:        domain.RoleName(m.Name),
		Description: m.Description,
		AccessLevel: m.AccessLevel,
		Active:      m.Active,
		Permissions: perms,
	}
}

func roleToDoc(r domain.Role) mongoRole {
	perms := make([]mongoPermission, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		perms = append(perms, mongoPermission{
			Name:        p.Name,
			Description: p.Description,
			Resource:    string(p.Resource),
			Action:      string(p.Action),
			Scope:       string(p.Scope),
		})
	}
	return mongoRole{
		Name:        string(r.Name),
		Description: r.Description,
		AccessLevel: r.AccessLevel,
		Active:      r.Active,
		Permissions: perms,
	}
}

func (r *RoleRepository) ListRoles(ctx context.Context) ([]domain.Role, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	var docs []mongoRole
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode roles: %w", err)
	}

	roles := make([]domain.Role, 0, len(docs))
	for _, d := range docs {
		roles = append(roles, roleFromDoc(d))
	}
	return roles, nil
}

// SeedRoles inserts each role that is not stored yet. Existing roles are left
// untouched so operator edits survive restarts. Returns how many were inserted.
func (r *RoleRepository) SeedRoles(ctx context.Context, roles []domain.Role) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	inserted := 0
	for _, role := range roles {
		doc := roleToDoc(role)
		res, err := r.col.UpdateOne(ctx,
			bson.M{"_id": doc.Name},
			bson.M{"$setOnInsert": bson.M{
				"description":  doc.Description,
				"access_level": doc.AccessLevel,
				"active":       doc.Active,
				"permissions":  doc.Permissions,
			}},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return inserted, fmt.Errorf("seed role %s: %w", doc.Name, err)
		}
		if res.UpsertedCount > 0 {
			inserted++
		}
	}
	return inserted, nil
}
