package repository // MongoDB driver of the user store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/glukogo/authsvc/internal/model"
)

// UsersCollection is the MongoDB collection holding user documents.
const UsersCollection = "users"

// Names of the unique indexes; a duplicate-key error names the one it hit.
const (
	idIndex    = "id_1"
	emailIndex = "email_1"
)

// MongoUserRepo stores users as documents in the `users` collection.
type MongoUserRepo struct {
	coll *mongo.Collection
}

func NewMongoUserRepo(db *mongo.Database) *MongoUserRepo {
	return &MongoUserRepo{coll: db.Collection(UsersCollection)}
}

// EnsureIndexes creates the unique indexes the store relies on.  It is safe
// to call on every start.
func (r *MongoUserRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true).SetName(idIndex)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName(emailIndex)},
		{Keys: bson.D{{Key: "vkId", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "yandexId", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

// MaxSequentialID returns the largest 12-digit id, or "" for an empty
// collection.
func (r *MongoUserRepo) MaxSequentialID(ctx context.Context) (string, error) {
	var doc struct {
		ID string `bson:"id"`
	}
	// zero padding makes lexicographic order equal numeric order
	err := r.coll.FindOne(ctx,
		bson.M{"id": bson.M{"$regex": `^[0-9]{12}$`}},
		options.FindOne().SetSort(bson.D{{Key: "id", Value: -1}}).SetProjection(bson.M{"id": 1}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("find max id: %w", err)
	}
	return doc.ID, nil
}

// Create inserts the user document.
func (r *MongoUserRepo) Create(ctx context.Context, u *model.User) error {
	if _, err := r.coll.InsertOne(ctx, u); err != nil {
		return insertError(err)
	}
	return nil
}

// insertError maps a duplicate key on the email index to ErrEmailExists and
// on the id index to ErrIDConflict.  Anything else is wrapped.
func insertError(err error) error {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if !mongo.IsDuplicateKeyError(mongo.WriteException{WriteErrors: mongo.WriteErrors{e}}) {
				continue
			}
			switch duplicateIndex(e) {
			case emailIndex:
				return ErrEmailExists
			case idIndex:
				return ErrIDConflict
			}
		}
	}
	return fmt.Errorf("insert user: %w", err)
}

// duplicateIndex names the unique index a duplicate-key write error hit,
// from the server's keyPattern when present, else from the message
// ("... index: email_1 dup key: ...").
func duplicateIndex(e mongo.WriteError) string {
	if kp, err := e.Raw.LookupErr("keyPattern"); err == nil {
		if doc, ok := kp.DocumentOK(); ok {
			if elems, err := doc.Elements(); err == nil && len(elems) == 1 {
				return elems[0].Key() + "_1"
			}
		}
	}
	_, rest, ok := strings.Cut(e.Message, " index: ")
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(rest, " ")
	return name
}

func (r *MongoUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, bson.M{"id": id})
}

// GetByEmail looks up the normalized address.
func (r *MongoUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
}

func (r *MongoUserRepo) GetByProvider(ctx context.Context, provider, providerID string) (*model.User, error) {
	field, ok := providerField(provider)
	if !ok || providerID == "" {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, bson.M{field: providerID})
}

func (r *MongoUserRepo) List(ctx context.Context, limit, offset int) ([]model.User, error) {
	// Stable order so pages do not overlap.
	opts := options.Find().SetSort(bson.D{{Key: "id", Value: 1}}).SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := []model.User{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return out, nil
}

func (r *MongoUserRepo) UpdateName(ctx context.Context, id, name string) error {
	return r.set(ctx, id, bson.M{"name": name})
}

func (r *MongoUserRepo) UpdateRole(ctx context.Context, id, role string) error {
	return r.set(ctx, id, bson.M{"role": role})
}

func (r *MongoUserRepo) LinkProvider(ctx context.Context, id, provider, providerID string) error {
	field, ok := providerField(provider)
	if !ok {
		return ErrNotFound
	}
	return r.set(ctx, id, bson.M{field: providerID})
}

func (r *MongoUserRepo) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoUserRepo) findOne(ctx context.Context, filter bson.M) (*model.User, error) {
	var u model.User
	err := r.coll.FindOne(ctx, filter).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

// set updates fields of one user and reports ErrNotFound when the id is
// unknown.
func (r *MongoUserRepo) set(ctx context.Context, id string, fields bson.M) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"id": id}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// providerField maps an OAuth provider to the document field holding its id.
func providerField(provider string) (string, bool) {
	switch provider {
	case model.ProviderVK:
		return "vkId", true
	case model.ProviderYandex:
		return "yandexId", true
	}
	return "", false
}
