package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoAccountRepository struct {
	collection *mongo.Collection
}

type dbAccount struct {
	ID        ID        `bson:"_id"`
	Username  string    `bson:"username"`
	Password  string    `bson:"password"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func NewMongoAccountRepository(c *mongo.Collection) Repository {
	return &mongoAccountRepository{collection: c}
}

// EnsureIndexes creates the unique username index the repository relies on.
func EnsureIndexes(ctx context.Context, c *mongo.Collection) error {
	_, err := c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("username_unique"),
	})
	if err != nil {
		return oops.In("mongo_repo").Wrapf(err, "creating username index")
	}
	return nil
}

func (m *mongoAccountRepository) Insert(ctx context.Context, username, passwordHash string) (*Account, error) {
	f, err := validateFields(Fields{Username: &username, PasswordHash: &passwordHash})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	dba := dbAccount{ID: nextID(), Username: *f.Username, Password: passwordHash, CreatedAt: now, UpdatedAt: now}

	if _, err := m.collection.InsertOne(ctx, &dba); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrExistingUsername
		}
		return nil, oops.In("mongo_repo").With("username", dba.Username).Wrapf(err, "inserting account")
	}

	a := accountFromDBAccount(dba)
	return &a, nil
}

func (m *mongoAccountRepository) FindByID(ctx context.Context, id ID) (*Account, error) {
	if !IsValidID(string(id)) {
		return nil, ErrInvalidID
	}
	return m.findAccountBy(ctx, "_id", string(id))
}

func (m *mongoAccountRepository) FindByName(ctx context.Context, username string) (*Account, error) {
	return m.findAccountBy(ctx, "username", username)
}

func (m *mongoAccountRepository) findAccountBy(ctx context.Context, key string, val string) (*Account, error) {
	var dba dbAccount
	err := m.collection.FindOne(ctx, bson.M{key: val}).Decode(&dba)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, oops.In("mongo_repo").With(key, val).Wrapf(err, "finding account")
	}

	a := accountFromDBAccount(dba)
	return &a, nil
}

func (m *mongoAccountRepository) Update(ctx context.Context, id ID, f Fields) (*Account, error) {
	if !IsValidID(string(id)) {
		return nil, ErrInvalidID
	}
	f, err := validateFields(f)
	if err != nil {
		return nil, err
	}

	set := bson.M{"updatedAt": time.Now().UTC().Truncate(time.Millisecond)}
	if f.Username != nil {
		set["username"] = *f.Username
	}
	if f.PasswordHash != nil {
		set["password"] = *f.PasswordHash
	}

	var dba dbAccount
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err = m.collection.FindOneAndUpdate(ctx, bson.M{"_id": string(id)}, bson.M{"$set": set}, opts).Decode(&dba)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return nil, ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return nil, ErrExistingUsername
	case err != nil:
		return nil, oops.In("mongo_repo").With("_id", id).Wrapf(err, "updating account")
	}

	a := accountFromDBAccount(dba)
	return &a, nil
}

func (m *mongoAccountRepository) FindAll(ctx context.Context) ([]*Account, error) {
	// xids sort by creation time
	cur, err := m.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, oops.In("mongo_repo").Wrapf(err, "listing accounts")
	}
	defer cur.Close(ctx)

	var all []*Account
	for cur.Next(ctx) {
		var dba dbAccount
		if err := cur.Decode(&dba); err != nil {
			return nil, oops.In("mongo_repo").Wrapf(err, "decoding account")
		}
		a := accountFromDBAccount(dba)
		all = append(all, &a)
	}
	if err := cur.Err(); err != nil {
		return nil, oops.In("mongo_repo").Wrapf(err, "iterating accounts")
	}
	return all, nil
}

func accountFromDBAccount(dba dbAccount) Account {
	return Account{dba.ID, dba.Username, dba.Password, dba.CreatedAt, dba.UpdatedAt}
}
