// Package mongostore implements store.Store on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fintrack/models"
	"fintrack/pkg/store"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// verify Store implements store.Store in compile time
var _ store.Store = (*Store)(nil)

const (
	USER_COLL    = "users"
	ACCOUNT_COLL = "accounts"
	TOKEN_COLL   = "token_records"
)

type Store struct {
	client *mongo.Client
	db     string
	now    func() time.Time
}

// Open connects to uri and binds the store to database db.
func Open(uri, db string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return &Store{client: client, db: db, now: time.Now}, nil
}

func (m *Store) coll(name string) *mongo.Collection {
	return m.client.Database(m.db).Collection(name)
}

// Migrate creates the unique indexes the auth flow relies on.
func (m *Store) Migrate(ctx context.Context) error {
	unique := func(key string) mongo.IndexModel {
		return mongo.IndexModel{
			Keys:    bson.D{{Key: key, Value: 1}},
			Options: options.Index().SetUnique(true),
		}
	}
	indexes := map[string][]mongo.IndexModel{
		USER_COLL: {unique("username"), unique("email")},
		ACCOUNT_COLL: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		TOKEN_COLL: {
			unique("access_token_hash"),
			unique("refresh_token_hash"),
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		},
	}
	for name, idx := range indexes {
		if _, err := m.coll(name).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}

func (m *Store) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *Store) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *Store) CreateUser(ctx context.Context, u *models.User) error {
	now := m.now()
	if u.ID == "" {
		u.ID = models.NewID()
	}
	u.CreatedAt, u.UpdatedAt = now, now

	if _, err := m.coll(USER_COLL).InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (m *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	return m.findUser(ctx, bson.D{{Key: "_id", Value: id}})
}

func (m *Store) FindByUsername(ctx context.Context, username string) (models.User, error) {
	return m.findUser(ctx, bson.D{{Key: "username", Value: username}})
}

func (m *Store) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return m.findUser(ctx, bson.D{{Key: "email", Value: email}})
}

func (m *Store) findUser(ctx context.Context, filter bson.D) (user models.User, err error) {
	err = m.coll(USER_COLL).FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, store.ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

func (m *Store) UsernameOrEmailExists(ctx context.Context, username, email string) (bool, error) {
	filter := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "username", Value: username}},
		bson.D{{Key: "email", Value: email}},
	}}}
	n, err := m.coll(USER_COLL).CountDocuments(ctx, filter)
	if err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return n > 0, nil
}

func (m *Store) UpdateProfile(ctx context.Context, u models.User) (models.User, error) {
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "full_name", Value: u.FullName},
		{Key: "phone_number", Value: u.PhoneNumber},
		{Key: "address", Value: u.Address},
		{Key: "date_of_birth", Value: u.DateOfBirth},
		{Key: "updated_at", Value: m.now()},
	}}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.User
	err := m.coll(USER_COLL).FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: u.ID}}, update, opts).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, store.ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("update profile: %w", err)
	}
	return updated, nil
}

func (m *Store) UpdatePassword(ctx context.Context, id string, hash []byte) error {
	res, err := m.coll(USER_COLL).UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "password_hash", Value: hash},
			{Key: "updated_at", Value: m.now()},
		}}})
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (m *Store) CreateAccount(ctx context.Context, a *models.Account) error {
	now := m.now()
	if a.ID == "" {
		a.ID = models.NewID()
	}
	a.CreatedAt, a.UpdatedAt = now, now

	if _, err := m.coll(ACCOUNT_COLL).InsertOne(ctx, a); err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (m *Store) DefaultAccount(ctx context.Context, userID string) (account models.Account, err error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "is_default", Value: -1}, {Key: "created_at", Value: 1}})
	err = m.coll(ACCOUNT_COLL).FindOne(ctx, bson.D{{Key: "user_id", Value: userID}}, opts).Decode(&account)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Account{}, store.ErrNotFound
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("find account: %w", err)
	}
	return account, nil
}

func (m *Store) CreateToken(ctx context.Context, r *models.TokenRecord) error {
	now := m.now()
	if r.ID == "" {
		r.ID = models.NewID()
	}
	r.CreatedAt, r.UpdatedAt = now, now

	if _, err := m.coll(TOKEN_COLL).InsertOne(ctx, r); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("insert token record: %w", err)
	}
	return nil
}

// RotateToken relies on UpdateOne being atomic per document: the filter and
// the $set are evaluated together, so only one caller can match a digest.
func (m *Store) RotateToken(ctx context.Context, rot store.Rotation) error {
	filter := bson.D{
		{Key: "_id", Value: rot.SessionID},
		{Key: "refresh_token_hash", Value: rot.OldRefreshHash},
		{Key: "user_id", Value: rot.UserID},
		{Key: "revoked", Value: false},
		{Key: "expires_at", Value: bson.D{{Key: "$gt", Value: rot.Now}}},
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "access_token_hash", Value: rot.NewAccessHash},
		{Key: "refresh_token_hash", Value: rot.NewRefreshHash},
		{Key: "expires_at", Value: rot.NewExpiresAt},
		{Key: "updated_at", Value: m.now()},
	}}}

	res, err := m.coll(TOKEN_COLL).UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("rotate token record: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (m *Store) RevokeSession(ctx context.Context, id string) error {
	filter := bson.D{{Key: "_id", Value: id}}
	if _, err := m.coll(TOKEN_COLL).UpdateOne(ctx, filter, revokeUpdate(m.now())); err != nil {
		return fmt.Errorf("revoke token record: %w", err)
	}
	return nil
}

func (m *Store) RevokeAll(ctx context.Context, userID string) error {
	filter := bson.D{{Key: "user_id", Value: userID}, {Key: "revoked", Value: false}}
	if _, err := m.coll(TOKEN_COLL).UpdateMany(ctx, filter, revokeUpdate(m.now())); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

func revokeUpdate(now time.Time) bson.D {
	return bson.D{{Key: "$set", Value: bson.D{
		{Key: "revoked", Value: true},
		{Key: "updated_at", Value: now},
	}}}
}
