package mongodb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/clinic/core"
	"github.com/trezcool/clinic/core/user"
)

type userDoc struct {
	ID           string    `bson:"_id"`
	Username     string    `bson:"username"`
	Name         string    `bson:"name"`
	Email        string    `bson:"email"`
	Role         string    `bson:"role"`
	PasswordHash []byte    `bson:"passwordHash"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

func (doc userDoc) toUser() user.User {
	return user.User{
		ID:           doc.ID,
		Username:     doc.Username,
		Name:         doc.Name,
		Email:        doc.Email,
		Role:         doc.Role,
		PasswordHash: doc.PasswordHash,
		CreatedAt:    doc.CreatedAt.UTC(),
		UpdatedAt:    doc.UpdatedAt.UTC(),
	}
}

type userRepository struct {
	db *DB
}

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	_, err := repo.db.users.InsertOne(ctx, userDoc{
		ID:           usr.ID,
		Username:     usr.Username,
		Name:         usr.Name,
		Email:        usr.Email,
		Role:         usr.Role,
		PasswordHash: usr.PasswordHash,
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.User{}, user.ErrUsernameExists
		}
		return user.User{}, errors.Wrap(mapError(err), "inserting user")
	}
	repo.db.notify(core.CollectionUsers)
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	query := bson.M{"username": filter.Username}
	if filter.ID != "" {
		query = bson.M{"_id": filter.ID}
	}

	var doc userDoc
	if err := repo.db.users.FindOne(ctx, query).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(mapError(err), "finding user")
	}
	return doc.toUser(), nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, error) {
	query := bson.M{}
	if filter.Role != "" {
		query["role"] = filter.Role
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "username", Value: 1}})

	cur, err := repo.db.users.Find(ctx, query, opts)
	if err != nil {
		return nil, errors.Wrap(mapError(err), "finding users")
	}
	var docs []userDoc
	if err = cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(mapError(err), "decoding users")
	}
	users := make([]user.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, doc.toUser())
	}
	return users, nil
}

func (repo *userRepository) SetPassword(ctx context.Context, id string, hash []byte, updatedAt time.Time) error {
	res, err := repo.db.users.UpdateByID(ctx, id, bson.M{"$set": bson.M{"passwordHash": hash, "updatedAt": updatedAt.UTC()}})
	if err != nil {
		return errors.Wrap(mapError(err), "updating user password")
	}
	if res.MatchedCount == 0 {
		return user.ErrNotFound
	}
	repo.db.notify(core.CollectionUsers)
	return nil
}
