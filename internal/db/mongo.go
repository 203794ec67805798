package db

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/codr1/Kickabout/internal/roster"
)

const (
	collectionUsers    = "users"
	collectionGames    = "games"
	collectionAdmin    = "admin"
	collectionFailures = "notification_failures"
)

// MongoStore implements Store on a MongoDB database.
type MongoStore struct {
	Client      *mongo.Client
	Database    *mongo.Database
	Collections struct {
		Users    *mongo.Collection
		Games    *mongo.Collection
		Admin    *mongo.Collection
		Failures *mongo.Collection
	}
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore binds the store to an already connected client.
func NewMongoStore(client *mongo.Client, database *mongo.Database) *MongoStore {
	s := &MongoStore{Client: client, Database: database}
	s.Collections.Users = database.Collection(collectionUsers)
	s.Collections.Games = database.Collection(collectionGames)
	s.Collections.Admin = database.Collection(collectionAdmin)
	s.Collections.Failures = database.Collection(collectionFailures)
	return s
}

// ConnectMongo dials uri, verifies the connection and ensures indexes exist.
// A non-empty password overrides the one in uri for the user named there.
func ConnectMongo(ctx context.Context, uri, dbName, password string) (*MongoStore, error) {
	opts := options.Client().ApplyURI(uri)
	if password != "" && opts.Auth != nil {
		cred := *opts.Auth
		cred.Password = password
		cred.PasswordSet = true
		opts.SetAuth(cred)
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	store := NewMongoStore(client, client.Database(dbName))
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, err
	}
	return store, nil
}

// EnsureIndexes creates the unique phone index and the failure log ordering
// index. It is safe to call repeatedly.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.Collections.Users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "phone", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create users.phone index: %w", err)
	}
	_, err = s.Collections.Failures.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create notification_failures.created_at index: %w", err)
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.Client.Disconnect(ctx)
}

func mapMongoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}

func (s *MongoStore) GetGame(ctx context.Context, id string) (*Game, error) {
	var game Game
	err := s.Collections.Games.FindOne(ctx, bson.M{"_id": id}).Decode(&game)
	if err != nil {
		return nil, fmt.Errorf("get game %s: %w", id, mapMongoError(err))
	}
	return &game, nil
}

func (s *MongoStore) ListGames(ctx context.Context) ([]Game, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.Collections.Games.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	games := []Game{}
	if err := cursor.All(ctx, &games); err != nil {
		return nil, fmt.Errorf("decode games: %w", err)
	}
	return games, nil
}

func (s *MongoStore) InsertGame(ctx context.Context, game *Game) error {
	prepareGame(game)
	if _, err := s.Collections.Games.InsertOne(ctx, game); err != nil {
		return fmt.Errorf("insert game: %w", mapMongoError(err))
	}
	return nil
}

func (s *MongoStore) UpdateGame(ctx context.Context, id string, update GameUpdate) (*Game, error) {
	set := gameSet(update)
	if len(set) == 0 {
		return s.GetGame(ctx, id)
	}
	return s.findOneAndUpdateGame(ctx, bson.M{"_id": id}, bson.M{"$set": set}, options.After)
}

func (s *MongoStore) AddPlayer(ctx context.Context, gameID, userID string) (*Game, error) {
	update := bson.M{"$addToSet": bson.M{"players": userID}}
	return s.findOneAndUpdateGame(ctx, bson.M{"_id": gameID}, update, options.After)
}

func (s *MongoStore) PullPlayer(ctx context.Context, gameID, userID string) (*Game, error) {
	update := bson.M{"$pull": bson.M{"players": userID}}
	return s.findOneAndUpdateGame(ctx, bson.M{"_id": gameID}, update, options.Before)
}

func (s *MongoStore) findOneAndUpdateGame(ctx context.Context, filter, update bson.M, rd options.ReturnDocument) (*Game, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(rd)
	var game Game
	err := s.Collections.Games.FindOneAndUpdate(ctx, filter, update, opts).Decode(&game)
	if err != nil {
		return nil, fmt.Errorf("update game %v: %w", filter["_id"], mapMongoError(err))
	}
	return &game, nil
}

func (s *MongoStore) SetTeams(ctx context.Context, gameID string, players []string, teams [][]string) (bool, error) {
	if players == nil {
		players = []string{}
	}
	filter := bson.M{"_id": gameID, "players": players}
	res, err := s.Collections.Games.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"teams": teams}})
	if err != nil {
		return false, fmt.Errorf("set teams for game %s: %w", gameID, err)
	}
	return res.MatchedCount > 0, nil
}

func (s *MongoStore) DeleteGame(ctx context.Context, id string) error {
	res, err := s.Collections.Games.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete game %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("delete game %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *MongoStore) ResetGames(ctx context.Context) (int64, error) {
	models := []mongo.WriteModel{
		mongo.NewUpdateManyModel().
			SetFilter(bson.M{"type": roster.Tournament}).
			SetUpdate(bson.M{"$set": bson.M{
				"players":   []string{},
				"teams":     emptyTeams(),
				"cancelled": false,
			}}),
		mongo.NewUpdateManyModel().
			SetFilter(bson.M{"type": bson.M{"$ne": roster.Tournament}}).
			SetUpdate(bson.M{
				"$set":   bson.M{"players": []string{}, "cancelled": false},
				"$unset": bson.M{"teams": ""},
			}),
	}
	res, err := s.Collections.Games.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, fmt.Errorf("reset games: %w", err)
	}
	return res.MatchedCount, nil
}

func gameSet(u GameUpdate) bson.M {
	set := bson.M{}
	putString(set, "name", u.Name)
	putString(set, "day", u.Day)
	putString(set, "date", u.Date)
	putString(set, "time", u.Time)
	putString(set, "location", u.Location)
	putString(set, "address", u.Address)
	putString(set, "map_link", u.MapLink)
	putString(set, "gender", u.Gender)
	if u.Type != nil {
		set["type"] = *u.Type
	}
	if u.Cancelled != nil {
		set["cancelled"] = *u.Cancelled
	}
	if u.Hidden != nil {
		set["hidden"] = *u.Hidden
	}
	return set
}

func (s *MongoStore) GetUser(ctx context.Context, id string) (*User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *MongoStore) GetUserByPhone(ctx context.Context, phone string) (*User, error) {
	return s.findUser(ctx, bson.M{"phone": phone})
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M) (*User, error) {
	var user User
	if err := s.Collections.Users.FindOne(ctx, filter).Decode(&user); err != nil {
		return nil, fmt.Errorf("get user: %w", mapMongoError(err))
	}
	return &user, nil
}

func (s *MongoStore) ListUsers(ctx context.Context) ([]User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cursor, err := s.Collections.Users.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := []User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return users, nil
}

func (s *MongoStore) InsertUser(ctx context.Context, user *User) error {
	prepareUser(user)
	if _, err := s.Collections.Users.InsertOne(ctx, user); err != nil {
		return fmt.Errorf("insert user: %w", mapMongoError(err))
	}
	return nil
}

func (s *MongoStore) UpdateUser(ctx context.Context, id string, update UserUpdate) (*User, error) {
	set := userSet(update)
	if len(set) == 0 {
		return s.GetUser(ctx, id)
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var user User
	err := s.Collections.Users.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&user)
	if err != nil {
		return nil, fmt.Errorf("update user %s: %w", id, mapMongoError(err))
	}
	return &user, nil
}

func (s *MongoStore) DeleteUser(ctx context.Context, id string) error {
	res, err := s.Collections.Users.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("delete user %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *MongoStore) AppendShame(ctx context.Context, userID string, record ShameRecord) error {
	return s.pushUser(ctx, userID, string(LedgerShame), record)
}

func (s *MongoStore) AppendMissedPayment(ctx context.Context, userID string, record MissedPayment) error {
	return s.pushUser(ctx, userID, string(LedgerMissedPayments), record)
}

func (s *MongoStore) pushUser(ctx context.Context, userID, field string, value any) error {
	res, err := s.Collections.Users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$push": bson.M{field: value}})
	if err != nil {
		return fmt.Errorf("append %s for user %s: %w", field, userID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("append %s for user %s: %w", field, userID, ErrNotFound)
	}
	return nil
}

func (s *MongoStore) ClearLedger(ctx context.Context, ledger Ledger) (int64, error) {
	var empty any
	switch ledger {
	case LedgerShame:
		empty = []ShameRecord{}
	case LedgerMissedPayments:
		empty = []MissedPayment{}
	default:
		return 0, fmt.Errorf("unknown ledger %q", ledger)
	}
	res, err := s.Collections.Users.UpdateMany(ctx, bson.M{}, bson.M{"$set": bson.M{string(ledger): empty}})
	if err != nil {
		return 0, fmt.Errorf("clear %s: %w", ledger, err)
	}
	return res.ModifiedCount, nil
}

func userSet(u UserUpdate) bson.M {
	set := bson.M{}
	putString(set, "name", u.Name)
	putString(set, "phone", u.Phone)
	putString(set, "password_hash", u.PasswordHash)
	putString(set, "gender", u.Gender)
	putString(set, "avatar", u.Avatar)
	if u.Role != nil {
		set["role"] = *u.Role
	}
	if u.PhoneVerified != nil {
		set["phone_verified"] = *u.PhoneVerified
	}
	return set
}

func (s *MongoStore) GetAdmin(ctx context.Context) (*Admin, error) {
	var admin Admin
	err := s.Collections.Admin.FindOne(ctx, bson.M{"_id": AdminID}).Decode(&admin)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &Admin{ID: AdminID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get admin settings: %w", err)
	}
	return &admin, nil
}

func (s *MongoStore) SetSignupOpen(ctx context.Context, open bool) (*Admin, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After).SetUpsert(true)
	var admin Admin
	err := s.Collections.Admin.FindOneAndUpdate(ctx,
		bson.M{"_id": AdminID},
		bson.M{"$set": bson.M{"signup_open": open}},
		opts,
	).Decode(&admin)
	if err != nil {
		return nil, fmt.Errorf("set signup_open: %w", err)
	}
	return &admin, nil
}

func (s *MongoStore) RecordNotificationFailure(ctx context.Context, failure *NotificationFailure) error {
	prepareFailure(failure)
	if _, err := s.Collections.Failures.InsertOne(ctx, failure); err != nil {
		return fmt.Errorf("record notification failure: %w", err)
	}
	return nil
}

func (s *MongoStore) ListNotificationFailures(ctx context.Context, limit int) ([]NotificationFailure, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.Collections.Failures.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list notification failures: %w", err)
	}
	failures := []NotificationFailure{}
	if err := cursor.All(ctx, &failures); err != nil {
		return nil, fmt.Errorf("decode notification failures: %w", err)
	}
	return failures, nil
}

func putString(set bson.M, key string, value *string) {
	if value != nil {
		set[key] = *value
	}
}
