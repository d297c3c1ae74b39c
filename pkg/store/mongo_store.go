package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"trendscribe/pkg/domain"
)

const (
	collectionProjects      = "projects"
	collectionUsers         = "users"
	collectionConversations = "conversations"
	defaultMongoDB          = "trendscribe"
)

// MongoStore implements Store on MongoDB. Per-user counters live in the
// stats sub-document of the users collection. Conversations embed their
// messages.
type MongoStore struct {
	client        *mongo.Client
	projects      *mongo.Collection
	users         *mongo.Collection
	conversations *mongo.Collection
}

// NewMongoStore connects, pings the primary and ensures indexes.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)
	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	if strings.TrimSpace(database) == "" {
		database = defaultMongoDB
	}
	db := client.Database(database)
	s := &MongoStore{
		client:        client,
		projects:      db.Collection(collectionProjects),
		users:         db.Collection(collectionUsers),
		conversations: db.Collection(collectionConversations),
	}
	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.projects.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user", Value: 1}, {Key: "updatedAt", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updatedAt", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create project indexes: %w", err)
	}
	_, err = s.conversations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user", Value: 1}, {Key: "updatedAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create conversation indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) CreateProject(ctx context.Context, p domain.Project) error {
	_, err := s.projects.InsertOne(ctx, p)
	return err
}

func (s *MongoStore) UpdateProject(ctx context.Context, p domain.Project) error {
	res, err := s.projects.ReplaceOne(ctx, bson.M{"_id": p.ID}, p)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	if err := s.projects.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Project{}, ErrNotFound
		}
		return domain.Project{}, err
	}
	return p, nil
}

func (s *MongoStore) ListProjectsByUser(ctx context.Context, userID string, limit int) ([]domain.ProjectSummary, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetLimit(int64(listLimit(limit))).
		SetProjection(bson.M{
			"title": 1, "projectType": 1, "status": 1, "location": 1,
			"category": 1, "createdAt": 1, "updatedAt": 1,
		})
	cursor, err := s.projects.Find(ctx, bson.M{"user": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := make([]domain.ProjectSummary, 0)
	for cursor.Next(ctx) {
		var p domain.Project
		if err := cursor.Decode(&p); err != nil {
			return nil, err
		}
		out = append(out, p.Summary())
	}
	return out, cursor.Err()
}

func (s *MongoStore) DeleteProject(ctx context.Context, id string) error {
	res, err := s.projects.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) CountProjectsByStatusBefore(ctx context.Context, status domain.ProjectStatus, before time.Time) (int64, error) {
	return s.projects.CountDocuments(ctx, bson.M{
		"status":    status,
		"updatedAt": bson.M{"$lt": before.UTC()},
	})
}

// IncrementUserStats applies $inc and $set in one upsert.
func (s *MongoStore) IncrementUserStats(ctx context.Context, userID string, projectType domain.ProjectType, at time.Time) error {
	inc := bson.M{"stats.totalProjects": 1}
	switch projectType {
	case domain.ProjectDraft:
		inc["stats.contentDrafts"] = 1
	case domain.ProjectModify:
		inc["stats.contentModifications"] = 1
	case domain.ProjectImagePrompt:
		inc["stats.imagePrompts"] = 1
	}
	update := bson.M{
		"$inc": inc,
		"$set": bson.M{"stats.lastActiveAt": at.UTC()},
	}
	_, err := s.users.UpdateOne(ctx, bson.M{"_id": userID}, update, options.Update().SetUpsert(true))
	return err
}

func (s *MongoStore) GetUserStats(ctx context.Context, userID string) (domain.UserStats, error) {
	var doc struct {
		Stats domain.UserStats `bson:"stats"`
	}
	err := s.users.FindOne(ctx, bson.M{"_id": userID}, options.FindOne().SetProjection(bson.M{"stats": 1})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.UserStats{UserID: userID}, nil
	}
	if err != nil {
		return domain.UserStats{}, err
	}
	doc.Stats.UserID = userID
	return doc.Stats, nil
}

func (s *MongoStore) CreateConversation(ctx context.Context, c domain.Conversation) error {
	if c.Messages == nil {
		c.Messages = []domain.ChatMessage{}
	}
	_, err := s.conversations.InsertOne(ctx, c)
	return err
}

// AppendMessages pushes msgs in one update so concurrent turns never drop a
// message.
func (s *MongoStore) AppendMessages(ctx context.Context, id string, msgs []domain.ChatMessage, at time.Time) error {
	update := bson.M{"$set": bson.M{"updatedAt": at.UTC()}}
	if len(msgs) > 0 {
		update["$push"] = bson.M{"messages": bson.M{"$each": msgs}}
	}
	res, err := s.conversations.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) GetConversation(ctx context.Context, id string) (domain.Conversation, error) {
	var c domain.Conversation
	if err := s.conversations.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Conversation{}, ErrNotFound
		}
		return domain.Conversation{}, err
	}
	return c, nil
}

func (s *MongoStore) ListConversationsByUser(ctx context.Context, userID string, limit int) ([]domain.ConversationSummary, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetLimit(int64(listLimit(limit))).
		SetProjection(bson.M{"title": 1, "model": 1, "createdAt": 1, "updatedAt": 1})
	cursor, err := s.conversations.Find(ctx, bson.M{"user": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := make([]domain.ConversationSummary, 0)
	for cursor.Next(ctx) {
		var c domain.Conversation
		if err := cursor.Decode(&c); err != nil {
			return nil, err
		}
		out = append(out, c.Summary())
	}
	return out, cursor.Err()
}

func (s *MongoStore) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.conversations.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
