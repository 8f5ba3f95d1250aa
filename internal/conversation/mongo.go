package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names used by MongoStore.
const (
	conversationsCollection = "conversations"
	messagesCollection      = "messages"
)

// MongoStore keeps transcripts in MongoDB.
type MongoStore struct {
	client        *mongo.Client
	conversations *mongo.Collection
	messages      *mongo.Collection
	logger        *slog.Logger
	now           func() time.Time
}

type conversationDoc struct {
	ID        string    `bson:"_id"`
	LegacyID  string    `bson:"legacy_id"`
	UserID    string    `bson:"user_id"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// messageDoc stores content blocks and tool calls as JSON text so
// free-form tool input survives the round trip without BSON type
// rewriting.
type messageDoc struct {
	ID             string    `bson:"_id"`
	ConversationID string    `bson:"conversation_id"`
	Role           string    `bson:"role"`
	Content        string    `bson:"content"`
	InputTokens    int       `bson:"input_tokens"`
	OutputTokens   int       `bson:"output_tokens"`
	Model          string    `bson:"model,omitempty"`
	ToolCalls      string    `bson:"tool_calls,omitempty"`
	CreatedAt      time.Time `bson:"created_at"`
}

// DialMongo connects to uri, verifies the connection and returns a
// store on the named database.
func DialMongo(ctx context.Context, uri, database string, logger *slog.Logger) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := NewMongoStore(client, client.Database(database), logger)
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// NewMongoStore wraps an existing database handle. client may be nil, in
// which case Close does not disconnect.
func NewMongoStore(client *mongo.Client, db *mongo.Database, logger *slog.Logger) *MongoStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MongoStore{
		client:        client,
		conversations: db.Collection(conversationsCollection),
		messages:      db.Collection(messagesCollection),
		logger:        logger,
		now:           time.Now,
	}
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	if _, err := s.conversations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "legacy_id", Value: 1}, {Key: "user_id", Value: 1}, {Key: "updated_at", Value: -1}},
	}); err != nil {
		return fmt.Errorf("create conversation index: %w", err)
	}
	if _, err := s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
	}); err != nil {
		return fmt.Errorf("create message index: %w", err)
	}
	return nil
}

// Close disconnects the client if the store owns one.
func (s *MongoStore) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// stamp truncates to the millisecond precision BSON dates keep.
func (s *MongoStore) stamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// Create starts a new conversation.
func (s *MongoStore) Create(ctx context.Context, legacyID, userID string) (Conversation, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Conversation{}, fmt.Errorf("generate conversation ID: %w", err)
	}
	now := s.stamp()
	doc := conversationDoc{ID: id.String(), LegacyID: legacyID, UserID: userID, CreatedAt: now, UpdatedAt: now}
	if _, err := s.conversations.InsertOne(ctx, doc); err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return Conversation(doc), nil
}

func (s *MongoStore) findConversation(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (Conversation, error) {
	var doc conversationDoc
	err := s.conversations.FindOne(ctx, filter, opts...).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("read conversation: %w", err)
	}
	return Conversation(doc), nil
}

// Get returns a conversation by ID.
func (s *MongoStore) Get(ctx context.Context, id string) (Conversation, error) {
	return s.findConversation(ctx, bson.M{"_id": id})
}

// Latest returns the owner's most recently updated conversation.
func (s *MongoStore) Latest(ctx context.Context, legacyID, userID string) (Conversation, error) {
	return s.findConversation(ctx,
		bson.M{"legacy_id": legacyID, "user_id": userID},
		options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: -1}}))
}

// Append adds a message to an existing conversation.
func (s *MongoStore) Append(ctx context.Context, m Message) (Message, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Message{}, fmt.Errorf("generate message ID: %w", err)
	}
	m.ID = id.String()
	m.CreatedAt = s.stamp()

	doc, err := toMessageDoc(m)
	if err != nil {
		return Message{}, err
	}

	res, err := s.conversations.UpdateOne(ctx,
		bson.M{"_id": m.ConversationID},
		bson.M{"$set": bson.M{"updated_at": m.CreatedAt}})
	if err != nil {
		return Message{}, fmt.Errorf("update conversation: %w", err)
	}
	if res.MatchedCount == 0 {
		return Message{}, ErrNotFound
	}
	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// Recent returns up to n of the newest messages, oldest first.
func (s *MongoStore) Recent(ctx context.Context, conversationID string, n int) ([]Message, error) {
	if n <= 0 {
		return nil, nil
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(n))
	out, err := s.findMessages(ctx, conversationID, opts)
	if err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

// Messages returns the whole transcript, oldest first.
func (s *MongoStore) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	return s.findMessages(ctx, conversationID, opts)
}

func (s *MongoStore) findMessages(ctx context.Context, conversationID string, opts *options.FindOptions) ([]Message, error) {
	cursor, err := s.messages.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	out := make([]Message, 0, len(docs))
	for _, d := range docs {
		m, err := fromMessageDoc(d)
		if err != nil {
			s.logger.Warn("message partly unreadable", "message", d.ID, "error", err)
		}
		out = append(out, m)
	}
	return out, nil
}

// Delete removes a conversation and its messages.
func (s *MongoStore) Delete(ctx context.Context, id string) (bool, error) {
	if _, err := s.messages.DeleteMany(ctx, bson.M{"conversation_id": id}); err != nil {
		return false, fmt.Errorf("delete messages: %w", err)
	}
	res, err := s.conversations.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("delete conversation: %w", err)
	}
	return res.DeletedCount > 0, nil
}

func toMessageDoc(m Message) (messageDoc, error) {
	content, err := encodeContent(m.Content)
	if err != nil {
		return messageDoc{}, err
	}
	doc := messageDoc{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Role:           m.Role,
		Content:        content,
		InputTokens:    m.InputTokens,
		OutputTokens:   m.OutputTokens,
		Model:          m.Model,
		CreatedAt:      m.CreatedAt,
	}
	if m.ToolCalls != nil {
		raw, err := json.Marshal(m.ToolCalls)
		if err != nil {
			return messageDoc{}, fmt.Errorf("encode tool calls: %w", err)
		}
		doc.ToolCalls = string(raw)
	}
	return doc, nil
}

// fromMessageDoc always returns the message; a non-nil error means its
// content or tool calls could not be decoded and were left empty.
func fromMessageDoc(d messageDoc) (Message, error) {
	m := Message{
		ID:             d.ID,
		ConversationID: d.ConversationID,
		Role:           d.Role,
		InputTokens:    d.InputTokens,
		OutputTokens:   d.OutputTokens,
		Model:          d.Model,
		CreatedAt:      d.CreatedAt.UTC(),
	}
	content, err := decodeContent(d.Content)
	if err != nil {
		return m, err
	}
	m.Content = content
	if d.ToolCalls == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(d.ToolCalls), &m.ToolCalls); err != nil {
		m.ToolCalls = nil
		return m, err
	}
	return m, nil
}
