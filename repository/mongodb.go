package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mapleleafu/typearena/typearena-backend/models"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const sessionsCollection = "game_sessions"

// ConnectMongoDB connects and pings the primary.
func ConnectMongoDB(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	log.Info().Msg("Successfully connected to MongoDB")
	return client, nil
}

// MongoArchive keeps the full document of every finished game, final
// state included.
type MongoArchive struct {
	collection *mongo.Collection
}

func NewMongoArchive(client *mongo.Client, database string) *MongoArchive {
	// Nested documents decode as maps so the final state converts back to JSON.
	opts := options.Collection().SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})
	return &MongoArchive{collection: client.Database(database).Collection(sessionsCollection, opts)}
}

// toDocument fills FinalStateDoc so the final state is stored as a real
// document rather than an opaque blob.
func toDocument(session models.CompletedSession) (models.CompletedSession, error) {
	if len(session.FinalState) == 0 {
		return session, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(session.FinalState, &doc); err != nil {
		return session, fmt.Errorf("decoding final state: %w", err)
	}
	session.FinalStateDoc = doc
	return session, nil
}

func fromDocument(session models.CompletedSession) (models.CompletedSession, error) {
	if session.FinalStateDoc == nil {
		return session, nil
	}
	raw, err := json.Marshal(session.FinalStateDoc)
	if err != nil {
		return session, fmt.Errorf("encoding final state: %w", err)
	}
	session.FinalState = raw
	session.FinalStateDoc = nil
	return session, nil
}

func (a *MongoArchive) RecordSession(ctx context.Context, session models.CompletedSession) error {
	doc, err := toDocument(session)
	if err != nil {
		return err
	}
	if _, err := a.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("archiving session: %w", err)
	}
	return nil
}

func (a *MongoArchive) GetSession(ctx context.Context, sessionID string) (*models.CompletedSession, error) {
	var session models.CompletedSession
	err := a.collection.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading archived session: %w", err)
	}

	session, err = fromDocument(session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}
