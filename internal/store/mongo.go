package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"karybot/internal/config"
	"karybot/lib/sl"
)

const collectionRecords = "records"

// MongoStore is the optional database-backed record store. Each named
// record is one document in the records collection, holding the same JSON
// the file store would write, so the two backends are interchangeable.
type MongoStore struct {
	ctx           context.Context
	clientOptions *options.ClientOptions
	database      string
	log           *slog.Logger
}

type recordDocument struct {
	Name string `bson:"_id"`
	Data []byte `bson:"data"`
}

func NewMongoStore(conf *config.Config, log *slog.Logger) *MongoStore {
	if !conf.Mongo.Enabled {
		return nil
	}
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	return &MongoStore{
		ctx:           context.Background(),
		clientOptions: clientOptions,
		database:      conf.Mongo.Database,
		log:           log.With(sl.Module("store.mongo")),
	}
}

func (m *MongoStore) connect() (*mongo.Client, error) {
	connection, err := mongo.Connect(m.ctx, m.clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	return connection, nil
}

func (m *MongoStore) disconnect(connection *mongo.Client) {
	_ = connection.Disconnect(m.ctx)
}

// Load fills out from the named record document. A missing document or an
// undecodable payload leaves out empty, same as the file backend.
func (m *MongoStore) Load(name string, out any) error {
	connection, err := m.connect()
	if err != nil {
		m.log.With(slog.String("record", name)).Warn("loading record", sl.Err(err))
		return nil
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionRecords)
	filter := bson.D{{Key: "_id", Value: name}}
	var doc recordDocument
	err = collection.FindOne(m.ctx, filter).Decode(&doc)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			m.log.With(slog.String("record", name)).Warn("reading record", sl.Err(err))
		}
		return nil
	}
	if err := json.Unmarshal(doc.Data, out); err != nil {
		m.log.With(slog.String("record", name)).Warn("corrupt record, starting empty", sl.Err(err))
	}
	return nil
}

// Save upserts the full record content as a single document.
func (m *MongoStore) Save(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionRecords)
	filter := bson.D{{Key: "_id", Value: name}}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "data", Value: data}}}}
	opts := options.Update().SetUpsert(true)
	_, err = collection.UpdateOne(m.ctx, filter, update, opts)
	return err
}
