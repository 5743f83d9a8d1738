package etl

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/BartekS5/ledgerbridge/pkg/logger"
	"github.com/BartekS5/ledgerbridge/pkg/models"
)

const mongoKeyIndexName = "ledgerbridge_conflict_key"

// MongoSink upserts records into one collection per table.
type MongoSink struct {
	DB *mongo.Database

	mu      sync.Mutex
	indexed map[string]bool
}

func NewMongoSink(client *mongo.Client, database string) *MongoSink {
	return &MongoSink{
		DB:      client.Database(database),
		indexed: make(map[string]bool),
	}
}

func (m *MongoSink) Upsert(ctx context.Context, table string, records []DecodedRecord, key ConflictKey, mode models.ImportMode) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if err := m.ensureKeyIndex(ctx, table, key); err != nil {
		return 0, err
	}

	writes := make([]mongo.WriteModel, 0, len(records))
	for _, rec := range records {
		writes = append(writes, mongoWriteModel(rec, key, mode))
	}

	res, err := m.DB.Collection(table).BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true))
	if err != nil {
		return 0, classifyMongoError(err)
	}
	logger.Debugf("Mongo BulkWrite %s: Match %d, Mod %d, Upsert %d", table, res.MatchedCount, res.ModifiedCount, res.UpsertedCount)
	return len(records), nil
}

// ensureKeyIndex creates the unique conflict-key index once per collection.
func (m *MongoSink) ensureKeyIndex(ctx context.Context, table string, key ConflictKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexed[table] {
		return nil
	}

	keys := bson.D{}
	for _, k := range key {
		keys = append(keys, bson.E{Key: k, Value: 1})
	}
	_, err := m.DB.Collection(table).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    keys,
		Options: options.Index().SetUnique(true).SetName(mongoKeyIndexName),
	})
	if err != nil {
		return fmt.Errorf("create key index on %s: %w", table, classifyMongoError(err))
	}
	m.indexed[table] = true
	return nil
}

func mongoWriteModel(rec DecodedRecord, key ConflictKey, mode models.ImportMode) mongo.WriteModel {
	filter := bson.D{}
	for _, k := range key {
		filter = append(filter, bson.E{Key: k, Value: rec[k]})
	}

	if mode == models.ModeMerge {
		set := bson.M{}
		for k, v := range rec {
			if v != nil {
				set[k] = v
			}
		}
		return mongo.NewUpdateOneModel().SetFilter(filter).SetUpdate(bson.M{"$set": set}).SetUpsert(true)
	}
	return mongo.NewReplaceOneModel().SetFilter(filter).SetReplacement(bson.M(rec)).SetUpsert(true)
}

func classifyMongoError(err error) error {
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return MarkTransient(err)
	}
	var se mongo.ServerError
	if errors.As(err, &se) && se.HasErrorLabel("RetryableWriteError") {
		return MarkTransient(err)
	}
	return err
}
