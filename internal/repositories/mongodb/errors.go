package mongodb

import (
	"errors"
	"fmt"

	"github.com/ArowuTest/tutorbot-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// mapError translates driver errors into repository sentinels.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return repositories.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", repositories.ErrDuplicateKey, err)
	}
	return err
}

// insertDocument converts doc to a bson.M suitable for $setOnInsert, without
// the listed keys. Keys matched by the upsert filter are copied into the new
// document by the server and must not be repeated.
func insertDocument(doc interface{}, omit ...string) (bson.M, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	for _, key := range omit {
		delete(m, key)
	}
	return m, nil
}
