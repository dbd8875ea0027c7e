package cache

import (
	"bytes"
	"context"
	"errors"
	"io"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps artifacts as GridFS files named after the artifact.
type MongoStore struct {
	bucket *gridfs.Bucket
}

func NewMongoStore(db *mongo.Database, bucketName string) (*MongoStore, error) {
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(bucketName))
	if err != nil {
		return nil, err
	}
	return &MongoStore{bucket: bucket}, nil
}

func (s *MongoStore) Load(ctx context.Context, name string) ([]byte, error) {
	// 零值表示不设截止时间
	deadline, _ := ctx.Deadline()
	if err := s.bucket.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	// 默认读取最新的版本
	stream, err := s.bucket.OpenDownloadStreamByName(name)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	return io.ReadAll(stream)
}

// Save uploads a new revision and then removes the older ones.
func (s *MongoStore) Save(ctx context.Context, name string, data []byte) error {
	// 零值表示不设截止时间
	deadline, _ := ctx.Deadline()
	if err := s.bucket.SetWriteDeadline(deadline); err != nil {
		return err
	}
	id, err := s.bucket.UploadFromStream(name, bytes.NewReader(data))
	if err != nil {
		return err
	}
	return s.deleteRevisions(ctx, name, id)
}

func (s *MongoStore) Delete(ctx context.Context, name string) error {
	return s.deleteRevisions(ctx, name, primitive.NilObjectID)
}

func (s *MongoStore) deleteRevisions(ctx context.Context, name string, keep primitive.ObjectID) error {
	cursor, err := s.bucket.FindContext(ctx, bson.M{"filename": name})
	if err != nil {
		return err
	}
	var files []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cursor.All(ctx, &files); err != nil {
		return err
	}
	for _, f := range files {
		if f.ID == keep {
			continue
		}
		if err := s.bucket.DeleteContext(ctx, f.ID); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
			return err
		}
	}
	return nil
}
