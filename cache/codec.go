package cache

import (
	"github.com/klauspost/compress/zstd"
	"go.mongodb.org/mongo-driver/bson"
)

// Codec converts values to and from stored bytes.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(data []byte) (T, error)
}

var (
	// EncodeAll/DecodeAll可并发调用
	encoder, _ = zstd.NewWriter(nil)
	decoder, _ = zstd.NewReader(nil)
)

// BSONCodec stores T as a zstd compressed BSON document. T must marshal to
// a document: a struct, a pointer to one or a bson.Marshaler.
type BSONCodec[T any] struct{}

func (BSONCodec[T]) Encode(v T) ([]byte, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	return encoder.EncodeAll(raw, make([]byte, 0, len(raw)/4)), nil
}

func (BSONCodec[T]) Decode(data []byte) (T, error) {
	var v T
	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return v, err
	}
	err = bson.Unmarshal(raw, &v)
	return v, err
}
