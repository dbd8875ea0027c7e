package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lucaspons9/TelBot/cache"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CachePath is where built graphs are kept: a directory, a mongo GridFS
// bucket ({db}.{col}) or a redis url.
type CachePath struct {
	Dir      string
	DB       string
	Coll     string
	RedisURL string
}

func NewCachePath(dirOrColl string) (*CachePath, error) {
	s := strings.TrimSpace(dirOrColl)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "redis://") || strings.HasPrefix(s, "rediss://") {
		return &CachePath{RedisURL: s}, nil
	}
	// 检查是否作为目录存在
	if info, err := os.Stat(s); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("cache path %s is not a directory", s)
		}
		return &CachePath{Dir: s}, nil
	}
	splitted := strings.Split(s, ".")
	if len(splitted) == 2 && splitted[0] != "" && splitted[1] != "" && !strings.ContainsAny(s, `/\`) {
		return &CachePath{DB: splitted[0], Coll: splitted[1]}, nil
	}
	return &CachePath{Dir: s}, nil
}

func (p *CachePath) String() string {
	switch {
	case p == nil:
		return "memory"
	case p.RedisURL != "":
		return p.RedisURL
	case p.Dir != "":
		// return absolute path
		if path, err := filepath.Abs(p.Dir); err == nil {
			return path
		}
		return p.Dir
	default:
		return p.DB + "." + p.Coll
	}
}

// Open connects the store. The returned function releases its connections.
func (p *CachePath) Open(ctx context.Context, mongoURI string) (cache.Store, func(), error) {
	switch {
	case p == nil:
		return cache.NewMemoryStore(), func() {}, nil
	case p.RedisURL != "":
		opts, err := redis.ParseURL(p.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid redis url: %w", err)
		}
		store, err := cache.NewRedisStore(ctx, opts)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	case p.Dir != "":
		return cache.NewFileStore(p.Dir), func() {}, nil
	default:
		if mongoURI == "" {
			return nil, nil, fmt.Errorf("cache %s needs -mongo_uri", p)
		}
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			client.Disconnect(context.Background())
			return nil, nil, fmt.Errorf("ping mongo: %w", err)
		}
		store, err := cache.NewMongoStore(client.Database(p.DB), p.Coll)
		if err != nil {
			client.Disconnect(context.Background())
			return nil, nil, err
		}
		return store, func() { client.Disconnect(context.Background()) }, nil
	}
}
