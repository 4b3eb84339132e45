package scanmemory

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisPersister stores the set as a Redis set, so adding an entry is a
// single SADD and never rewrites the rest of the set.
type RedisPersister struct {
	client *redis.Client
	key    string
}

func NewRedisPersister(client *redis.Client, key, session string) RedisPersister {
	if client == nil {
		panic("missing redis client")
	}
	if key == "" {
		key = DefaultKey
	}

	return RedisPersister{
		client: client,
		key:    key + ":" + session,
	}
}

func (p RedisPersister) Load(ctx context.Context) ([]string, error) {
	return p.client.SMembers(ctx, p.key).Result()
}

func (p RedisPersister) Save(ctx context.Context, added string, _ []string) error {
	return p.client.SAdd(ctx, p.key, added).Err()
}

func (p RedisPersister) Clear(ctx context.Context) error {
	return p.client.Del(ctx, p.key).Err()
}
