package blobstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/snappy"
	redis "github.com/redis/go-redis/v9"
	"github.com/stratumhq/stratum/internal/record/domain"
)

// Value framing for redis objects. Compressed values only win for payloads
// above a trivial size; the marker byte keeps reads unambiguous either way.
const (
	redisFrameRaw    = 0x00
	redisFrameSnappy = 0x01
)

// RedisStore keeps blobs under {container}:{path} with snappy-compressed
// values and metadata in a companion hash. No TTL is set: the pointer record
// in the primary store decides whether an object is still referenced.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &RedisStore{client: client}, nil
}

func redisKey(container, path string) string {
	return container + ":" + path
}

func (s *RedisStore) Put(ctx context.Context, container, path string, data []byte, metadata map[string]string) (int64, error) {
	framed := frameValue(data)
	key := redisKey(container, path)
	if err := s.client.Set(ctx, key, framed, 0).Err(); err != nil {
		return 0, fmt.Errorf("%w: redis set %s: %v", domain.ErrStoreUnavailable, path, err)
	}
	if len(metadata) > 0 {
		fields := make(map[string]interface{}, len(metadata))
		for k, v := range metadata {
			fields[k] = v
		}
		if err := s.client.HSet(ctx, key+":meta", fields).Err(); err != nil {
			return 0, fmt.Errorf("%w: redis set metadata %s: %v", domain.ErrStoreUnavailable, path, err)
		}
	}
	return int64(len(data)), nil
}

func (s *RedisStore) Get(ctx context.Context, container, path string) ([]byte, error) {
	raw, err := s.client.Get(ctx, redisKey(container, path)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: redis get %s: %v", domain.ErrStoreUnavailable, path, err)
	}
	data, err := unframeValue(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: redis value %s: %v", domain.ErrMalformedPayload, path, err)
	}
	return data, nil
}

func (s *RedisStore) Delete(ctx context.Context, container, path string) error {
	key := redisKey(container, path)
	if err := s.client.Del(ctx, key, key+":meta").Err(); err != nil {
		return fmt.Errorf("%w: redis del %s: %v", domain.ErrStoreUnavailable, path, err)
	}
	return nil
}

func frameValue(data []byte) []byte {
	compressed := snappy.Encode(nil, data)
	if len(compressed) < len(data) {
		return append([]byte{redisFrameSnappy}, compressed...)
	}
	return append([]byte{redisFrameRaw}, data...)
}

func unframeValue(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty value")
	}
	switch raw[0] {
	case redisFrameSnappy:
		return snappy.Decode(nil, raw[1:])
	case redisFrameRaw:
		return raw[1:], nil
	default:
		return nil, fmt.Errorf("unknown value marker %#x", raw[0])
	}
}
