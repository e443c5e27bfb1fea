package enrichment

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-redis/redis/v8"

	gredis "github.com/mikeydub/go-union/service/redis"
	"github.com/mikeydub/go-union/util"
)

// RedisRepository keeps records as JSON values. Saves run in a WATCH transaction so a concurrent
// save between the version check and the write aborts with ErrVersionConflict.
type RedisRepository struct {
	cache *gredis.Cache
}

func NewRedisRepository(cache *gredis.Cache) *RedisRepository {
	return &RedisRepository{cache: cache}
}

func (r *RedisRepository) Get(ctx context.Context, key Key) (Record, error) {
	b, err := r.cache.Get(ctx, key.String())
	if util.ErrorAs[gredis.ErrKeyNotFound](err) {
		return Record{}, ErrRecordNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return decodeRecord(b)
}

func (r *RedisRepository) FindAll(ctx context.Context, keys []Key) (map[Key]Record, error) {
	raw := make([]string, len(keys))
	for i, k := range keys {
		raw[i] = k.String()
	}
	vals, err := r.cache.MGet(ctx, raw)
	if err != nil {
		return nil, err
	}

	out := make(map[Key]Record, len(keys))
	for i, b := range vals {
		if b == nil {
			continue
		}
		rec, err := decodeRecord(b)
		if err != nil {
			return nil, err
		}
		out[keys[i]] = rec
	}
	return out, nil
}

func (r *RedisRepository) Save(ctx context.Context, record Record) (Record, error) {
	k := r.cache.PrefixedKey(record.Key.String())

	var saved Record
	err := r.cache.Client().Watch(ctx, func(tx *redis.Tx) error {
		var current int64
		b, err := tx.Get(ctx, k).Bytes()
		switch {
		case err == redis.Nil:
		case err != nil:
			return err
		default:
			stored, err := decodeRecord(b)
			if err != nil {
				return err
			}
			current = stored.Version
		}

		if current != record.Version {
			return ErrVersionConflict
		}

		saved = record
		saved.Version++
		asJSON, err := json.Marshal(saved)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, asJSON, 0)
			return nil
		})
		return err
	}, k)

	if errors.Is(err, redis.TxFailedErr) {
		return Record{}, ErrVersionConflict
	}
	if err != nil {
		return Record{}, err
	}
	return saved, nil
}

func (r *RedisRepository) Delete(ctx context.Context, key Key) error {
	return r.cache.Delete(ctx, key.String())
}

func decodeRecord(b []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}
