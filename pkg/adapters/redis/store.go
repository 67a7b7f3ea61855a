package redis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aretw0/regions/pkg/domain"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the adapters.
const DefaultPrefix = "regions:"

// replaceScript overwrites one list element, reporting 0 when out of range.
var replaceScript = backend.NewScript(`
local n = redis.call("LLEN", KEYS[1])
local i = tonumber(ARGV[1])
if i < 0 or i >= n then
	return 0
end
redis.call("LSET", KEYS[1], i, ARGV[2])
return 1
`)

// spliceScript removes one list element by position: it is overwritten with a
// unique tombstone that LREM then deletes.
var spliceScript = backend.NewScript(`
local n = redis.call("LLEN", KEYS[1])
local i = tonumber(ARGV[1])
if i < 0 or i >= n then
	return 0
end
redis.call("LSET", KEYS[1], i, ARGV[2])
redis.call("LREM", KEYS[1], 1, ARGV[2])
return 1
`)

// Store implements ports.RecordStore and ports.Splicer using Redis lists, one
// list per surface and tool. Replicas pointing at the same prefix share records.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration of record lists, refreshed on every write.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
		ttl:    0, // No expiration by default
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Client returns the underlying client, to share it with a Locker.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(surface, tool string) string {
	return s.prefix + "store:" + surface + ":" + tool
}

// Records returns every record for surface and tool in insertion order.
func (s *Store) Records(ctx context.Context, surface, tool string) ([]domain.Record, error) {
	vals, err := s.client.LRange(ctx, s.key(surface, tool), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read records from redis: %w", err)
	}

	out := make([]domain.Record, 0, len(vals))
	for i, v := range vals {
		rec, err := decode(v)
		if err != nil {
			return nil, fmt.Errorf("failed to decode record %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// AddRecord appends rec.
func (s *Store) AddRecord(ctx context.Context, surface, tool string, rec domain.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	k := s.key(surface, tool)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, k, data)
	if s.ttl > 0 {
		pipe.Expire(ctx, k, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to add record to redis: %w", err)
	}
	return nil
}

// ReplaceRecord overwrites the record at index.
func (s *Store) ReplaceRecord(ctx context.Context, surface, tool string, index int, rec domain.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	k := s.key(surface, tool)
	ok, err := replaceScript.Run(ctx, s.client, []string{k}, index, data).Int()
	if err != nil {
		return fmt.Errorf("failed to replace record in redis: %w", err)
	}
	if ok == 0 {
		return fmt.Errorf("replace %s[%d]: %w", k, index, domain.ErrIndexOutOfRange)
	}
	return s.touch(ctx, k)
}

// RemoveRecordAt splices out the record at index.
func (s *Store) RemoveRecordAt(ctx context.Context, surface, tool string, index int) error {
	k := s.key(surface, tool)
	tombstone := "__removed__:" + uuid.NewString()
	ok, err := spliceScript.Run(ctx, s.client, []string{k}, index, tombstone).Int()
	if err != nil {
		return fmt.Errorf("failed to remove record from redis: %w", err)
	}
	if ok == 0 {
		return fmt.Errorf("remove %s[%d]: %w", k, index, domain.ErrIndexOutOfRange)
	}
	return nil
}

// ClearStore deletes the list for surface and tool.
func (s *Store) ClearStore(ctx context.Context, surface, tool string) error {
	if err := s.client.Del(ctx, s.key(surface, tool)).Err(); err != nil {
		return fmt.Errorf("failed to clear records in redis: %w", err)
	}
	return nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) touch(ctx context.Context, k string) error {
	if s.ttl <= 0 {
		return nil
	}
	return s.client.Expire(ctx, k, s.ttl).Err()
}

func decode(v string) (domain.Record, error) {
	var rec domain.Record
	dec := json.NewDecoder(bytes.NewReader([]byte(v)))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		return domain.Record{}, err
	}
	if rec.Data == nil {
		rec.Data = make(map[string]any)
	}
	return rec, nil
}
