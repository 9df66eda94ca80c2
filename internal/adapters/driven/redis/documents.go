package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/tasksync/internal/core/domain"
	"github.com/custodia-labs/tasksync/internal/core/ports/driven"
)

// Verify interface compliance
var (
	_ driven.DocumentDatabase = (*Database)(nil)
	_ driven.DocumentStore    = (*DocumentStore)(nil)
)

const (
	// Key layout: one set naming every store, and per store one hash of
	// bodies and one hash of revisions, both keyed by document key.
	storesKey   = "tasksync:stores"
	storePrefix = "tasksync:store:"
)

func docsKey(store string) string { return storePrefix + store + ":docs" }
func revsKey(store string) string { return storePrefix + store + ":revs" }

// Database implements driven.DocumentDatabase on Redis hashes.
type Database struct {
	client *redis.Client
}

// NewDatabase creates a Redis-backed document database.
func NewDatabase(client *redis.Client) *Database {
	return &Database{client: client}
}

// Store returns the named store, registering its name.
func (d *Database) Store(ctx context.Context, name string) (driven.DocumentStore, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty store name", domain.ErrInvalidInput)
	}
	if err := d.client.SAdd(ctx, storesKey, name).Err(); err != nil {
		return nil, fmt.Errorf("register store %s: %w", name, err)
	}
	return &DocumentStore{client: d.client, name: name}, nil
}

// Names lists registered stores that hold at least one document.
func (d *Database) Names(ctx context.Context) ([]string, error) {
	all, err := d.client.SMembers(ctx, storesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}

	pipe := d.client.Pipeline()
	lens := make([]*redis.IntCmd, len(all))
	for i, name := range all {
		lens[i] = pipe.HLen(ctx, revsKey(name))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("count store documents: %w", err)
	}

	names := make([]string, 0, len(all))
	for i, name := range all {
		if lens[i].Val() > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Ping checks the server is reachable.
func (d *Database) Ping(ctx context.Context) error {
	return d.client.Ping(ctx).Err()
}

// Close closes the client.
func (d *Database) Close() error {
	return d.client.Close()
}

// DocumentStore is one named store inside a Database.
type DocumentStore struct {
	client *redis.Client
	name   string
}

func (s *DocumentStore) Name() string { return s.name }

// Get reads the body and revision in one transaction.
func (s *DocumentStore) Get(ctx context.Context, key string) (*domain.Document, error) {
	var rev, body *redis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		rev = pipe.HGet(ctx, revsKey(s.name), key)
		body = pipe.HGet(ctx, docsKey(s.name), key)
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", s.name, key, err)
	}
	return &domain.Document{Key: key, Rev: rev.Val(), Body: []byte(body.Val())}, nil
}

// putScript writes a document only if its stored revision equals ARGV[2]
// (empty meaning absent).
var putScript = redis.NewScript(`
	local cur = redis.call("hget", KEYS[2], ARGV[1])
	if not cur then cur = "" end
	if cur ~= ARGV[2] then
		return 0
	end
	redis.call("hset", KEYS[2], ARGV[1], ARGV[3])
	redis.call("hset", KEYS[1], ARGV[1], ARGV[4])
	return 1
`)

func (s *DocumentStore) Put(ctx context.Context, key string, body []byte, rev string) (string, error) {
	next := domain.NextRevision(rev)
	ok, err := putScript.Run(ctx, s.client,
		[]string{docsKey(s.name), revsKey(s.name)},
		key, rev, next, body,
	).Int()
	if err != nil {
		return "", fmt.Errorf("put %s/%s: %w", s.name, key, err)
	}
	if ok == 0 {
		return "", domain.ErrConflict
	}
	return next, nil
}

// removeScript returns -1 when the key is missing, 0 on a revision
// mismatch and 1 once removed.
var removeScript = redis.NewScript(`
	local cur = redis.call("hget", KEYS[2], ARGV[1])
	if not cur then
		return -1
	end
	if cur ~= ARGV[2] then
		return 0
	end
	redis.call("hdel", KEYS[1], ARGV[1])
	redis.call("hdel", KEYS[2], ARGV[1])
	return 1
`)

func (s *DocumentStore) Remove(ctx context.Context, key, rev string) error {
	res, err := removeScript.Run(ctx, s.client, []string{docsKey(s.name), revsKey(s.name)}, key, rev).Int()
	if err != nil {
		return fmt.Errorf("remove %s/%s: %w", s.name, key, err)
	}
	switch res {
	case -1:
		return domain.ErrNotFound
	case 0:
		return domain.ErrConflict
	}
	return nil
}

func (s *DocumentStore) List(ctx context.Context, includeBody bool) ([]*domain.Document, error) {
	var revs, bodies *redis.MapStringStringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		revs = pipe.HGetAll(ctx, revsKey(s.name))
		if includeBody {
			bodies = pipe.HGetAll(ctx, docsKey(s.name))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.name, err)
	}

	docs := make([]*domain.Document, 0, len(revs.Val()))
	for key, rev := range revs.Val() {
		doc := &domain.Document{Key: key, Rev: rev}
		if includeBody {
			doc.Body = []byte(bodies.Val()[key])
		}
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })
	return docs, nil
}

var clearScript = redis.NewScript(`
	local n = redis.call("hlen", KEYS[2])
	redis.call("del", KEYS[1], KEYS[2])
	return n
`)

func (s *DocumentStore) Clear(ctx context.Context) (int, error) {
	n, err := clearScript.Run(ctx, s.client, []string{docsKey(s.name), revsKey(s.name)}).Int()
	if err != nil {
		return 0, fmt.Errorf("clear %s: %w", s.name, err)
	}
	return n, nil
}
