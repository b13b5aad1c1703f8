package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opentalon/funchost/internal/host"
)

const DefaultPrefix = "funchost"

// ErrNotFound is returned by Get for functions missing from the mirror.
var ErrNotFound = errors.New("function not mirrored")

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisMirror keeps a copy of the registration table in a redis hash and
// announces changes on a pub/sub channel. It implements host.Registrar.
type RedisMirror struct {
	client *redis.Client
	prefix string
}

// Dial connects to redis and checks the connection.
func Dial(ctx context.Context, opts Options) (*RedisMirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisMirror(client, opts.Prefix), nil
}

func NewRedisMirror(client *redis.Client, prefix string) *RedisMirror {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisMirror{client: client, prefix: prefix}
}

func (m *RedisMirror) FunctionsKey() string  { return m.prefix + ":functions" }
func (m *RedisMirror) ReloadChannel() string { return m.prefix + ":reload" }

func (m *RedisMirror) Close() error {
	return m.client.Close()
}

func (m *RedisMirror) Put(ctx context.Context, reg host.Registration) error {
	data, err := json.Marshal(reg.Snapshot())
	if err != nil {
		return fmt.Errorf("encode registration %s: %w", reg.Name(), err)
	}
	_, err = m.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, m.FunctionsKey(), reg.Name(), data)
		p.Publish(ctx, m.ReloadChannel(), reg.Name())
		return nil
	})
	if err != nil {
		return fmt.Errorf("mirror registration %s: %w", reg.Name(), err)
	}
	return nil
}

func (m *RedisMirror) Delete(ctx context.Context, name string) error {
	_, err := m.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HDel(ctx, m.FunctionsKey(), name)
		p.Publish(ctx, m.ReloadChannel(), name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("unmirror registration %s: %w", name, err)
	}
	return nil
}

func (m *RedisMirror) Get(ctx context.Context, name string) (host.Snapshot, error) {
	data, err := m.client.HGet(ctx, m.FunctionsKey(), name).Bytes()
	if errors.Is(err, redis.Nil) {
		return host.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return host.Snapshot{}, err
	}
	var snap host.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return host.Snapshot{}, fmt.Errorf("decode registration %s: %w", name, err)
	}
	return snap, nil
}

// Names returns the mirrored function names, sorted.
func (m *RedisMirror) Names(ctx context.Context) ([]string, error) {
	names, err := m.client.HKeys(ctx, m.FunctionsKey()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Subscribe returns a subscription to change announcements. Each message
// payload is a function name.
func (m *RedisMirror) Subscribe(ctx context.Context) *redis.PubSub {
	return m.client.Subscribe(ctx, m.ReloadChannel())
}
