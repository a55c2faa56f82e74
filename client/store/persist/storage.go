package persist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/redis/go-redis/v9"
)

var (
	ErrNotFound = errors.New("key is not found")
	ErrBadKey   = errors.New("invalid key")
)

// Storage is a key-value backend for state snapshots.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

type MemStorage struct {
	mx *sync.Mutex
	db map[string][]byte
}

func NewMemStorage() *MemStorage {
	return &MemStorage{
		mx: &sync.Mutex{},
		db: make(map[string][]byte),
	}
}

func (ms *MemStorage) Get(_ context.Context, key string) ([]byte, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	v, ok := ms.db[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (ms *MemStorage) Set(_ context.Context, key string, value []byte) error {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	ms.db[key] = append([]byte(nil), value...)
	return nil
}

func (ms *MemStorage) Remove(_ context.Context, key string) error {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	delete(ms.db, key)
	return nil
}

// FileStorage keeps every key in its own JSON file under a directory.
type FileStorage struct {
	dir string
}

func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cannot create storage dir: %w", err)
	}
	return &FileStorage{dir: dir}, nil
}

func (fs *FileStorage) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || key == "." || key == ".." {
		return "", ErrBadKey
	}
	return filepath.Join(fs.dir, key+".json"), nil
}

func (fs *FileStorage) Get(_ context.Context, key string) ([]byte, error) {
	p, err := fs.path(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return b, err
}

// Set writes through a temp file so a crash never leaves a torn snapshot.
func (fs *FileStorage) Set(_ context.Context, key string, value []byte) error {
	p, err := fs.path(key)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(fs.dir, key+".*.tmp")
	if err != nil {
		return err
	}
	if _, err = tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p)
}

func (fs *FileStorage) Remove(_ context.Context, key string) error {
	p, err := fs.path(key)
	if err != nil {
		return err
	}
	if err = os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

type RedisStorage struct {
	client *redis.Client
}

// NewRedisStorage connects to redis and checks the connection.
func NewRedisStorage(ctx context.Context, addr, password string, db int) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStorage{client: client}, nil
}

func redisKey(key string) string {
	return "persist:" + key
}

func (rs *RedisStorage) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := rs.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return b, err
}

func (rs *RedisStorage) Set(ctx context.Context, key string, value []byte) error {
	return rs.client.Set(ctx, redisKey(key), value, 0).Err()
}

func (rs *RedisStorage) Remove(ctx context.Context, key string) error {
	return rs.client.Del(ctx, redisKey(key)).Err()
}

func (rs *RedisStorage) Close() error {
	return rs.client.Close()
}
