// Package config loads meeting-client settings from flags, environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Storage backends for the persisted store.
const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageRedis  = "redis"
)

var (
	ErrNoRoom         = errors.New("room name is required")
	ErrUnknownStorage = errors.New("unknown storage backend")
)

type Config struct {
	SocketURL  string
	PersistKey string
	LogLevel   string

	Storage       string
	StorageDir    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Room       string
	UserName   string
	Password   string
	ICEServers []string
	NoMedia    bool
}

// Load reads envFile when it exists, then parses args with environment values as defaults.
func Load(args []string, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("cannot load %s: %w", envFile, err)
		}
	}

	fs := pflag.NewFlagSet("meeting-client", pflag.ContinueOnError)
	cfg := &Config{}
	fs.StringVarP(&cfg.SocketURL, "socket-url", "s", getEnv("SOCKET_URL", "ws://localhost:8888/socket"), "relay socket url")
	fs.StringVar(&cfg.PersistKey, "persist-key", getEnv("KEY_PERSIST_STORE", "meeting-room"), "persisted store key")
	fs.StringVarP(&cfg.LogLevel, "log-level", "l", getEnv("LOG_LEVEL", "info"), "log level")
	fs.StringVar(&cfg.Storage, "storage", getEnv("PERSIST_STORAGE", StorageFile), "persist storage backend: memory, file or redis")
	fs.StringVar(&cfg.StorageDir, "storage-dir", getEnv("PERSIST_DIR", ".meeting-room"), "directory for file storage")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "redis address for redis storage")
	fs.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "redis database")
	fs.StringVarP(&cfg.Room, "room", "r", getEnv("ROOM_NAME", ""), "room to join")
	fs.StringVarP(&cfg.UserName, "user", "u", getEnv("USER_NAME", "guest"), "display name")
	fs.StringVarP(&cfg.Password, "password", "p", getEnv("ROOM_PASSWORD", ""), "room password")
	fs.StringSliceVar(&cfg.ICEServers, "ice-server", splitEnv("ICE_SERVERS"), "ICE server urls")
	fs.BoolVar(&cfg.NoMedia, "no-media", false, "join without local media")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.Room == "" {
		return nil, ErrNoRoom
	}
	switch cfg.Storage {
	case StorageMemory, StorageFile, StorageRedis:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStorage, cfg.Storage)
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(def)))
	if err != nil {
		return def
	}
	return v
}

func splitEnv(key string) []string {
	v := getEnv(key, "")
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}
