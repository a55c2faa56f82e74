package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/adwski/meeting-room/client/action"
	"github.com/adwski/meeting-room/client/config"
	"github.com/adwski/meeting-room/client/meeting"
	"github.com/adwski/meeting-room/client/store"
	"github.com/adwski/meeting-room/client/store/persist"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const sendTimeout = 5 * time.Second

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load(os.Args[1:], ".env")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	storage, closeStorage, err := newStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init persist storage")
	}
	defer closeStorage()

	var media *action.MediaConstraints
	if !cfg.NoMedia {
		media = &action.MediaConstraints{Audio: true, Video: true}
	}
	m := meeting.New(meeting.Config{
		Logger:     &logger,
		SocketURL:  cfg.SocketURL,
		Room:       cfg.Room,
		UserName:   cfg.UserName,
		Password:   cfg.Password,
		ICEServers: cfg.ICEServers,
		Media:      media,
		Storage:    storage,
		PersistKey: cfg.PersistKey,
	})
	unsubscribe := m.Store().Subscribe(chatPrinter())
	defer unsubscribe()

	ready := make(chan struct{})
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return m.Run(egCtx, func() { close(ready) })
	})
	eg.Go(func() error {
		select {
		case <-ready:
		case <-egCtx.Done():
			return nil
		}
		return prompt(egCtx, m, cancel, &logger)
	})

	if err = eg.Wait(); err != nil {
		logger.Error().Err(err).Msg("meeting failed")
		os.Exit(1)
	}
}

func newStorage(ctx context.Context, cfg *config.Config) (persist.Storage, func(), error) {
	switch cfg.Storage {
	case config.StorageRedis:
		rs, err := persist.NewRedisStorage(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return rs, func() { _ = rs.Close() }, nil
	case config.StorageFile:
		fs, err := persist.NewFileStorage(cfg.StorageDir)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil
	default:
		return persist.NewMemStorage(), func() {}, nil
	}
}

// prompt reads chat lines from stdin. Lines starting with a slash are commands.
func prompt(ctx context.Context, m *meeting.Meeting, quit func(), logger *zerolog.Logger) error {
	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				quit()
				return nil
			}
			if err := command(ctx, m, quit, strings.TrimSpace(line)); err != nil {
				logger.Error().Err(err).Msg("command failed")
			}
		}
	}
}

func command(ctx context.Context, m *meeting.Meeting, quit func(), line string) error {
	cCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	name, arg, _ := strings.Cut(line, " ")
	switch name {
	case "":
		return nil
	case "/quit":
		quit()
		return nil
	case "/share":
		m.ShareScreen(true)
		return nil
	case "/unshare":
		m.ShareScreen(false)
		return nil
	case "/password":
		return m.UpdatePassword(cCtx, arg)
	default:
		return m.Send(cCtx, line)
	}
}

// chatPrinter prints messages from other participants as they arrive.
func chatPrinter() func(store.State) {
	var (
		mx   sync.Mutex
		seen int
	)
	return func(s store.State) {
		mx.Lock()
		defer mx.Unlock()
		msgs := s.Chat.Messages
		if len(msgs) < seen {
			seen = 0
		}
		for _, msg := range msgs[seen:] {
			if !msg.Me {
				fmt.Printf("[%s] %s\n", msg.UserName, msg.Text)
			}
		}
		seen = len(msgs)
	}
}
