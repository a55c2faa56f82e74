package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	httpServer "github.com/adwski/meeting-room/backend/server/http"
	websocketServer "github.com/adwski/meeting-room/backend/server/websocket"
	"github.com/adwski/meeting-room/backend/service"
	store "github.com/adwski/meeting-room/backend/storage/memory"
	sw "github.com/adwski/meeting-room/backend/switch"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Fatal().Err(err).Msg("failed to load .env")
	}
	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)

	var (
		apiListenAddr   = fs.StringP("api-listen-addr", "a", env("API_LISTEN_ADDR", ":8080"), "api listen address")
		wsListenAddr    = fs.StringP("ws-listen-addr", "w", env("WS_LISTEN_ADDR", ":8888"), "websocket signaling listen address")
		logLevel        = fs.StringP("log-level", "l", env("LOG_LEVEL", "debug"), "log level")
		maxParticipants = fs.Int("max-participants", 8, "max participants per room")
		historySize     = fs.Int("history-size", 100, "chat messages kept per room")
		bcryptCost      = fs.Int("bcrypt-cost", 0, "room password bcrypt cost, 0 for default")
		frameRate       = fs.Float64("frame-rate", 50, "inbound frames per second per connection")
		frameBurst      = fs.Int("frame-burst", 100, "inbound frame burst per connection")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	svc := service.NewService(service.Config{
		RoomStore: store.NewMemStore(store.Config{
			MaxParticipants: *maxParticipants,
			HistorySize:     *historySize,
		}),
		Switch:     sw.NewSwitch(&logger),
		Logger:     &logger,
		BcryptCost: *bcryptCost,
	})
	httpSrv := httpServer.NewServer(httpServer.Config{
		Logger:      &logger,
		RoomService: svc,
		ListenAddr:  *apiListenAddr,
	})
	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:           &logger,
		SignalingService: svc,
		ListenAddr:       *wsListenAddr,
		FrameRate:        *frameRate,
		FrameBurst:       *frameBurst,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 2)
	)
	wg.Add(2)
	go httpSrv.Run(ctx, wg, errc)
	go wsSrv.Run(ctx, wg, errc)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}

func env(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}
