package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/coachlink/internal/api/ws"
	"github.com/gosuda/coachlink/internal/channel"
	"github.com/gosuda/coachlink/internal/config"
	"github.com/gosuda/coachlink/internal/domain"
	"github.com/gosuda/coachlink/internal/server"
	"github.com/gosuda/coachlink/internal/session"
	"github.com/gosuda/coachlink/internal/store/memory"
	"github.com/gosuda/coachlink/internal/store/postgres"
	redisstore "github.com/gosuda/coachlink/internal/store/redis"
	"github.com/gosuda/coachlink/internal/tools"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

// healthStore is what the tool handlers and the ingestion API need.
type healthStore interface {
	domain.HealthRepository
	domain.HealthRecorder
}

// eventBus carries session events to the local event stream.
type eventBus interface {
	session.Publisher
	ws.Subscriber
}

func run() error {
	// Logs go to stderr so they do not interleave with the transcript.
	setupLogging(os.Getenv("COACHLINK_LOG_LEVEL"), os.Getenv("COACHLINK_LOG_FORMAT"))

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var (
		healthData healthStore
		ready      []func(context.Context) error
	)

	// Health data: PostgreSQL when configured, memory otherwise.
	if cfg.Database.DSN != "" {
		if cfg.Database.MaxConns > math.MaxInt32 {
			return fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
		}
		store, storeErr := postgres.New(ctx, cfg.Database.DSN, int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
		if storeErr != nil {
			return storeErr
		}
		defer store.Close()

		if err := store.Migrate(ctx); err != nil {
			return err
		}
		healthData = store.Health()
		ready = append(ready, store.Ping)
		log.Info().Msg("health data: postgres")
	} else {
		healthData = memory.NewHealthStore()
		log.Info().Msg("health data: in memory")
	}

	// Session events: Redis when configured, in-process otherwise.
	var bus eventBus
	if cfg.Redis.Addr != "" {
		pubsub, psErr := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if psErr != nil {
			return psErr
		}
		defer pubsub.Close()

		bus = pubsub
		ready = append(ready, pubsub.Ping)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("session events: redis")
	} else {
		bus = ws.NewLocalBroker()
	}

	registry := tools.NewRegistry()
	tools.RegisterBuiltins(registry, tools.BuiltinDeps{
		Health: healthData,
		UserID: cfg.Socket.UserID,
	})

	target, err := session.Target(cfg.Socket.URL, cfg.Socket.UserID, cfg.Socket.ChatKind)
	if err != nil {
		return err
	}

	creds, credKind := credentialSource(cfg)
	log.Info().Str("target", target).Str("credential", credKind).Strs("tools", registry.Names()).Msg("opening session")

	out := newTranscript(os.Stdout)
	sess := session.New(session.Config{
		UserID:     cfg.Socket.UserID,
		ChatKind:   cfg.Socket.ChatKind,
		AckTimeout: cfg.Session.AckTimeout,
		Dispatcher: tools.NewDispatcher(registry, cfg.Session.ToolTimeout),
		Publisher:  bus,
		OnEvent:    out.handle,
	}, session.ChannelTransport(target, creds, channel.Options{
		Backoff: channel.Backoff{
			Base:   cfg.Socket.ReconnectBase,
			Max:    cfg.Socket.ReconnectMax,
			Jitter: cfg.Socket.ReconnectJitter,
		},
		DialTimeout: cfg.Socket.DialTimeout,
	}))

	if err := sess.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if closeErr := sess.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("session close")
		}
	}()

	var srv *server.Server
	if cfg.API.Addr != "" {
		srv = server.New(ctx, cfg.API, server.Deps{
			Session:      sess,
			Health:       healthData,
			Events:       bus,
			EventChannel: session.EventChannel(cfg.Socket.UserID, cfg.Socket.ChatKind),
			Ready:        readiness(ready),
		})

		go func() {
			log.Info().Str("addr", cfg.API.Addr).Msg("starting local API")
			if startErr := srv.Start(ctx); startErr != nil {
				log.Error().Err(startErr).Msg("server error")
				cancel()
			}
		}()
	}

	go readInput(ctx, os.Stdin, sess, out, cancel)

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			return shutdownErr
		}
	}

	log.Info().Msg("stopped")
	return nil
}

func setupLogging(level, format string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
}

func readiness(checks []func(context.Context) error) func(context.Context) error {
	if len(checks) == 0 {
		return nil
	}
	return func(ctx context.Context) error {
		var errs []error
		for _, check := range checks {
			if err := check(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

// sender is the part of the session the input loop drives.
type sender interface {
	SendUserMessage(ctx context.Context, content string) (domain.Message, error)
	Reconnect() error
}

// readInput sends each stdin line as a user message. "/reconnect" dials now
// and "/quit" stops the program. EOF stops reading but keeps the session.
func readInput(ctx context.Context, in io.Reader, s sender, out *transcript, quit context.CancelFunc) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		out.breakLine()

		switch line {
		case "":
			continue
		case "/quit":
			quit()
			return
		case "/reconnect":
			if err := s.Reconnect(); err != nil {
				out.errorf("reconnect: %v", err)
			}
			continue
		}

		if _, err := s.SendUserMessage(ctx, line); err != nil {
			if errors.Is(err, channel.ErrNotOpen) {
				out.errorf("not connected; message kept locally, not delivered")
				continue
			}
			out.errorf("send: %v", err)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Warn().Err(err).Msg("reading stdin")
	}
}
