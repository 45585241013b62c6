package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/namikmesic/chatstream/internal/client"
	"github.com/namikmesic/chatstream/internal/config"
	"github.com/namikmesic/chatstream/internal/jetstream"
	"github.com/namikmesic/chatstream/internal/processor"
	"github.com/namikmesic/chatstream/internal/storage"
	"github.com/namikmesic/chatstream/internal/stream"
	"github.com/namikmesic/chatstream/internal/transcript"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := transcript.NewSession(cfg.ModelID, cfg.SystemPrompt)
	if cfg.SessionID != "" {
		id, err := uuid.Parse(cfg.SessionID)
		if err != nil {
			log.Fatal().Err(err).Str("session_id", cfg.SessionID).Msg("invalid session id")
		}
		session.ID = id
	}

	natsServer, err := jetstream.NewServer(cfg.NATSStoreDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start embedded NATS")
	}

	nc, err := natsServer.Connect()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to embedded NATS")
	}

	js, err := nc.JetStream()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to get JetStream context")
	}
	if err := jetstream.EnsureStream(js); err != nil {
		log.Fatal().Err(err).Msg("failed to create JetStream stream")
	}

	term := newTerminalSink(os.Stdout, os.Stderr)
	opts := []transcript.Option{
		transcript.WithSink(transcript.MultiSink(jetstream.NewPublisher(js), term)),
		transcript.WithDecoderOptions(stream.WithParseErrorHandler(term.parseError)),
	}

	var writer *storage.BatchWriter
	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	consumerDone := make(chan struct{})

	if cfg.PersistenceEnabled() {
		pool, err := storage.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()

		if err := storage.RunMigrations(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}

		writer = storage.NewBatchWriter(pool, cfg.WriterBufferSize, cfg.WriterBatchSize, cfg.WriterFlushMs)
		proc := processor.New(writer)
		go func() {
			defer close(consumerDone)
			if err := proc.StartConsumer(consumerCtx, js); err != nil {
				log.Error().Err(err).Msg("transcript consumer stopped")
			}
		}()

		opts = append(opts, transcript.WithHistory(storage.NewRepository(pool)))
	} else {
		close(consumerDone)
	}

	acc := transcript.New(session, client.New(cfg), opts...)
	if err := acc.Restore(ctx); err != nil {
		log.Error().Err(err).Msg("failed to restore transcript")
	} else if n := len(acc.Snapshot().Messages); n > 0 {
		log.Info().Int("messages", n).Msg("transcript restored")
	}

	log.Info().
		Str("session_id", session.ID.String()).
		Str("model", cfg.ModelID).
		Str("endpoint", cfg.EndpointURL).
		Bool("persistence", cfg.PersistenceEnabled()).
		Msg("chatstream started")

	runREPL(ctx, cfg, acc, os.Stdin)

	log.Info().Msg("shutting down...")
	consumerCancel()
	<-consumerDone
	if writer != nil {
		writer.Shutdown()
	}
	nc.Drain()
	natsServer.Shutdown()
	log.Info().Msg("shutdown complete")
}

func runREPL(ctx context.Context, cfg *config.Config, acc *transcript.Accumulator, in io.Reader) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			switch strings.TrimSpace(line) {
			case "/quit", "/exit":
				return
			case "/reset", "/new":
				if err := acc.Reset(); err != nil {
					log.Warn().Err(err).Msg("reset rejected")
				}
				continue
			}

			turnCtx, cancel := ctx, context.CancelFunc(func() {})
			if cfg.TurnTimeout > 0 {
				turnCtx, cancel = context.WithTimeout(ctx, cfg.TurnTimeout)
			}
			err := acc.Submit(turnCtx, line)
			cancel()

			var apiErr *client.APIError
			switch {
			case err == nil, errors.Is(err, transcript.ErrEmptySubmission):
			case errors.As(err, &apiErr):
				log.Error().Int("status", apiErr.StatusCode).Str("body", apiErr.Body).Msg("chat request rejected")
			default:
				log.Error().Err(err).Msg("turn failed")
			}
		}
	}
}
