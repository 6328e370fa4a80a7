// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// tandem-server serves the real-time collaboration protocol over
// WebSocket.
//
// Configuration comes from the file named by --config, or by
// TANDEM_CONFIG when the flag is absent. When the bridge is enabled,
// envelopes are mirrored over Redis to every other tandem-server
// sharing the channel prefix; an unreachable Redis leaves this process
// serving its own clients alone.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/tandem/bridge"
	"github.com/bureau-foundation/tandem/engine"
	"github.com/bureau-foundation/tandem/lib/authtoken"
	"github.com/bureau-foundation/tandem/lib/clock"
	"github.com/bureau-foundation/tandem/lib/config"
	"github.com/bureau-foundation/tandem/lib/ratelimit"
	"github.com/bureau-foundation/tandem/lib/version"
	"github.com/bureau-foundation/tandem/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		logLevel   string
		listen     string
	)

	flagSet := pflag.NewFlagSet("tandem-server", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to tandem.yaml (default: $TANDEM_CONFIG)")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flagSet.StringVar(&listen, "listen", "", "override server.listen_address")
	flagSet.BoolP("help", "h", false, "show help")
	showVersion := flagSet.Bool("version", false, "print version and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if *showVersion {
		fmt.Printf("tandem-server %s\n", version.Info())
		return nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Server.ListenAddress = listen
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	publicKey, err := authtoken.LoadPublicKey(cfg.Auth.PublicKeyFile)
	if err != nil {
		return err
	}
	verifier := authtoken.NewVerifier(publicKey, clock.Real())
	verifier.Audience = cfg.Auth.Audience

	relay, err := newRelay(ctx, cfg.Bridge, logger)
	if err != nil {
		return err
	}

	router, err := engine.New(engine.Config{
		Logger:        logger,
		Authenticator: verifier,
		Relay:         relay,
		RateLimit: ratelimit.Config{
			TokensPerSecond: cfg.RateLimit.TokensPerSecond,
			Burst:           cfg.RateLimit.Burst,
			BlockFor:        cfg.RateLimit.BlockFor,
		},
		PingInterval:     cfg.Liveness.PingInterval,
		StaleAfter:       cfg.Liveness.StaleAfter,
		MaxRoomMembers:   cfg.Rooms.MaxMembers,
		ActivityLogSize:  cfg.Rooms.ActivityLogSize,
		MailboxSize:      cfg.Mailbox.MaxPerUser,
		ChatHistory:      cfg.Session.ChatHistory,
		MaxParticipants:  cfg.Session.MaxParticipants,
		AutosaveInterval: cfg.Session.AutosaveInterval,
	})
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.Path, transport.NewHandler(router, transport.HandlerConfig{
		Logger:            logger,
		MaxMessageBytes:   cfg.Server.MaxMessageBytes,
		SendQueueDepth:    cfg.Server.SendQueueDepth,
		TrustForwardedFor: cfg.Server.TrustForwardedFor,
	}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":      "ok",
			"version":     version.Version,
			"connections": router.Connections(),
			"bridge":      relay.Enabled(),
		})
	})

	listener, err := transport.NewTCPListener(cfg.Server.ListenAddress)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Server.ListenAddress, err)
	}

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		router.Run(ctx)
	}()

	logger.Info("tandem-server started",
		"version", version.Info(),
		"environment", cfg.Environment,
		"address", listener.Address(),
		"path", cfg.Server.Path,
		"bridge", relay.Enabled(),
	)

	serveErr := listener.Serve(ctx, mux)
	stop()
	<-engineDone
	logger.Info("tandem-server stopped")
	return serveErr
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.Load()
}

// newRelay connects the scale-out bridge when it is enabled. A bridge
// that cannot reach Redis comes back disabled, not as an error.
func newRelay(ctx context.Context, cfg config.BridgeConfig, logger *slog.Logger) (*bridge.Relay, error) {
	compression, err := bridge.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	relayConfig := bridge.RelayConfig{
		ChannelPrefix:        cfg.ChannelPrefix,
		Compression:          compression,
		CompressionThreshold: cfg.CompressionThreshold,
		QueueDepth:           cfg.QueueDepth,
		Logger:               logger,
	}
	if !cfg.Enabled {
		return bridge.NewRelay(nil, relayConfig), nil
	}
	backbone := bridge.Connect(ctx, bridge.RedisOptions{
		Address:        cfg.RedisAddress,
		Password:       cfg.RedisPassword,
		DB:             cfg.RedisDB,
		ConnectTimeout: cfg.ConnectTimeout,
	}, logger)
	return bridge.NewRelay(backbone, relayConfig), nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `tandem-server - real-time collaboration server

Usage:
  tandem-server [flags]

Examples:
  # Serve with an explicit config file
  tandem-server --config /etc/tandem/tandem.yaml

  # Debug logging on a different port
  TANDEM_CONFIG=tandem.yaml tandem-server --log-level debug --listen :9090

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
