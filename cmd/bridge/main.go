// Command bridge is the process entrypoint: it opens the config
// store, assembles the Service, starts the TCP listener, and blocks
// until SIGINT/SIGTERM. It does not start an HTTP server — the
// surrounding web layer is an external collaborator (spec.md §6).
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/recassity/mgba-bridge/internal/protocol"
	"github.com/recassity/mgba-bridge/internal/service"
)

func main() {
	configPath := flag.String("config", "bridge-config.db", "path to the bbolt config database")
	listenAddr := flag.String("listen", protocol.DefaultAddr, "TCP address the emulator connects to")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	svc, err := service.New(service.Options{
		ConfigDBPath: *configPath,
		ListenAddr:   *listenAddr,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("bridge: failed to construct service")
	}
	defer svc.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("bridge: failed to start listener")
	}
	log.Info().Str("addr", *listenAddr).Msg("bridge: listening for emulator connection")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("bridge: shutting down")
	case <-ctx.Done():
	}
}
