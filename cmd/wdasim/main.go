package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tansive/wdaclient/internal/agentsim"
	"github.com/tansive/wdaclient/internal/common/logtrace"
)

type cmdoptions struct {
	port         string
	cors         bool
	buildVersion string
	tlsCert      string
	tlsKey       string
	logLevel     string
	pretty       bool
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		log.Error().Err(err).Msg("simulator failed")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	opt := parseFlags()
	logtrace.InitLogger(logtrace.Config{Level: opt.logLevel, Pretty: opt.pretty})
	slog := log.With().Str("state", "init").Logger()

	agent := agentsim.New(agentsim.Options{
		BuildVersion: opt.buildVersion,
		HandleCORS:   opt.cors,
	})

	srv := &http.Server{
		Addr:              ":" + opt.port,
		Handler:           agent.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		if opt.tlsCert != "" {
			tlsConfig, err := createTLSConfig(opt.tlsCert, opt.tlsKey)
			if err != nil {
				serverErrors <- fmt.Errorf("creating TLS config: %w", err)
				return
			}
			listener, err := tls.Listen("tcp", srv.Addr, tlsConfig)
			if err != nil {
				serverErrors <- fmt.Errorf("creating TLS listener: %w", err)
				return
			}
			slog.Info().Str("port", opt.port).Msg("simulator started with TLS")
			serverErrors <- srv.Serve(listener)
			return
		}
		slog.Info().Str("port", opt.port).Bool("cors", opt.cors).Msg("simulator started")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		slog.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	}

	// Give outstanding requests 5 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error().Err(err).Msg("could not stop simulator gracefully")
		if err := srv.Close(); err != nil {
			slog.Error().Err(err).Msg("could not stop simulator")
		}
	}
	slog.Info().Msg("simulator stopped")
	return nil
}

// createTLSConfig loads a PEM certificate and key pair from disk.
func createTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	if keyFile == "" {
		return nil, fmt.Errorf("--tls-key is required with --tls-cert")
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("loading TLS certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

const DefaultPort = "8100"

func parseFlags() cmdoptions {
	var opt cmdoptions
	flag.StringVar(&opt.port, "port", DefaultPort, "Port to listen on")
	flag.BoolVar(&opt.cors, "cors", false, "Answer CORS preflights for browser based inspectors")
	flag.StringVar(&opt.buildVersion, "build-version", agentsim.DefaultBuildVersion, "Agent version reported by /status")
	flag.StringVar(&opt.tlsCert, "tls-cert", "", "PEM certificate file; serves HTTPS when set")
	flag.StringVar(&opt.tlsKey, "tls-key", "", "PEM key file")
	flag.StringVar(&opt.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.BoolVar(&opt.pretty, "pretty", false, "Human readable logs")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [options]\n\n", os.Args[0])
		fmt.Println("Options:")
		flag.PrintDefaults()
	}
	flag.Parse()
	return opt
}
