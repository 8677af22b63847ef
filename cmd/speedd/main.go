// speedd is a TCP server implementing the speed-daemon protocol:
// cameras report license plate observations, the server computes
// average speed between pairs of observations, and dispatchers receive
// tickets for roads they cover.
//
// Usage:
//
//	speedd [--address <addr>] [--port <port>]
//
// Defaults: address="0.0.0.0", port=8080.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"speedd/internal/camera"
	"speedd/internal/config"
	"speedd/internal/engine"
	"speedd/internal/logging"
	"speedd/internal/metrics"
	"speedd/internal/session"
)

func main() {
	cli, err := config.ParseCLI(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	env, err := config.LoadEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logging.New(env.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, log, cli, env); err != nil {
		log.WithError(err).Fatal("speedd: fatal error")
	}
}

func run(ctx context.Context, log *logrus.Logger, cli config.CLI, env config.Env) error {
	mx := metrics.New()
	cams := camera.New()
	eng := engine.New(log, mx, env.DispatchBuffer)
	go eng.Run(ctx)

	if env.MetricsAddr != "" {
		go serveMetrics(ctx, log, env.MetricsAddr, mx)
	}

	addr := fmt.Sprintf("%s:%d", cli.Address, cli.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("speedd: listen on %s: %w", addr, err)
	}
	defer ln.Close()
	log.WithField("addr", addr).Info("speedd: listening")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("speedd: accept: %w", err)
			}
		}
		go session.New(nc, log, eng, cams, mx).Run(ctx)
	}
}

func serveMetrics(ctx context.Context, log *logrus.Logger, addr string, mx *metrics.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", mx.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	log.WithField("addr", addr).Info("speedd: metrics listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Warn("speedd: metrics server stopped")
	}
}
