// Package config resolves server settings from two sources: the
// protocol-mandated CLI flags (--address, --port) and everything else,
// which is environment-driven so operators can tune it without
// touching the command line the spec fixes.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// CLI holds the flags spec.md §6 mandates. There are no subcommands
// and no other flags; anything beyond this is environment-driven.
type CLI struct {
	Address string
	Port    int
}

// ParseCLI parses os.Args[1:] equivalent via the flag package, mirroring
// the way cmd/thumbnails parses its own flags.
func ParseCLI(args []string) (CLI, error) {
	fs := flag.NewFlagSet("speedd", flag.ContinueOnError)
	address := fs.String("address", "0.0.0.0", "address to listen on")
	port := fs.Int("port", 8080, "TCP port to listen on")
	if err := fs.Parse(args); err != nil {
		return CLI{}, err
	}
	return CLI{Address: *address, Port: *port}, nil
}

// Env holds settings the spec leaves unspecified: log level, the
// optional Prometheus listener, and internal tuning knobs. These are
// never settable via CLI flags, so there is exactly one way to set
// --address/--port and exactly one way to set everything else.
type Env struct {
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	MetricsAddr    string `envconfig:"METRICS_ADDR" default:""`
	DispatchBuffer int    `envconfig:"DISPATCH_BUFFER" default:"0"`
}

// LoadEnv loads an optional .env file (if present, ignored if absent)
// and then reads SPEEDD_-prefixed environment variables into Env.
func LoadEnv() (Env, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Env{}, fmt.Errorf("config: loading .env: %w", err)
	}

	var env Env
	if err := envconfig.Process("speedd", &env); err != nil {
		return Env{}, fmt.Errorf("config: reading environment: %w", err)
	}
	return env, nil
}
