// Package config holds daemon startup options and a live-tunable value
// store for anything that can change after the daemon is already running.
package config

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// Options is the daemon's start-time bitmask, mirroring the enumeration a
// host process passes to Start.
type Options uint8

const (
	// UseDebug enables diagnostic logging to stderr.
	UseDebug Options = 1 << iota
	// UseSSL enables the secure transport; requires CertFile/KeyFile.
	UseSSL
	// UseThreadPerConnection runs each connection's blocking loop on a
	// goroutine from a fixed worker pool (runtime.NumCPU() workers, one
	// connection at a time each) instead of a single readiness-driven loop;
	// connections beyond the worker count wait in the pool's queues.
	UseThreadPerConnection
	// UseInternalSelect has the daemon own its accept/poll loop on a
	// dedicated goroutine, rather than exposing GetFDSet to a host loop.
	UseInternalSelect
	// UseIPv4 listens on an IPv4 address.
	UseIPv4
	// UseIPv6 listens on an IPv6 address.
	UseIPv6
)

// Has reports whether every bit in want is set in o.
func (o Options) Has(want Options) bool {
	return o&want == want
}

// Config is the daemon's start-time configuration.
type Config struct {
	Options Options

	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	CertFile string
	KeyFile  string

	// ArenaSize is the per-connection MemoryPool size in bytes.
	ArenaSize int

	Env string
}

// New loads configuration from flags, then applies PORT/ENV overrides from
// the environment if present.
func New() *Config {
	cfg := &Config{}

	var debug, secure, threadPerConn, internalSelect, ipv4, ipv6 bool
	var readTimeout, writeTimeout, idleTimeout int

	flag.IntVar(&cfg.Port, "port", 8080, "listen port")
	flag.IntVar(&readTimeout, "read-timeout", 10, "read timeout (seconds)")
	flag.IntVar(&writeTimeout, "write-timeout", 30, "write timeout (seconds)")
	flag.IntVar(&idleTimeout, "idle-timeout", 60, "connection idle timeout (seconds); 0 disables")
	flag.IntVar(&cfg.ArenaSize, "arena-size", 64*1024, "per-connection memory pool size (bytes)")
	flag.BoolVar(&debug, "debug", false, "enable diagnostic logging")
	flag.BoolVar(&secure, "secure", false, "enable TLS transport")
	flag.BoolVar(&threadPerConn, "thread-per-connection", false, "one goroutine per connection")
	flag.BoolVar(&internalSelect, "internal-select", false, "daemon owns its own accept/poll loop")
	flag.BoolVar(&ipv4, "ipv4", true, "listen on IPv4")
	flag.BoolVar(&ipv6, "ipv6", false, "listen on IPv6")
	flag.StringVar(&cfg.CertFile, "cert", "", "TLS certificate file")
	flag.StringVar(&cfg.KeyFile, "key", "", "TLS key file")
	flag.StringVar(&cfg.Env, "env", "development", "environment (development/production)")

	flag.Parse()

	cfg.ReadTimeout = time.Duration(readTimeout) * time.Second
	cfg.WriteTimeout = time.Duration(writeTimeout) * time.Second
	cfg.IdleTimeout = time.Duration(idleTimeout) * time.Second

	if debug {
		cfg.Options |= UseDebug
	}
	if secure {
		cfg.Options |= UseSSL
	}
	if threadPerConn {
		cfg.Options |= UseThreadPerConnection
	}
	if internalSelect {
		cfg.Options |= UseInternalSelect
	}
	if ipv4 {
		cfg.Options |= UseIPv4
	}
	if ipv6 {
		cfg.Options |= UseIPv6
	}

	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	return cfg
}
