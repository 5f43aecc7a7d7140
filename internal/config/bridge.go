package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults mirror the ports the runtime and DevTools expect out of the box.
const (
	DefaultRuntimeAddr     = ":9421"
	DefaultFrontendAddr    = ":62000"
	DefaultStatusAddr      = "127.0.0.1:9430"
	DefaultMaxMessageBytes = 64 << 20
	DefaultShutdownTimeout = 10 * time.Second
)

// BridgeConfig holds configuration for the debug bridge.
type BridgeConfig struct {
	RuntimeAddr      string        `yaml:"runtime_addr"`
	FrontendAddr     string        `yaml:"frontend_addr"`
	StatusAddr       string        `yaml:"status_addr"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
	MaxMessageBytes  int64         `yaml:"max_message_bytes"` // <= 0 disables the limit
	SessionContextID string        `yaml:"session_context_id"`
	TraceFrames      bool          `yaml:"trace_frames"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
	LogLevel         string        `yaml:"log_level"`
	RedisAddr        string        `yaml:"redis_addr"`
	ConfigFile       string        `yaml:"-"`
}

// SetDefaults initializes c with built-in defaults.
func (c *BridgeConfig) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.RuntimeAddr == "" {
		c.RuntimeAddr = DefaultRuntimeAddr
	}
	if c.FrontendAddr == "" {
		c.FrontendAddr = DefaultFrontendAddr
	}
	if c.StatusAddr == "" {
		c.StatusAddr = DefaultStatusAddr
	}
	if c.AllowedOrigins == nil {
		c.AllowedOrigins = []string{"*"}
	}
	if c.MaxMessageBytes == 0 {
		c.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.ConfigFile == "" {
		c.ConfigFile = DefaultConfigPath("bridge.yaml")
	}
}

// ApplyEnv overlays environment variables onto the current config values.
func (c *BridgeConfig) ApplyEnv() {
	if v := GetEnv("CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	if v := GetEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := GetEnv("RUNTIME_ADDR", ""); v != "" {
		c.RuntimeAddr = normalizeAddr(v)
	}
	if v := GetEnv("FRONTEND_ADDR", ""); v != "" {
		c.FrontendAddr = normalizeAddr(v)
	}
	if v, ok := os.LookupEnv("STATUS_ADDR"); ok {
		c.StatusAddr = normalizeAddr(v)
	}
	if v := GetEnv("ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitComma(v)
	}
	if v := GetEnv("MAX_MESSAGE_BYTES", ""); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MaxMessageBytes = n
		}
	}
	if v := GetEnv("SESSION_CONTEXT_ID", ""); v != "" {
		c.SessionContextID = v
	}
	if v := GetEnv("TRACE_FRAMES", ""); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.TraceFrames = b
		}
	}
	if v := GetEnv("SHUTDOWN_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ShutdownTimeout = d
		}
	}
	if v := GetEnv("REDIS_ADDR", ""); v != "" {
		c.RedisAddr = v
	}
}

// BindFlagsFromCurrent binds command line flags using the current config values as defaults.
func (c *BridgeConfig) BindFlagsFromCurrent(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "bridge config file path")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	fs.Func("runtime-addr", "listen address or port for runtime connections (default "+c.RuntimeAddr+")", func(v string) error {
		c.RuntimeAddr = normalizeAddr(v)
		return nil
	})
	fs.Func("frontend-addr", "listen address or port for DevTools connections (default "+c.FrontendAddr+")", func(v string) error {
		c.FrontendAddr = normalizeAddr(v)
		return nil
	})
	fs.Func("status-addr", "listen address for /healthz, /api/state and /metrics; empty disables (default "+c.StatusAddr+")", func(v string) error {
		c.StatusAddr = normalizeAddr(v)
		return nil
	})
	fs.Func("allowed-origins", "comma separated list of allowed WebSocket/CORS origin patterns", func(v string) error {
		c.AllowedOrigins = splitComma(v)
		return nil
	})
	fs.Int64Var(&c.MaxMessageBytes, "max-message-bytes", c.MaxMessageBytes, "maximum size of a single inbound WebSocket message; 0 or less disables the limit")
	fs.StringVar(&c.SessionContextID, "session-context-id", c.SessionContextID, "session context id stamped on outbound commands")
	fs.BoolVar(&c.TraceFrames, "trace-frames", c.TraceFrames, "log raw runtime frames as hex at trace level")
	fs.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", c.ShutdownTimeout, "maximum time to wait for listeners to close on shutdown")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "redis connection URL for publishing bridge state")
}

// LoadFile populates the config from a YAML file.
func (c *BridgeConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}

// normalizeAddr turns a bare port into a listen address.
func normalizeAddr(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.Contains(v, ":") {
		return v
	}
	return ":" + v
}

func splitComma(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
