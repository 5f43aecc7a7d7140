package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gaspardpetit/devbridge/internal/bridge"
	"github.com/gaspardpetit/devbridge/internal/bridgestate"
	"github.com/gaspardpetit/devbridge/internal/config"
	"github.com/gaspardpetit/devbridge/internal/endpoint"
	"github.com/gaspardpetit/devbridge/internal/logx"
	"github.com/gaspardpetit/devbridge/internal/metrics"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("devbridge", flag.ContinueOnError)
	showVersion := fs.Bool("version", false, "print version and exit")

	var cfg config.BridgeConfig
	// Resolve config with precedence: defaults < file < env < args
	cfg.SetDefaults()
	cfg.ApplyEnv() // allows CONFIG_FILE from env
	if p := configFlag(args); p != "" {
		cfg.ConfigFile = p
	}
	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logx.Log.Error().Err(err).Str("path", cfg.ConfigFile).Msg("load config")
			return 1
		}
	}
	cfg.ApplyEnv()
	cfg.BindFlagsFromCurrent(fs)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(fs.Output(), "devbridge version=%s sha=%s date=%s\n\n", version, buildSHA, buildDate)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *showVersion {
		fmt.Printf("devbridge version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return 0
	}

	// cfg now reflects defaults <- file <- env <- args
	logx.Configure(cfg.LogLevel)
	metrics.SetBuildInfo(version, buildSHA, buildDate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := bridge.Options{Log: logx.Log}
	if cfg.RedisAddr != "" {
		rs, err := bridgestate.NewRedisStore(ctx, cfg.RedisAddr, "")
		if err != nil {
			logx.Log.Error().Err(err).Msg("connect redis")
			return 1
		}
		defer func() { _ = rs.Close() }()
		opts.Store = rs
		logx.Log.Info().Str("addr", bridgestate.RedactURL(cfg.RedisAddr)).Msg("using redis state store")
	}

	h := bridge.New(cfg, opts)
	if err := h.Start(); err != nil {
		var be *endpoint.BindError
		if errors.As(err, &be) {
			logx.Log.Error().Err(be.Err).Str("endpoint", string(be.Role)).Str("addr", be.Addr).Msg("cannot bind")
		} else {
			logx.Log.Error().Err(err).Msg("start bridge")
		}
		return 1
	}
	banner(h)

	if err := bridge.Run(ctx, h, cfg.ShutdownTimeout); err != nil {
		logx.Log.Error().Err(err).Msg("bridge stopped with errors")
	}
	logx.Log.Info().Msg("bye")
	return 0
}

// configFlag finds --config before flags are parsed so the file can be loaded
// underneath env and args.
func configFlag(args []string) string {
	for i, a := range args {
		switch {
		case (a == "--config" || a == "-config") && i+1 < len(args):
			return args[i+1]
		case strings.HasPrefix(a, "--config="):
			return strings.TrimPrefix(a, "--config=")
		case strings.HasPrefix(a, "-config="):
			return strings.TrimPrefix(a, "-config=")
		}
	}
	return ""
}

func banner(h *bridge.Handle) {
	ev := logx.Log.Info().
		Str("version", version).
		Str("runtime", h.RuntimeAddr().String()).
		Str("frontend", h.FrontendAddr().String())
	if a := h.StatusAddr(); a != nil {
		ev = ev.Str("status", a.String())
	}
	ev.Msg("devbridge started")
	logx.Log.Info().Msgf("open DevTools at %s", devtoolsURL(h.FrontendAddr()))
}

// devtoolsURL is the inspector URL pointing at the front-end listener.
func devtoolsURL(a net.Addr) string {
	port := "62000"
	if tcp, ok := a.(*net.TCPAddr); ok {
		port = fmt.Sprint(tcp.Port)
	}
	return "devtools://devtools/bundled/inspector.html?ws=127.0.0.1:" + port
}
