package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"procdexeh/mcpcore/internal/config"
	"procdexeh/mcpcore/internal/db"
	mcphttp "procdexeh/mcpcore/internal/http"
	"procdexeh/mcpcore/internal/jobs"
	"procdexeh/mcpcore/internal/mcp"
	"procdexeh/mcpcore/internal/tools"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML or TOML config file")
	stdio := flag.Bool("stdio", false, "serve newline-delimited JSON-RPC on stdin/stdout instead of HTTP")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *stdio, logger); err != nil {
		slog.Error("SERVER ERROR", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, stdio bool, logger *slog.Logger) error {
	registry := mcp.NewRegistry(logger)
	registry.SetDefaultTimeout(cfg.Tools.DefaultTimeout)

	app := &tools.AppContext{
		Environment: cfg.Server.Environment,
		Logger:      logger,
	}

	var queue *jobs.Queue
	if cfg.Jobs.Enabled {
		database, err := db.InitDB(cfg.Database.Path)
		if err != nil {
			slog.Error("DATABASE INIT ERROR", slog.Any("error", err))
			return err
		}
		defer database.Close()

		queue, err = jobs.New(jobs.Config{
			DB:           database,
			Executor:     registry,
			Logger:       logger.With("component", "jobs"),
			Workers:      cfg.Jobs.Workers,
			PollInterval: cfg.Jobs.PollInterval,
			AppContext:   app,
		})
		if err != nil {
			return err
		}
		app.Jobs = queue
	}

	if err := tools.RegisterBuiltins(registry, app); err != nil {
		return err
	}

	info := mcp.DefaultServerInfo(cfg.Server.Name, cfg.Server.Version)
	if cfg.Server.ProtocolVersion != "" {
		info.ProtocolVersion = cfg.Server.ProtocolVersion
	}
	mcpCfg := mcp.Config{
		Info:                info,
		Tools:               registry,
		Logger:              logger,
		AppContext:          app,
		StrictNotifications: cfg.Server.StrictNotifications,
	}
	if queue != nil {
		mcpCfg.Tasks = queue
	}
	server, err := mcp.NewServer(mcpCfg)
	if err != nil {
		return err
	}

	printBanner(cfg, stdio, registry.Count())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if queue != nil {
		g.Go(func() error { return queue.Run(ctx) })
	}

	if stdio {
		g.Go(func() error {
			// stdin closing ends the process
			defer cancel()
			return server.Serve(ctx, mcp.NewTransport(os.Stdin, os.Stdout))
		})
	} else {
		httpServer, err := mcphttp.New(mcphttp.Config{
			MCP:            server,
			Logger:         logger.With("component", "http"),
			MaxBodyBytes:   cfg.Server.MaxBodyBytes,
			OriginPatterns: cfg.Server.AllowedOrigins,
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return httpServer.Run(ctx, cfg.Server.HTTPAddr) })
	}

	return g.Wait()
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	// stdout belongs to the stdio transport, so logs always go to stderr
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func printBanner(cfg *config.Config, stdio bool, toolCount int) {
	if strings.EqualFold(cfg.Logging.Format, "json") {
		return
	}
	bold := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.Faint)

	bold.Fprintf(os.Stderr, "%s %s\n", cfg.Server.Name, cfg.Server.Version)
	if stdio {
		dim.Fprintln(os.Stderr, "  transport: stdio")
	} else {
		dim.Fprintf(os.Stderr, "  http:      http://%s/mcp\n", displayAddr(cfg.Server.HTTPAddr))
		dim.Fprintf(os.Stderr, "  websocket: ws://%s/mcp/ws\n", displayAddr(cfg.Server.HTTPAddr))
	}
	dim.Fprintf(os.Stderr, "  tools:     %d\n", toolCount)
	if cfg.Jobs.Enabled {
		dim.Fprintf(os.Stderr, "  jobs:      %d workers, db %s\n", cfg.Jobs.Workers, cfg.Database.Path)
	}
}

func displayAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}
