package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/audit"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/broker"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/config"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/event"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/server"
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [-config file] [<port> <tpc|reactor>]\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "", "configuration file (.json, .yaml or .yml)")
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.Load(config.LoadOptions{Path: *configPath})
	if errors.Is(err, config.ErrConfigCreated) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error occured while reading config: %v\n", err)
		os.Exit(1)
	}
	if err := applyArgs(cfg, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		usage()
		os.Exit(2)
	}

	loggerCallback := logger.Init(logger.Options{Dir: cfg.Log.Dir, Debug: cfg.Log.Debug})
	logger.Debug("Application initializing...")

	cleaner := event.NewCleaner(10 * time.Second)
	cleaner.Add(loggerCallback)

	if err := run(cfg, cleaner); err != nil {
		logger.FatalF("Server stopped with error: %v", err)
		_ = cleaner.Clean(context.Background())
		os.Exit(1)
	}
	logger.Info("Cleanup finished, server offline")
	_ = cleaner.Clean(context.Background())
}

// applyArgs applies the positional <port> <mode> arguments.
func applyArgs(cfg *config.Config, args []string) error {
	switch len(args) {
	case 0:
		return nil
	case 2:
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid port %q", args[0])
		}
		cfg.Server.Port = port
		cfg.Server.Mode = strings.ToLower(args[1])
		return cfg.Validate()
	default:
		return errors.New("expected no positional arguments or <port> <tpc|reactor>")
	}
}

func run(cfg *config.Config, cleaner *event.Cleaner) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		opts    []broker.Option
		history server.HistoryReader
	)
	if cfg.Audit.Enabled {
		recorder, err := newRecorder(ctx, cfg)
		if err != nil {
			return err
		}
		cleaner.Add(recorder)
		opts = append(opts, broker.WithRecorder(recorder))
		history = recorder
	}

	b := broker.New(opts...)
	srv := server.New(server.OptionsFromConfig(cfg.Server), b)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	if cfg.HTTP.Enabled {
		g.Go(func() error {
			return server.ServeHTTP(gctx, cfg.HTTP.Addr, server.NewRouter(srv, history))
		})
	}

	err := g.Wait()
	if ctx.Err() != nil {
		logger.Info("Received interrupt signal, shutting down")
	}
	return err
}

func newRecorder(ctx context.Context, cfg *config.Config) (*audit.Recorder, error) {
	var store audit.Store
	switch cfg.Audit.Backend {
	case config.AuditBackendMongo:
		mongoStore, err := audit.ConnectMongoStore(ctx, cfg.AppName, cfg.Audit.Mongo)
		if err != nil {
			return nil, fmt.Errorf("error occured while initializing audit database: %w", err)
		}
		store = mongoStore
	default:
		store = audit.NewMemoryStore(0, cfg.Audit.HistorySize, cfg.Audit.HistoryTTLDuration())
	}
	logger.InfoF("Audit trail enabled (%s backend)", cfg.Audit.Backend)
	return audit.NewRecorder(store, cfg.Audit.QueueSize), nil
}
