package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gabrieleiannetti/cyclone/internal/admin"
	adminMiddleware "github.com/gabrieleiannetti/cyclone/internal/admin/middleware"
	"github.com/gabrieleiannetti/cyclone/internal/comm"
	"github.com/gabrieleiannetti/cyclone/internal/config"
	"github.com/gabrieleiannetti/cyclone/internal/events"
	"github.com/gabrieleiannetti/cyclone/internal/generator"
	"github.com/gabrieleiannetti/cyclone/internal/logger"
	"github.com/gabrieleiannetti/cyclone/internal/master"
	"github.com/gabrieleiannetti/cyclone/internal/pidfile"
	"github.com/gabrieleiannetti/cyclone/internal/queue"
	"github.com/gabrieleiannetti/cyclone/internal/resultsink"
	"github.com/gabrieleiannetti/cyclone/internal/task"
)

var version = "dev"

var (
	configFile string
	debug      bool
)

func main() {
	root := &cobra.Command{
		Use:     "cyclone-master",
		Short:   "Central dispatch for the cyclone task-distribution system",
		Version: version,
		RunE:    run,
	}
	root.Flags().StringVarP(&configFile, "config-file", "f", "/etc/cyclone/master.conf", "configuration file path")
	root.Flags().BoolVarP(&debug, "debug", "D", false, "enable debug logging")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadMaster(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	level := cfg.Log.Level
	if debug {
		level = "debug"
	}
	logger.Init(level, cfg.Log.Filename == "")
	log := logger.Get()

	pf, err := pidfile.Acquire(cfg.Control.PIDFile)
	if err != nil {
		log.Error().Err(err).Msg("failed to acquire pid file")
		os.Exit(1)
	}
	defer pf.Release()

	factory, err := generator.Lookup(cfg.TaskGenerator.Class)
	if err != nil {
		log.Error().Err(err).Msg("unknown task_generator.class")
		os.Exit(1)
	}
	gen, err := factory(cfg.TaskGenerator.ConfigFile)
	if err != nil {
		log.Error().Err(err).Msg("failed to construct task generator")
		os.Exit(1)
	}

	taskQueue := queue.New[*task.Wire](0)
	resultQueue := queue.New[string](0)
	publisher := events.NewPublisher()

	commMaster := comm.NewMaster(cfg.Comm.Target, cfg.Comm.Port)

	m := master.New(*cfg, commMaster, taskQueue, resultQueue, publisher)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	genCtx, cancelGen := context.WithCancel(context.Background())
	defer cancelGen()
	runner := generator.Start(genCtx, gen, taskQueue, resultQueue)
	m.AttachGenerator(runner)

	master.WatchSignals(ctx, m)

	if cfg.ResultSink.Enabled {
		sink, err := resultsink.NewRedisResultSink(resultsink.Config(cfg.ResultSink), publisher)
		if err != nil {
			log.Error().Err(err).Msg("failed to start redis result sink")
			os.Exit(1)
		}
		defer sink.Close()
	}

	adminSrv := admin.New(m, publisher, admin.Config{
		Auth:         adminMiddleware.AuthConfig{Enabled: false},
		RateLimitRPS: 50,
	})
	adminAddr := fmt.Sprintf(":%d", cfg.Comm.Port+1000)
	go func() {
		if err := http.ListenAndServe(adminAddr, adminSrv); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("admin http server error")
		}
	}()

	go func() {
		if err := commMaster.Serve(context.Background()); err != nil {
			log.Error().Err(err).Msg("comm endpoint error")
		}
	}()

	log.Info().Str("addr", fmt.Sprintf("%s:%d", cfg.Comm.Target, cfg.Comm.Port)).Msg("cyclone-master dispatch loop starting")
	m.Run(ctx)

	code := m.Shutdown()
	os.Exit(code)
	return nil
}
