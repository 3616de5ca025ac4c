package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gabrieleiannetti/cyclone/internal/comm"
	"github.com/gabrieleiannetti/cyclone/internal/config"
	"github.com/gabrieleiannetti/cyclone/internal/controller"
	"github.com/gabrieleiannetti/cyclone/internal/generator"
	"github.com/gabrieleiannetti/cyclone/internal/logger"
	"github.com/gabrieleiannetti/cyclone/internal/pidfile"
	"github.com/gabrieleiannetti/cyclone/internal/queue"
	"github.com/gabrieleiannetti/cyclone/internal/task"
	"github.com/gabrieleiannetti/cyclone/internal/worker"
)

var version = "dev"

var (
	configFile  string
	debug       bool
	decoderName string
)

func main() {
	root := &cobra.Command{
		Use:     "cyclone-controller",
		Short:   "Worker-pool controller for the cyclone task-distribution system",
		Version: version,
		RunE:    run,
	}
	root.Flags().StringVarP(&configFile, "config-file", "f", "/etc/cyclone/controller.conf", "configuration file path")
	root.Flags().BoolVarP(&debug, "debug", "D", false, "enable debug logging")
	root.Flags().StringVar(&decoderName, "task-decoder", "fsprobe", "registered task decoder matching the master's task_generator.class")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadController(configFile)
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

	decode, err := decoderFor(decoderName)
	if err != nil {
		log.Error().Err(err).Msg("unknown task decoder")
		os.Exit(1)
	}

	hostname, _ := os.Hostname()
	id := fmt.Sprintf("%s-%d", hostname, os.Getpid())

	taskQueue := queue.New[*task.Task](0)
	resultQueue := queue.New[string](0)

	pool := worker.NewPool(id, cfg.Processing.WorkerCount, taskQueue, resultQueue)

	conn := comm.NewController(cfg.Comm.Target, cfg.Comm.Port)
	c := controller.New(id, *cfg, conn, taskQueue, resultQueue, decode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool.Start(ctx)

	log.Info().Str("id", id).Str("master", fmt.Sprintf("%s:%d", cfg.Comm.Target, cfg.Comm.Port)).
		Int("worker_count", cfg.Processing.WorkerCount).Msg("cyclone-controller starting")

	if err := c.Run(ctx); err != nil {
		log.Error().Err(err).Msg("pull-loop terminated with error")
		pool.Stop(30 * time.Second)
		conn.Close()
		os.Exit(1)
	}

	pool.Stop(30 * time.Second)
	conn.Close()
	log.Info().Msg("cyclone-controller stopped cleanly")
	return nil
}

// decoderFor resolves the task.Decoder a controller should use to
// reconstruct TASK_ASSIGN bodies, matching whichever generator the target
// master is configured to run.
func decoderFor(name string) (task.Decoder, error) {
	switch name {
	case "fsprobe":
		return generator.DecodeProbeTask, nil
	default:
		return nil, fmt.Errorf("no task decoder registered for %q", name)
	}
}
