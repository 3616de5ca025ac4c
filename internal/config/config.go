// Package config loads the master and controller configuration files.
//
// Both config shapes mirror the INI sections from the external-interface
// contract: [control], [comm], [log], plus [task_generator] for the master
// and [processing] for the controller. Keys are read through viper so a
// deployment can override any of them with a CYCLONE_-prefixed environment
// variable.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// MasterControl holds [control] for the master.
type MasterControl struct {
	PIDFile                string `mapstructure:"pid_file"`
	ControllerTimeout      int    `mapstructure:"controller_timeout"`
	ControllerWaitDuration int    `mapstructure:"controller_wait_duration"`
	TaskResendTimeout      int    `mapstructure:"task_resend_timeout"`
}

// Comm holds [comm], shared shape for master and controller.
type Comm struct {
	Target      string `mapstructure:"target"`
	Port        int    `mapstructure:"port"`
	PollTimeout int    `mapstructure:"poll_timeout"`
}

// Log holds [log].
type Log struct {
	Filename string `mapstructure:"filename"`
	Level    string `mapstructure:"level"`
}

// TaskGenerator holds [task_generator] — the (module, class, config_file)
// triple translated into a compile-time registry name plus its own config.
type TaskGenerator struct {
	Module     string `mapstructure:"module"`
	Class      string `mapstructure:"class"`
	ConfigFile string `mapstructure:"config_file"`
}

// ResultSink holds [result_sink] — an optional, off-by-default mirror of
// finished tids to Redis for out-of-band consumption. The dispatcher's own
// correctness never depends on it.
type ResultSink struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	ListKey  string `mapstructure:"list_key"`
}

// MasterConfig is the full configuration for cyclone-master.
type MasterConfig struct {
	Control       MasterControl `mapstructure:"control"`
	Comm          Comm          `mapstructure:"comm"`
	Log           Log           `mapstructure:"log"`
	TaskGenerator TaskGenerator `mapstructure:"task_generator"`
	ResultSink    ResultSink    `mapstructure:"result_sink"`
}

// ControllerControl holds [control] for the controller.
type ControllerControl struct {
	PIDFile                  string `mapstructure:"pid_file"`
	RequestRetryWaitDuration int    `mapstructure:"request_retry_wait_duration"`
	MaxNumRequestRetries     int    `mapstructure:"max_num_request_retries"`
}

// Processing holds [processing].
type Processing struct {
	WorkerCount int `mapstructure:"worker_count"`
}

// ControllerConfig is the full configuration for cyclone-controller.
type ControllerConfig struct {
	Control    ControllerControl `mapstructure:"control"`
	Comm       Comm              `mapstructure:"comm"`
	Log        Log               `mapstructure:"log"`
	Processing Processing        `mapstructure:"processing"`
}

func newViper(configFile string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("ini")
	v.SetEnvPrefix("CYCLONE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setMasterDefaults(v *viper.Viper) {
	v.SetDefault("control.pid_file", "/var/run/cyclone-master.pid")
	v.SetDefault("control.controller_timeout", 30)
	v.SetDefault("control.controller_wait_duration", 5)
	v.SetDefault("control.task_resend_timeout", 300)

	v.SetDefault("comm.target", "0.0.0.0")
	v.SetDefault("comm.port", 5555)
	v.SetDefault("comm.poll_timeout", 1)

	v.SetDefault("log.filename", "")
	v.SetDefault("log.level", "info")

	v.SetDefault("task_generator.module", "")
	v.SetDefault("task_generator.class", "")
	v.SetDefault("task_generator.config_file", "")

	v.SetDefault("result_sink.enabled", false)
	v.SetDefault("result_sink.addr", "127.0.0.1:6379")
	v.SetDefault("result_sink.password", "")
	v.SetDefault("result_sink.db", 0)
	v.SetDefault("result_sink.list_key", "cyclone:finished")
}

func setControllerDefaults(v *viper.Viper) {
	v.SetDefault("control.pid_file", "/var/run/cyclone-controller.pid")
	v.SetDefault("control.request_retry_wait_duration", 5)
	v.SetDefault("control.max_num_request_retries", 0)

	v.SetDefault("comm.target", "127.0.0.1")
	v.SetDefault("comm.port", 5555)
	v.SetDefault("comm.poll_timeout", 1)

	v.SetDefault("log.filename", "")
	v.SetDefault("log.level", "info")

	v.SetDefault("processing.worker_count", 4)
}

// LoadMaster reads and validates the master configuration file.
func LoadMaster(configFile string) (*MasterConfig, error) {
	v := newViper(configFile)
	setMasterDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", configFile, err)
	}

	var cfg MasterConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if cfg.Control.PIDFile == "" {
		return nil, fmt.Errorf("config: control.pid_file is required")
	}
	if cfg.Comm.Port <= 0 {
		return nil, fmt.Errorf("config: comm.port must be positive")
	}
	if cfg.ResultSink.Enabled && cfg.ResultSink.Addr == "" {
		return nil, fmt.Errorf("config: result_sink.addr is required when result_sink.enabled is true")
	}

	return &cfg, nil
}

// LoadController reads and validates the controller configuration file.
func LoadController(configFile string) (*ControllerConfig, error) {
	v := newViper(configFile)
	setControllerDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", configFile, err)
	}

	var cfg ControllerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if cfg.Processing.WorkerCount < 1 || cfg.Processing.WorkerCount > 1000 {
		return nil, fmt.Errorf("config: processing.worker_count must be between 1 and 1000, got %d", cfg.Processing.WorkerCount)
	}
	if cfg.Comm.Port <= 0 {
		return nil, fmt.Errorf("config: comm.port must be positive")
	}

	return &cfg, nil
}

