package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cyclone.conf")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadMaster_Defaults(t *testing.T) {
	path := writeConfig(t, "[control]\n")

	cfg, err := LoadMaster(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/run/cyclone-master.pid", cfg.Control.PIDFile)
	assert.Equal(t, 30, cfg.Control.ControllerTimeout)
	assert.Equal(t, 5, cfg.Control.ControllerWaitDuration)
	assert.Equal(t, 300, cfg.Control.TaskResendTimeout)

	assert.Equal(t, "0.0.0.0", cfg.Comm.Target)
	assert.Equal(t, 5555, cfg.Comm.Port)
	assert.Equal(t, 1, cfg.Comm.PollTimeout)

	assert.Equal(t, "", cfg.Log.Filename)
	assert.Equal(t, "info", cfg.Log.Level)

	assert.Equal(t, "", cfg.TaskGenerator.Class)

	assert.False(t, cfg.ResultSink.Enabled)
	assert.Equal(t, "127.0.0.1:6379", cfg.ResultSink.Addr)
	assert.Equal(t, "cyclone:finished", cfg.ResultSink.ListKey)
}

func TestLoadMaster_WithConfigFile(t *testing.T) {
	path := writeConfig(t, `
[control]
pid_file = /tmp/cyclone-master.pid
controller_timeout = 60
controller_wait_duration = 2
task_resend_timeout = 120

[comm]
target = 10.0.0.5
port = 7000
poll_timeout = 2

[task_generator]
class = fsprobe
config_file = /etc/cyclone/fsprobe.conf

[result_sink]
enabled = true
addr = redis.internal:6379
list_key = cyclone:done
`)

	cfg, err := LoadMaster(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/cyclone-master.pid", cfg.Control.PIDFile)
	assert.Equal(t, 60, cfg.Control.ControllerTimeout)
	assert.Equal(t, 2, cfg.Control.ControllerWaitDuration)
	assert.Equal(t, 120, cfg.Control.TaskResendTimeout)

	assert.Equal(t, "10.0.0.5", cfg.Comm.Target)
	assert.Equal(t, 7000, cfg.Comm.Port)
	assert.Equal(t, 2, cfg.Comm.PollTimeout)

	assert.Equal(t, "fsprobe", cfg.TaskGenerator.Class)
	assert.Equal(t, "/etc/cyclone/fsprobe.conf", cfg.TaskGenerator.ConfigFile)

	assert.True(t, cfg.ResultSink.Enabled)
	assert.Equal(t, "redis.internal:6379", cfg.ResultSink.Addr)
	assert.Equal(t, "cyclone:done", cfg.ResultSink.ListKey)
}

func TestLoadMaster_MissingFile(t *testing.T) {
	_, err := LoadMaster(filepath.Join(t.TempDir(), "missing.conf"))
	assert.Error(t, err)
}

func TestLoadMaster_RejectsNonPositivePort(t *testing.T) {
	path := writeConfig(t, "[comm]\nport = 0\n")

	_, err := LoadMaster(path)
	assert.Error(t, err)
}

func TestLoadMaster_RejectsEmptyPIDFile(t *testing.T) {
	path := writeConfig(t, "[control]\npid_file =\n")

	_, err := LoadMaster(path)
	assert.Error(t, err)
}

func TestLoadMaster_RejectsResultSinkEnabledWithoutAddr(t *testing.T) {
	path := writeConfig(t, "[result_sink]\nenabled = true\naddr =\n")

	_, err := LoadMaster(path)
	assert.Error(t, err)
}

func TestLoadController_Defaults(t *testing.T) {
	path := writeConfig(t, "[control]\n")

	cfg, err := LoadController(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/run/cyclone-controller.pid", cfg.Control.PIDFile)
	assert.Equal(t, 5, cfg.Control.RequestRetryWaitDuration)
	assert.Equal(t, 0, cfg.Control.MaxNumRequestRetries)

	assert.Equal(t, "127.0.0.1", cfg.Comm.Target)
	assert.Equal(t, 5555, cfg.Comm.Port)
	assert.Equal(t, 1, cfg.Comm.PollTimeout)

	assert.Equal(t, 4, cfg.Processing.WorkerCount)
}

func TestLoadController_WithConfigFile(t *testing.T) {
	path := writeConfig(t, `
[control]
pid_file = /tmp/cyclone-controller.pid
request_retry_wait_duration = 10
max_num_request_retries = 3

[comm]
target = master.internal
port = 7000

[processing]
worker_count = 16
`)

	cfg, err := LoadController(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/cyclone-controller.pid", cfg.Control.PIDFile)
	assert.Equal(t, 10, cfg.Control.RequestRetryWaitDuration)
	assert.Equal(t, 3, cfg.Control.MaxNumRequestRetries)
	assert.Equal(t, "master.internal", cfg.Comm.Target)
	assert.Equal(t, 7000, cfg.Comm.Port)
	assert.Equal(t, 16, cfg.Processing.WorkerCount)
}

func TestLoadController_RejectsOutOfRangeWorkerCount(t *testing.T) {
	path := writeConfig(t, "[processing]\nworker_count = 0\n")

	_, err := LoadController(path)
	assert.Error(t, err)

	path = writeConfig(t, "[processing]\nworker_count = 5000\n")

	_, err = LoadController(path)
	assert.Error(t, err)
}

func TestLoadController_MissingFile(t *testing.T) {
	_, err := LoadController(filepath.Join(t.TempDir(), "missing.conf"))
	assert.Error(t, err)
}
