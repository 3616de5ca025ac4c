package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/gabrieleiannetti/cyclone/internal/logger"
	"github.com/gabrieleiannetti/cyclone/internal/queue"
	"github.com/gabrieleiannetti/cyclone/internal/task"
)

func init() {
	Register("fsprobe", NewFsProbe)
}

// FsProbeConfig is the [task_generator] config_file shape for "fsprobe".
// Grounded on original_source/task/alert_io_task.py and lfs/lfs_utils.py:
// periodically write/read a throwaway file per mount point, optionally
// pinned to a Lustre OST via `lfs setstripe`, and alert by e-mail if
// either phase runs past a threshold.
type FsProbeConfig struct {
	MountPoints []string      `json:"mount_points"`
	Interval    time.Duration `json:"interval"`
	MailThresh  time.Duration `json:"mail_threshold"`
	LFSBin      string        `json:"lfs_bin"`
	SMTPAddr    string        `json:"smtp_addr"`
	MailFrom    string        `json:"mail_from"`
	MailTo      []string      `json:"mail_to"`
}

// FsProbe is a Generator that probes each configured mount point on a
// fixed interval. A mount point that fails its pre-flight stat backs off
// with task.RetryPolicy instead of being re-attempted every tick.
type FsProbe struct {
	cfg      FsProbeConfig
	backoff  *task.RetryPolicy
	seq      int
	failures map[string]int
	nextTry  map[string]time.Time
}

// NewFsProbe is the registry Factory for "fsprobe".
func NewFsProbe(configFile string) (Generator, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("fsprobe: read config %s: %w", configFile, err)
	}
	var cfg FsProbeConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("fsprobe: parse config %s: %w", configFile, err)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &FsProbe{
		cfg:      cfg,
		backoff:  task.DefaultRetryPolicy(),
		failures: make(map[string]int),
		nextTry:  make(map[string]time.Time),
	}, nil
}

// Run pushes one probe Wire task per mount point every Interval until ctx
// is cancelled.
func (g *FsProbe) Run(ctx context.Context, taskQueue *queue.Queue[*task.Wire], resultQueue *queue.Queue[string]) error {
	log := logger.WithComponent("fsprobe")
	ticker := time.NewTicker(g.cfg.Interval)
	defer ticker.Stop()

	for {
		now := time.Now()
		for _, mount := range g.cfg.MountPoints {
			if until, backingOff := g.nextTry[mount]; backingOff && now.Before(until) {
				continue
			}

			if _, err := os.Stat(mount); err != nil {
				g.failures[mount]++
				delay := g.backoff.CalculateBackoff(g.failures[mount])
				g.nextTry[mount] = now.Add(delay)
				log.Warn().Err(err).Str("mount_point", mount).Dur("backoff", delay).
					Msg("mount point unavailable, backing off")
				continue
			}
			delete(g.failures, mount)
			delete(g.nextTry, mount)

			g.seq++
			tid := fmt.Sprintf("fsprobe-%s-%d", filepath.Base(mount), g.seq)

			body := probeBody{
				MountPoint: mount,
				Threshold:  g.cfg.MailThresh,
				LFSBin:     g.cfg.LFSBin,
				SMTPAddr:   g.cfg.SMTPAddr,
				MailFrom:   g.cfg.MailFrom,
				MailTo:     g.cfg.MailTo,
			}
			encoded, err := json.Marshal(body)
			if err != nil {
				log.Error().Err(err).Msg("failed to encode probe body")
				continue
			}

			w, err := task.NewWire(tid, encoded)
			if err != nil {
				log.Error().Err(err).Str("tid", tid).Msg("invalid probe tid")
				continue
			}
			taskQueue.Push(w)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// probeBody is the JSON wire shape a controller's DecodeProbeTask reconstructs.
type probeBody struct {
	MountPoint string        `json:"mount_point"`
	Threshold  time.Duration `json:"threshold"`
	LFSBin     string        `json:"lfs_bin"`
	SMTPAddr   string        `json:"smtp_addr"`
	MailFrom   string        `json:"mail_from"`
	MailTo     []string      `json:"mail_to"`
}

// DecodeProbeTask is the task.Decoder a controller configures when its
// master runs the "fsprobe" generator.
func DecodeProbeTask(raw []byte) (task.Executor, error) {
	var body probeBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("fsprobe: decode body: %w", err)
	}
	return &probeTask{body: body}, nil
}

type probeTask struct {
	body probeBody
}

// Execute writes then reads a throwaway file under the mount point,
// mirroring AlertIOTask.execute: an alert timer is armed before each I/O
// phase and cancelled as soon as it completes, so a mail only goes out
// when the phase itself overruns the threshold.
func (p *probeTask) Execute(ctx context.Context) error {
	filePath := filepath.Join(p.body.MountPoint, "cyclone_probe.tmp")
	defer os.Remove(filePath)

	mailer := &Mailer{Addr: p.body.SMTPAddr, From: p.body.MailFrom, To: p.body.MailTo}

	if p.body.LFSBin != "" {
		if err := exec.CommandContext(ctx, p.body.LFSBin, "setstripe",
			"--stripe-count", "1", filePath).Run(); err != nil {
			return fmt.Errorf("fsprobe: lfs setstripe: %w", err)
		}
	}

	if err := p.timedPhase("write", mailer, func() error {
		return os.WriteFile(filePath, make([]byte, 4096), 0644)
	}); err != nil {
		return err
	}

	return p.timedPhase("read", mailer, func() error {
		_, err := os.ReadFile(filePath)
		return err
	})
}

func (p *probeTask) timedPhase(phase string, mailer *Mailer, op func() error) error {
	timer := time.AfterFunc(p.body.Threshold, func() {
		subject := fmt.Sprintf("[cyclone] %s performance degradation on %s", phase, p.body.MountPoint)
		text := fmt.Sprintf("mount point: %s\nphase: %s\nthreshold: %s\n", p.body.MountPoint, phase, p.body.Threshold)
		if err := mailer.Send(subject, text); err != nil {
			logger.WithComponent("fsprobe").Warn().Err(err).Msg("failed to send alert mail")
		}
	})

	err := op()
	timer.Stop()
	return err
}
