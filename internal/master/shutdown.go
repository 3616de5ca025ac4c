package master

import (
	"context"
	"time"

	"github.com/gabrieleiannetti/cyclone/internal/logger"
)

const generatorShutdownTimeout = 10 * time.Second

// Shutdown drives the ordered termination sequence once Run has returned:
// signal the task generator, wait for it to finish (or hard-timeout), and
// report the exit status the process should use.
func (m *Master) Shutdown() int {
	log := logger.WithComponent("master_shutdown")

	if m.genRunner != nil {
		m.genRunner.Stop()
		select {
		case <-m.genRunner.Done():
		case <-time.After(generatorShutdownTimeout):
			log.Warn().Msg("task generator did not exit within 10s of being signalled")
		}
	}

	if err := m.comm.Close(); err != nil {
		log.Warn().Err(err).Msg("error closing comm endpoint")
	}

	count := m.ErrorCount()
	if count > 0 {
		log.Error().Int("error_count", count).Msg("exiting with errors")
		return 1
	}
	log.Info().Msg("clean shutdown")
	return 0
}

// WatchSignals calls StopDistribution whenever ctx's parent signal context
// is cancelled, letting the caller wire os/signal.NotifyContext straight
// into the dispatch loop without the loop itself knowing about signals.
func WatchSignals(ctx context.Context, m *Master) {
	go func() {
		<-ctx.Done()
		m.StopDistribution()
	}()
}
