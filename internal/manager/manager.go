package manager

import (
	"context"
	"edgeml/internal/acquisition"
	"edgeml/internal/channel"
	"edgeml/internal/drainer"
	"edgeml/internal/inference"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"time"
)

var ErrNotRunning = errors.New("pipeline not running")

// ChannelStatus is the fill state of one channel buffer
type ChannelStatus struct {
	Kind     string `json:"kind"`
	Width    int    `json:"width"`
	Samples  int    `json:"samples"`
	Capacity int    `json:"capacity"`
}

// Status is a point-in-time view of the pipeline
type Status struct {
	Running         bool              `json:"running"`
	Ready           bool              `json:"ready"`
	Faulted         bool              `json:"faulted"`
	ManuallyStopped bool              `json:"manually_stopped"`
	Engine          string            `json:"engine"`
	Classes         int               `json:"classes"`
	Channels        []ChannelStatus   `json:"channels"`
	Acquisition     acquisition.Stats `json:"acquisition"`
	Devices         []drainer.Stats   `json:"devices"`
	LastResult      *inference.Result `json:"last_result,omitempty"`
	Error           string            `json:"error,omitempty"`
}

type Manager interface {
	Start() error
	Stop() error
	Restart() error
	Running() bool
	ManuallyStopped() bool
	Faulted() bool
	Ready() bool
	Classify() (inference.Result, error)
	Channels() []channel.Channel
	Status() Status
	ListDev() ([]string, error)
	ProbeDev() ([]string, error)
}

const DefaultDaemonInterval = time.Second

// Daemon keeps m running until ctx is done: a faulted pipeline is restarted
// and a stopped one is started again unless it was stopped on purpose.
func Daemon(ctx context.Context, m Manager, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultDaemonInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if m.Faulted() {
			log.Infoln("status is faulted, restarting")
			if err := m.Restart(); err != nil {
				log.Errorln(err)
			}
		} else if !m.Running() && !m.ManuallyStopped() {
			if err := m.Start(); err != nil {
				log.Errorln(err)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
