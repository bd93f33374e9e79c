package pipeline

import (
	"context"
	"edgeml/internal/acquisition"
	"edgeml/internal/channel"
	"edgeml/internal/config"
	"edgeml/internal/frame"
	"edgeml/internal/inference"
	"edgeml/internal/manager"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"sync"
)

type pipelineManager struct {
	opt    *config.EdgeMLOpt
	engine inference.Engine

	lock            sync.RWMutex
	frame           *frame.Frame
	adapter         *inference.Adapter
	devices         *deviceSet
	scheduler       *acquisition.Scheduler
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	manuallyStopped bool
	lastErr         error

	resultLock sync.Mutex
	lastResult *inference.Result
}

func NewManager(opt *config.EdgeMLOpt, engine inference.Engine) manager.Manager {
	return &pipelineManager{
		opt:    opt,
		engine: engine,
	}
}

// Start initializes the engine, builds the frame and devices, and starts the
// acquisition loop. When the engine is not ready nothing is started.
func (m *pipelineManager) Start() error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.scheduler != nil {
		return nil
	}
	if m.engine == nil {
		m.lastErr = inference.ErrEngineNotReady
		return m.lastErr
	}

	f, err := inference.Setup(m.engine)
	if err != nil {
		m.lastErr = err
		return err
	}

	kinds := make([]channel.Kind, 0, len(f.Channels()))
	for _, ch := range f.Channels() {
		kinds = append(kinds, ch.Kind)
	}
	devices, err := openDevices(m.opt, kinds)
	if err != nil {
		m.lastErr = err
		return err
	}

	acq := &m.opt.Acquisition
	sched := acquisition.New(f, devices.drainers,
		acquisition.WithPeriod(acq.Period()),
		acquisition.WithPriority(acq.Priority),
		acquisition.WithDiagInterval(acq.DiagInterval()),
	)

	m.frame = f
	m.adapter = inference.NewAdapter(m.engine, f)
	m.devices = devices
	m.scheduler = sched
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.manuallyStopped = false
	m.lastErr = nil

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_ = sched.Run(m.ctx)
	}()
	log.Infof("manager started")
	return nil
}

// Stop stops acquisition and releases the devices
func (m *pipelineManager) Stop() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.manuallyStopped = true
	return m.stopLocked()
}

func (m *pipelineManager) stopLocked() error {
	if m.scheduler == nil {
		return nil
	}
	m.cancel()
	m.wg.Wait()
	err := m.devices.Close()

	m.scheduler = nil
	m.devices = nil
	m.adapter = nil
	m.frame = nil
	m.resultLock.Lock()
	m.lastResult = nil
	m.resultLock.Unlock()
	log.Infof("manager stopped")
	return err
}

// Restart restarts the pipeline
func (m *pipelineManager) Restart() error {
	m.lock.Lock()
	err := m.stopLocked()
	m.lock.Unlock()
	if err != nil {
		log.Warnf("restart: %v", err)
	}
	return m.Start()
}

func (m *pipelineManager) Running() bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.scheduler != nil
}

func (m *pipelineManager) ManuallyStopped() bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.manuallyStopped
}

// Ready reports whether the engine is initialized and its frame is live
func (m *pipelineManager) Ready() bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.adapter != nil
}

// Faulted reports a device whose consecutive failed ticks reached the
// configured threshold
func (m *pipelineManager) Faulted() bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	threshold := uint64(m.opt.Acquisition.FaultThreshold)
	if m.scheduler == nil || threshold == 0 {
		return false
	}
	for _, d := range m.scheduler.Drainers() {
		if d.Stats().ConsecutiveFaults >= threshold {
			return true
		}
	}
	return false
}

// Classify runs one classification over the current frame
func (m *pipelineManager) Classify() (inference.Result, error) {
	m.lock.RLock()
	adapter := m.adapter
	m.lock.RUnlock()
	if adapter == nil {
		m.lock.RLock()
		err := m.lastErr
		m.lock.RUnlock()
		if err != nil && errors.Is(err, inference.ErrEngineNotReady) {
			return inference.Result{}, err
		}
		return inference.Result{}, manager.ErrNotRunning
	}

	res, err := adapter.Classify()
	if err != nil {
		return res, err
	}
	m.resultLock.Lock()
	m.lastResult = &res
	m.resultLock.Unlock()
	return res, nil
}

func (m *pipelineManager) Channels() []channel.Channel {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.frame == nil {
		return nil
	}
	return m.frame.Channels()
}

func (m *pipelineManager) Status() manager.Status {
	m.lock.RLock()
	defer m.lock.RUnlock()

	st := manager.Status{
		Running:         m.scheduler != nil,
		Ready:           m.adapter != nil,
		ManuallyStopped: m.manuallyStopped,
	}
	if m.engine != nil {
		st.Engine = m.engine.Name()
	}
	if m.lastErr != nil {
		st.Error = m.lastErr.Error()
	}
	if m.frame != nil {
		st.Classes = m.frame.ClassCount()
		for _, ch := range m.frame.Channels() {
			buf, _ := m.frame.Buffer(ch.Kind)
			st.Channels = append(st.Channels, manager.ChannelStatus{
				Kind:     ch.Kind.String(),
				Width:    ch.Width,
				Samples:  buf.Samples(),
				Capacity: buf.Cap() / ch.Width,
			})
		}
	}
	if m.scheduler != nil {
		st.Acquisition = m.scheduler.Stats()
		threshold := uint64(m.opt.Acquisition.FaultThreshold)
		for _, d := range m.scheduler.Drainers() {
			ds := d.Stats()
			st.Devices = append(st.Devices, ds)
			if threshold > 0 && ds.ConsecutiveFaults >= threshold {
				st.Faulted = true
			}
		}
	}
	m.resultLock.Lock()
	if m.lastResult != nil {
		res := *m.lastResult
		st.LastResult = &res
	}
	m.resultLock.Unlock()
	return st
}

// ListDev returns the names of the running devices
func (m *pipelineManager) ListDev() ([]string, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.devices == nil {
		return nil, manager.ErrNotRunning
	}
	res := make([]string, len(m.devices.devices))
	for i, d := range m.devices.devices {
		res[i] = d.Name()
	}
	return res, nil
}

// ProbeDev checks the identity registers of the configured bus devices
func (m *pipelineManager) ProbeDev() ([]string, error) {
	return probeDevices(m.opt)
}
