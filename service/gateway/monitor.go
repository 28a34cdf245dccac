package gateway

import (
	"sync"
	"time"

	"DPanel/logger"
)

// Monitor runs the fixed-interval liveness sweep: evict connections
// silent for longer than the timeout, ping the rest. Outbound pings do
// not refresh LastSeen; only inbound traffic does, so a mute peer is
// still evicted on the sweep after the timeout elapses.
type Monitor struct {
	reg      *Registry
	interval time.Duration
	timeout  time.Duration
	clock    func() time.Time
	evict    func(c *Conn)
	refresh  func(c *Conn) // optional, runs for each alive writable conn

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
}

func NewMonitor(reg *Registry, interval, timeout time.Duration, clock func() time.Time, evict, refresh func(*Conn)) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if timeout < 2*interval {
		// a shorter timeout would false-positive between sweeps
		timeout = 2 * interval
	}
	if clock == nil {
		clock = time.Now
	}
	return &Monitor{
		reg:      reg,
		interval: interval,
		timeout:  timeout,
		clock:    clock,
		evict:    evict,
		refresh:  refresh,
		stopCh:   make(chan struct{}),
	}
}

func (m *Monitor) Start() {
	m.startOnce.Do(func() {
		go m.loop()
	})
}

// Stop is safe before Start and safe to call twice.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Monitor) loop() {
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-t.C:
			m.SweepOnce()
		}
	}
}

// SweepOnce does one pass. Exported so tests can drive sweeps off an
// injected clock instead of waiting out real intervals.
func (m *Monitor) SweepOnce() {
	now := m.clock()
	expired, alive := m.reg.splitIdle(now, m.timeout)

	for _, c := range expired {
		logger.Infof("[liveness] evict conn=%s user=%s idle>%s", c.ID, c.UserID, m.timeout)
		m.evict(c)
	}

	ping := BuildPing()
	for _, c := range alive {
		if !c.Transport.Writable() {
			continue
		}
		if err := c.Transport.Send(ping); err != nil {
			logger.Infof("[liveness] ping err conn=%s: %v", c.ID, err)
		}
		if m.refresh != nil {
			m.refresh(c)
		}
	}
}
