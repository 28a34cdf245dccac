package gateway

import (
	"sync"

	"DPanel/logger"
)

type fanoutJob struct {
	conns   []*Conn
	payload []byte
}

// Fanout writes one payload to many connections on a small worker
// pool. Each write has its own failure boundary: a failing socket is
// logged and left for the liveness sweep, never force-closed here (a
// full send queue is backpressure, not proof of death).
type Fanout struct {
	jobs      chan fanoutJob
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewFanout(workers, queue int) *Fanout {
	if workers <= 0 {
		workers = 4
	}
	if queue <= 0 {
		queue = 1024
	}
	f := &Fanout{jobs: make(chan fanoutJob, queue)}
	f.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer f.wg.Done()
			for job := range f.jobs {
				for _, c := range job.conns {
					if !c.Transport.Writable() {
						continue
					}
					if err := c.Transport.Send(job.payload); err != nil {
						logger.Infof("[fanout] drop conn=%s user=%s: %v", c.ID, c.UserID, err)
					}
				}
			}
		}()
	}
	return f
}

func (f *Fanout) Broadcast(conns []*Conn, payload []byte) {
	if len(conns) == 0 || len(payload) == 0 {
		return
	}
	f.jobs <- fanoutJob{conns: conns, payload: payload}
}

// Close stops the workers after the queued jobs drain.
func (f *Fanout) Close() {
	f.closeOnce.Do(func() { close(f.jobs) })
	f.wg.Wait()
}
