package exec

import "runtime"
import "sync/atomic"

// detector two phase termination detection over atomic counters.
// Every worker starts active. A worker whose pop comes up empty,
// after flushing its record, calls idle: it decrements the active
// count and re-arms when the worklist's publish epoch moves. The
// iteration is over exactly when the count hits zero with no chunk
// published since the idler's snapshot and no chunk visible in any
// shared container.
type detector struct {
	active   int64
	done     uint32
	epoch    func() uint64
	quiet    func() bool
	draining func() bool
}

func newdetector(
	nworkers int, epoch func() uint64, quiet, draining func() bool) *detector {

	return &detector{
		active: int64(nworkers), epoch: epoch, quiet: quiet, draining: draining,
	}
}

const idlerounds = 1024

// idle transition the calling worker to probing. True means global
// quiescence was declared and the worker shall exit. False means the
// worker re-armed and shall retry its pop.
func (td *detector) idle() bool {
	e0 := td.epoch()
	if atomic.AddInt64(&td.active, -1) == 0 {
		// under drain nothing left matters, quiescence is immediate.
		if td.draining() || (td.quiet() && td.epoch() == e0) {
			atomic.StoreUint32(&td.done, 1)
			return true
		}
		// something is still visible or in flight, grab it.
		atomic.AddInt64(&td.active, 1)
		return false
	}
	delay := 1
	for round := 0; round < idlerounds; round++ {
		if atomic.LoadUint32(&td.done) == 1 {
			return true
		}
		if td.epoch() != e0 {
			atomic.AddInt64(&td.active, 1)
			return false
		}
		if atomic.LoadInt64(&td.active) == 0 {
			// the decisive idler is re-checking, stay parked.
			runtime.Gosched()
			continue
		}
		for i := 0; i < delay; i++ {
		}
		if delay < 1<<10 {
			delay <<= 1
		} else {
			runtime.Gosched()
		}
	}
	// budget exhausted, re-arm and probe the worklist again.
	atomic.AddInt64(&td.active, 1)
	return false
}

// terminated report whether quiescence was declared.
func (td *detector) terminated() bool {
	return atomic.LoadUint32(&td.done) == 1
}
