package worklist

import "reflect"
import "sync/atomic"
import "unsafe"

import "github.com/bnclabs/gopar/api"
import "github.com/bnclabs/gopar/lib"
import "github.com/bnclabs/gopar/malloc"
import s "github.com/bnclabs/gosettings"

// record per-worker pair of chunk handles. `cur` is consumed, `next`
// is filled from the back and promoted to the shared container when
// full. Only the owning worker touches its record.
type record struct {
	cur  unsafe.Pointer
	next unsafe.Pointer
	_    [48]byte // keep records on separate cache lines
}

// Chunked worklist of tasks T. See Defaultsettings for the policy
// knobs.
type Chunked[T any] struct {
	nsteals int64  // atomic
	epoch   uint64 // atomic, bumped on every published chunk

	chunksize int64
	isstack   bool
	isfifoq   bool
	conc      bool

	alloc   *malloc.Fixed
	nodes   *malloc.Fixed
	records []record
	shared  []container
	pkgidx  []int
}

// New build a worklist over the sized-allocator registry for
// `nworkers` workers. `pkgof` maps a worker-id to its package,
// nil for a single package. The caller runs on worker `tid` zero.
func New[T any](reg *malloc.Registry, nworkers int, pkgof []int, setts s.Settings) (*Chunked[T], error) {
	chunksize := setts.Int64("chunksize")
	discipline := setts.String("discipline")
	distribution := setts.String("distribution")
	conc := setts.Bool("concurrent")

	if lib.Ispowerof2(chunksize) == false || chunksize > Maxchunksize {
		return nil, api.ErrorInvalidConfig
	} else if haspointers(reflect.TypeOf((*T)(nil)).Elem()) {
		return nil, api.ErrorInvalidConfig
	} else if nworkers < 1 {
		return nil, api.ErrorInvalidConfig
	}

	wl := &Chunked[T]{chunksize: chunksize, conc: conc}
	switch discipline {
	case "fifo":
		wl.isfifoq = true
	case "lifo":
		wl.isstack = true
	case "bag":
		wl.isstack, wl.isfifoq = true, true
	default:
		return nil, api.ErrorInvalidConfig
	}

	if conc == false {
		nworkers, pkgof = 1, nil
	}
	if pkgof == nil {
		pkgof = make([]int, nworkers)
	} else if len(pkgof) != nworkers {
		return nil, api.ErrorInvalidConfig
	}

	npkg := 1
	if distribution == "perpkg" {
		for _, pkg := range pkgof {
			if pkg < 0 {
				return nil, api.ErrorInvalidConfig
			} else if pkg+1 > npkg {
				npkg = pkg + 1
			}
		}
	} else if distribution != "global" {
		return nil, api.ErrorInvalidConfig
	}

	wl.records = make([]record, nworkers)
	wl.pkgidx = make([]int, nworkers)
	if distribution == "perpkg" {
		copy(wl.pkgidx, pkgof)
	}

	wl.alloc = reg.Fixedfor(0, footprint[T](chunksize))
	if wl.isfifoq {
		wl.nodes = reg.Fixedfor(0, qnodesize)
	}
	wl.shared = make([]container, npkg)
	for i := range wl.shared {
		q, err := wl.mkcontainer(0)
		if err != nil {
			return nil, err
		}
		wl.shared[i] = q
	}
	return wl, nil
}

func (wl *Chunked[T]) mkcontainer(tid int) (container, error) {
	switch {
	case wl.conc && wl.isfifoq:
		return newconqueue(wl.nodes, tid)
	case wl.conc:
		return &Constack{}, nil
	case wl.isfifoq:
		return &seqqueue{}, nil
	}
	return &seqstack{}, nil
}

func (wl *Chunked[T]) rec(tid int) *record {
	if wl.conc == false {
		tid = 0
	}
	return &wl.records[tid]
}

func (wl *Chunked[T]) idx(tid int) int {
	if wl.conc == false {
		return 0
	}
	return wl.pkgidx[tid]
}

func (wl *Chunked[T]) mkchunk(tid int) (unsafe.Pointer, error) {
	ptr, err := wl.alloc.Allocptr(tid)
	if err != nil {
		return nil, err
	}
	initchunk[T](ptr, wl.chunksize)
	return ptr, nil
}

func (wl *Chunked[T]) delchunk(tid int, c unsafe.Pointer) {
	wl.alloc.Free(tid, c)
}

func (wl *Chunked[T]) publish(tid int, c unsafe.Pointer) error {
	if err := wl.shared[wl.idx(tid)].push(tid, c); err != nil {
		return err
	}
	atomic.AddUint64(&wl.epoch, 1)
	return nil
}

// Push a task from worker `tid`. Fails only when the allocator runs
// out of memory.
func (wl *Chunked[T]) Push(tid int, v T) error {
	r := wl.rec(tid)
	if r.next != nil {
		if tochunk[T](r.next).ring.Pushback(v) {
			return nil
		}
		if err := wl.publish(tid, r.next); err != nil {
			return err
		}
		r.next = nil
	}
	c, err := wl.mkchunk(tid)
	if err != nil {
		return err
	}
	r.next = c
	tochunk[T](c).ring.Pushback(v)
	return nil
}

// Pushrange push a batch of tasks from worker `tid`.
func (wl *Chunked[T]) Pushrange(tid int, vs []T) error {
	for _, v := range vs {
		if err := wl.Push(tid, v); err != nil {
			return err
		}
	}
	return nil
}

// Pushinitial distribute the initial range, worker `tid` pushes its
// local slice. Every worker shall call this before popping.
func (wl *Chunked[T]) Pushinitial(tid int, all []T) error {
	n := len(wl.records)
	if wl.conc == false {
		tid = 0
	}
	lo, hi := tid*len(all)/n, (tid+1)*len(all)/n
	return wl.Pushrange(tid, all[lo:hi])
}

// stealchunk pop a chunk from the local package container, then scan
// the other packages in increasing id order from pkg+1, so steals
// stay deterministic under test.
func (wl *Chunked[T]) stealchunk(tid int) unsafe.Pointer {
	me, n := wl.idx(tid), len(wl.shared)
	if c := wl.shared[me].pop(tid); c != nil {
		return c
	}
	for i := 1; i < n; i++ {
		if c := wl.shared[(me+i)%n].pop(tid); c != nil {
			atomic.AddInt64(&wl.nsteals, 1)
			return c
		}
	}
	return nil
}

// readyfifo position r.cur on a non-empty chunk, consuming exhausted
// chunks and falling back to the unpublished next chunk last.
func (wl *Chunked[T]) readyfifo(tid int) *chunk[T] {
	r := wl.rec(tid)
	for {
		if r.cur != nil {
			c := tochunk[T](r.cur)
			if c.ring.Empty() == false {
				return c
			}
			wl.delchunk(tid, r.cur)
			r.cur = nil
		}
		r.cur = wl.stealchunk(tid)
		if r.cur == nil {
			r.cur, r.next = r.next, nil
			if r.cur == nil {
				return nil
			}
		}
	}
}

// readystack position r.next on a non-empty chunk.
func (wl *Chunked[T]) readystack(tid int) *chunk[T] {
	r := wl.rec(tid)
	for {
		if r.next != nil {
			c := tochunk[T](r.next)
			if c.ring.Empty() == false {
				return c
			}
			wl.delchunk(tid, r.next)
			r.next = nil
		}
		r.next = wl.stealchunk(tid)
		if r.next == nil {
			return nil
		}
	}
}

// Pop a task for worker `tid`. False means no task was obtainable
// at this instant, the caller shall Flush and consult termination
// detection before retrying.
func (wl *Chunked[T]) Pop(tid int) (v T, ok bool) {
	if wl.isstack {
		if c := wl.readystack(tid); c != nil {
			return c.ring.Popback()
		}
		return v, false
	}
	if c := wl.readyfifo(tid); c != nil {
		return c.ring.Popfront()
	}
	return v, false
}

// Peek pointer to the task the next Pop returns, nil when none. For
// runtime internal use, the address is not safe under concurrent
// pops of the same chunk.
func (wl *Chunked[T]) Peek(tid int) *T {
	if wl.isstack {
		if c := wl.readystack(tid); c != nil {
			return c.ring.Back()
		}
		return nil
	}
	if c := wl.readyfifo(tid); c != nil {
		return c.ring.Front()
	}
	return nil
}

// Poppeeked drop the task returned by the preceding Peek.
func (wl *Chunked[T]) Poppeeked(tid int) {
	r := wl.rec(tid)
	if wl.isstack {
		tochunk[T](r.next).ring.Popback()
		return
	}
	tochunk[T](r.cur).ring.Popfront()
}

// Flush publish worker `tid`'s in-flight next chunk so other workers
// can observe it. Shall be called at synchronization points before
// termination detection. Reports whether a chunk was published.
func (wl *Chunked[T]) Flush(tid int) (bool, error) {
	r := wl.rec(tid)
	if r.next == nil {
		return false, nil
	}
	if tochunk[T](r.next).ring.Empty() {
		wl.delchunk(tid, r.next)
		r.next = nil
		return false, nil
	}
	err := wl.publish(tid, r.next)
	r.next = nil
	return err == nil, err
}

// Epoch count of chunks published so far, the termination detector's
// work-claimed signal.
func (wl *Chunked[T]) Epoch() uint64 {
	return atomic.LoadUint64(&wl.epoch)
}

// Quiet report whether no published chunk is visible in any shared
// container. With every worker record drained this is the worklist
// empty condition the termination detector confirms against.
func (wl *Chunked[T]) Quiet() bool {
	for _, q := range wl.shared {
		if q.empty() == false {
			return false
		}
	}
	return true
}

// Steals count of chunks taken from a remote package.
func (wl *Chunked[T]) Steals() int64 {
	return atomic.LoadInt64(&wl.nsteals)
}

// Release every chunk still reachable, full and empty, back to the
// allocator. Shall not race with worklist operations.
func (wl *Chunked[T]) Release(tid int) {
	for i := range wl.records {
		// free each record's leftovers into its own worker's slot,
		// so repeated iterations keep per-worker freelists balanced.
		r := &wl.records[i]
		if r.cur != nil {
			wl.delchunk(i, r.cur)
			r.cur = nil
		}
		if r.next != nil {
			wl.delchunk(i, r.next)
			r.next = nil
		}
	}
	for _, q := range wl.shared {
		for c := q.pop(tid); c != nil; c = q.pop(tid) {
			wl.delchunk(tid, c)
		}
		q.release(tid)
	}
}

// NewChunkedFIFO global FIFO of chunks.
func NewChunkedFIFO[T any](reg *malloc.Registry, nworkers int, chunksize int64) (*Chunked[T], error) {
	setts := Defaultsettings().Mixin(s.Settings{
		"chunksize": chunksize, "discipline": "fifo", "distribution": "global",
	})
	return New[T](reg, nworkers, nil, setts)
}

// NewChunkedLIFO global LIFO of chunks.
func NewChunkedLIFO[T any](reg *malloc.Registry, nworkers int, chunksize int64) (*Chunked[T], error) {
	setts := Defaultsettings().Mixin(s.Settings{
		"chunksize": chunksize, "discipline": "lifo", "distribution": "global",
	})
	return New[T](reg, nworkers, nil, setts)
}

// NewdChunkedFIFO distributed FIFO, a more scalable variant keeping
// one container per package.
func NewdChunkedFIFO[T any](reg *malloc.Registry, nworkers int, pkgof []int, chunksize int64) (*Chunked[T], error) {
	setts := Defaultsettings().Mixin(s.Settings{
		"chunksize": chunksize, "discipline": "fifo", "distribution": "perpkg",
	})
	return New[T](reg, nworkers, pkgof, setts)
}

// NewdChunkedLIFO distributed LIFO.
func NewdChunkedLIFO[T any](reg *malloc.Registry, nworkers int, pkgof []int, chunksize int64) (*Chunked[T], error) {
	setts := Defaultsettings().Mixin(s.Settings{
		"chunksize": chunksize, "discipline": "lifo", "distribution": "perpkg",
	})
	return New[T](reg, nworkers, pkgof, setts)
}

// NewdChunkedBag distributed bag, scalable and resource efficient
// when the application is agnostic to scheduling order.
func NewdChunkedBag[T any](reg *malloc.Registry, nworkers int, pkgof []int, chunksize int64) (*Chunked[T], error) {
	setts := Defaultsettings().Mixin(s.Settings{
		"chunksize": chunksize, "discipline": "bag", "distribution": "perpkg",
	})
	return New[T](reg, nworkers, pkgof, setts)
}
