package exec

import "sync/atomic"
import "time"

import humanize "github.com/dustin/go-humanize"

import "github.com/bnclabs/gopar/api"
import "github.com/bnclabs/gopar/lib"
import "github.com/bnclabs/gopar/worklist"
import s "github.com/bnclabs/gosettings"

// Operator user function invoked once per task. Returning an error
// cancels the iteration, the first error wins and surfaces from
// ForEach after the worklist drains.
type Operator[T any] func(v T, ctx *Ctx[T]) error

// Ctx hands an operator its worker identity and a way back into the
// worklist it is being driven from.
type Ctx[T any] struct {
	tid int
	pkg int
	wl  *worklist.Chunked[T]
	st  *itstate
}

// Tid logical worker-id of the executing worker.
func (ctx *Ctx[T]) Tid() int {
	return ctx.tid
}

// Pkg package hosting the executing worker.
func (ctx *Ctx[T]) Pkg() int {
	return ctx.pkg
}

// Push emit a new task into the running iteration. Safe from any
// operator, fails only on allocator out-of-memory, which cancels
// the iteration.
func (ctx *Ctx[T]) Push(v T) error {
	if err := ctx.wl.Push(ctx.tid, v); err != nil {
		ctx.st.fail(err)
		return err
	}
	return nil
}

// Pushrange emit a batch of new tasks.
func (ctx *Ctx[T]) Pushrange(vs []T) error {
	for _, v := range vs {
		if err := ctx.Push(v); err != nil {
			return err
		}
	}
	return nil
}

// Abort cancel the iteration cooperatively. In-flight operator calls
// complete, no further task is started, ForEach returns
// api.ErrorAborted.
func (ctx *Ctx[T]) Abort() {
	ctx.st.fail(api.ErrorAborted)
}

// itstate shared cancellation and first-error state of one
// iteration. Once drain flips, pops stop and termination detection
// winds the workers down.
type itstate struct {
	drain   uint32
	errspin lib.Spinlock
	err     error
}

func (st *itstate) fail(err error) {
	st.errspin.Lock()
	if st.err == nil {
		st.err = err
	}
	st.errspin.Unlock()
	atomic.StoreUint32(&st.drain, 1)
}

func (st *itstate) draining() bool {
	return atomic.LoadUint32(&st.drain) == 1
}

func (st *itstate) first() error {
	st.errspin.Lock()
	err := st.err
	st.errspin.Unlock()
	return err
}

// Stats aggregate outcome of one iteration.
type Stats struct {
	Tasks   int64         // operator invocations
	Steals  int64         // chunks taken from a remote package
	Pages   int64         // pages owned by the engine's page source
	Elapsed time.Duration // wall clock of the iteration
}

// padcount per-worker task counter on its own cache line.
type padcount struct {
	n int64
	_ [56]byte
}

// ForEach drive `op` over `initial` and everything it pushes, to
// quiescence. Worklist policy comes from `setts` over
// worklist.Defaultsettings. Workers split the initial range, cross a
// barrier so every worker sees all initial work, then pop until the
// termination detector declares the iteration over.
func ForEach[T any](e *Engine, initial []T, op Operator[T], setts s.Settings) (Stats, error) {
	if atomic.LoadUint32(&e.closed) == 1 {
		return Stats{}, ErrorClosed
	}
	begin := time.Now()
	wsetts := worklist.Defaultsettings().Mixin(setts)
	wl, err := worklist.New[T](e.registry, e.nworkers, e.pkgof, wsetts)
	if err != nil {
		return Stats{}, err
	}

	st := &itstate{}
	td := newdetector(e.nworkers, wl.Epoch, wl.Quiet, st.draining)
	counts := make([]padcount, e.nworkers)
	steals0 := wl.Steals()

	e.runmu.Lock()
	e.run(func(tid int) {
		ctx := &Ctx[T]{tid: tid, pkg: e.pkgof[tid], wl: wl, st: st}
		if err := wl.Pushinitial(tid, initial); err != nil {
			st.fail(err)
		}
		e.barrier.wait()
		for {
			var v T
			ok := false
			if st.draining() == false {
				v, ok = wl.Pop(tid)
			}
			if ok {
				if st.draining() {
					continue
				}
				counts[tid].n++
				if err := op(v, ctx); err != nil {
					st.fail(err)
				}
				continue
			}
			if _, err := wl.Flush(tid); err != nil {
				st.fail(err)
			}
			if td.idle() {
				break
			}
		}
	})
	e.runmu.Unlock()
	wl.Release(0)

	var av lib.AverageInt64
	total := int64(0)
	for i := range counts {
		av.Add(counts[i].n)
		total += counts[i].n
	}
	stats := Stats{
		Tasks:   total,
		Steals:  wl.Steals() - steals0,
		Pages:   e.pages.Allocated(),
		Elapsed: time.Since(begin),
	}
	infof("exec: %v tasks in %v, %v steals, per-worker %v/%v/%v, heap %v\n",
		stats.Tasks, stats.Elapsed, stats.Steals,
		av.Min(), av.Mean(), av.Max(),
		humanize.Bytes(uint64(stats.Pages*e.pages.Pagesize())))
	if err := st.first(); err != nil {
		return stats, err
	}
	return stats, nil
}
