package exec

import "runtime"
import "strconv"
import "sync"
import "sync/atomic"

import "github.com/bnclabs/gopar/api"
import "github.com/bnclabs/gopar/lib"
import "github.com/bnclabs/gopar/malloc"
import s "github.com/bnclabs/gosettings"

// Engine a set of worker threads pinned one to a core, with the
// page source and sized-allocator registry they share. Workers spin
// up at construction and park between iterations.
type Engine struct {
	nworkers int
	affinity []int
	pkgof    []int
	npkg     int

	pages    *malloc.Pages
	registry *malloc.Registry
	scratch  *malloc.Variable

	jobch  []chan func(int)
	jobwg  sync.WaitGroup
	runmu  sync.Mutex
	closed uint32

	tidspin lib.Spinlock
	tids    map[int]int

	barrier *barrier
}

// NewEngine spin up and pin workers per `setts`, see
// Defaultsettings.
func NewEngine(setts s.Settings) (*Engine, error) {
	setts = Defaultsettings().Mixin(setts)
	nworkers := int(setts.Int64("numworkers"))
	if nworkers < 1 {
		return nil, api.ErrorInvalidConfig
	}
	affinity := make([]int, 0, nworkers)
	if csv := setts.String("affinity"); csv != "" {
		for _, item := range lib.Parsecsv(csv) {
			cpu, err := strconv.Atoi(item)
			if err != nil || cpu < 0 {
				return nil, api.ErrorInvalidConfig
			}
			affinity = append(affinity, cpu)
		}
		if len(affinity) != nworkers {
			return nil, api.ErrorInvalidConfig
		}
	} else {
		ncpu := runtime.NumCPU()
		for tid := 0; tid < nworkers; tid++ {
			affinity = append(affinity, tid%ncpu)
		}
	}
	pkgof, npkg := packagemap(affinity)

	// prealloc runs per worker after the pool is up, see below.
	prealloc := setts.Int64("page.prealloc")
	pages := malloc.NewPages(nworkers, setts.Mixin(s.Settings{
		"page.prealloc": int64(0),
	}))
	e := &Engine{
		nworkers: nworkers,
		affinity: affinity,
		pkgof:    pkgof,
		npkg:     npkg,
		pages:    pages,
		registry: malloc.NewRegistry(pages, nworkers),
		jobch:    make([]chan func(int), nworkers),
		tids:     make(map[int]int),
		barrier:  newbarrier(nworkers),
	}
	e.scratch = malloc.NewVariable(pages, nworkers)

	var startwg sync.WaitGroup
	startwg.Add(nworkers)
	for tid := 0; tid < nworkers; tid++ {
		e.jobch[tid] = make(chan func(int), 1)
		go e.worker(tid, &startwg)
	}
	startwg.Wait()
	if prealloc > 0 {
		// populate every worker's share of the page freelist from
		// its own thread, so first-touch lands on the right node.
		e.runmu.Lock()
		e.run(func(tid int) {
			if err := pages.Prealloc(prealloc, tid); err != nil {
				warnf("exec: worker %v prealloc: %v\n", tid, err)
			}
		})
		e.runmu.Unlock()
	}
	infof("exec: engine started with %v workers over %v packages\n",
		nworkers, npkg)
	return e, nil
}

func (e *Engine) worker(tid int, startwg *sync.WaitGroup) {
	runtime.LockOSThread()
	if err := pincpu(e.affinity[tid]); err != nil {
		warnf("exec: worker %v pin to cpu %v: %v\n", tid, e.affinity[tid], err)
	}
	if id := ostid(); id >= 0 {
		e.tidspin.Lock()
		e.tids[id] = tid
		e.tidspin.Unlock()
	}
	startwg.Done()
	for job := range e.jobch[tid] {
		job(tid)
		e.jobwg.Done()
	}
}

// run a job on every worker and wait for all of them. Iterations on
// one engine are serialized by the caller holding runmu.
func (e *Engine) run(job func(int)) {
	e.jobwg.Add(e.nworkers)
	for _, ch := range e.jobch {
		ch <- job
	}
	e.jobwg.Wait()
}

// Numworkers workers owned by this engine.
func (e *Engine) Numworkers() int {
	return e.nworkers
}

// Numpackages distinct NUMA locality groups hosting workers.
func (e *Engine) Numpackages() int {
	return e.npkg
}

// Packageof the package hosting worker `tid`.
func (e *Engine) Packageof(tid int) int {
	return e.pkgof[tid]
}

// Registry the engine's sized-allocator registry.
func (e *Engine) Registry() *malloc.Registry {
	return e.registry
}

// Pages the engine's page source.
func (e *Engine) Pages() *malloc.Pages {
	return e.pages
}

// Scratch the engine's variable-size allocator, for operator scratch
// memory reclaimed wholesale when the engine is closed.
func (e *Engine) Scratch() *malloc.Variable {
	return e.scratch
}

// Workerid the logical worker-id of the calling thread, -1 when the
// caller is not an engine worker. Operators receive their id through
// the context, this lookup serves code far from the operator.
func (e *Engine) Workerid() int {
	id := ostid()
	if id < 0 {
		return -1
	}
	e.tidspin.Lock()
	tid, ok := e.tids[id]
	e.tidspin.Unlock()
	if !ok {
		return -1
	}
	return tid
}

// Close park and release the workers, the scratch allocator and
// every page. Iterations shall have completed.
func (e *Engine) Close() {
	if atomic.CompareAndSwapUint32(&e.closed, 0, 1) == false {
		return
	}
	e.runmu.Lock()
	for _, ch := range e.jobch {
		close(ch)
	}
	e.runmu.Unlock()
	e.scratch.Clear()
	e.registry.Clear()
	e.pages.Release()
	infof("exec: engine closed\n")
}

// barrier sense reversing barrier, workers cross it together between
// the initial distribution and the pop loop.
type barrier struct {
	n     int32
	count int32
	gen   uint32
}

func newbarrier(n int) *barrier {
	return &barrier{n: int32(n)}
}

func (b *barrier) wait() {
	gen := atomic.LoadUint32(&b.gen)
	if atomic.AddInt32(&b.count, 1) == b.n {
		atomic.StoreInt32(&b.count, 0)
		atomic.AddUint32(&b.gen, 1)
		return
	}
	for atomic.LoadUint32(&b.gen) == gen {
		runtime.Gosched()
	}
}
