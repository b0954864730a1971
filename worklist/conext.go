package worklist

import "sync/atomic"
import "unsafe"

import "github.com/bnclabs/gopar/lib"
import "github.com/bnclabs/gopar/malloc"

// container shared per-package holder of published chunks. Push and
// pop are safe for any number of concurrent producers and consumers
// on the concurrent variants.
type container interface {
	push(tid int, c unsafe.Pointer) error
	pop(tid int) unsafe.Pointer
	empty() bool
	release(tid int)
}

// Constack is a Treiber stack of chunks linked through their
// intrusive next word. Push is a pure CAS. Pop runs its CAS loop
// under a lock that serializes readers of head.next, so a popped
// chunk cannot be recycled while another popper still holds its
// link.
type Constack struct {
	head unsafe.Pointer
	spin lib.Spinlock
}

func (s *Constack) push(tid int, c unsafe.Pointer) error {
	for {
		oh := atomic.LoadPointer(&s.head)
		atomic.StorePointer(chunknext(c), oh)
		if atomic.CompareAndSwapPointer(&s.head, oh, c) {
			return nil
		}
	}
}

func (s *Constack) pop(tid int) unsafe.Pointer {
	s.spin.Lock()
	for {
		oh := atomic.LoadPointer(&s.head)
		if oh == nil {
			s.spin.Unlock()
			return nil
		}
		nh := atomic.LoadPointer(chunknext(oh)) // the lock protects this read
		if atomic.CompareAndSwapPointer(&s.head, oh, nh) {
			s.spin.Unlock()
			return oh
		}
	}
}

func (s *Constack) empty() bool {
	return atomic.LoadPointer(&s.head) == nil
}

func (s *Constack) release(tid int) {
}

// qnode two-word node of the concurrent queue, allocated from the
// registry so node links stay outside the go heap.
type qnode struct {
	next  unsafe.Pointer
	chunk unsafe.Pointer
}

const qnodesize = int64(16)

// Conqueue is a two-lock FIFO of chunks with a sentinel node, after
// Michael and Scott. Producers serialize on the tail lock, consumers
// on the head lock, and the sentinel keeps them off each other's
// fields.
type Conqueue struct {
	nodes    *malloc.Fixed
	headspin lib.Spinlock
	head     unsafe.Pointer
	_        [40]byte // producers and consumers on separate lines
	tailspin lib.Spinlock
	tail     unsafe.Pointer
}

func newconqueue(nodes *malloc.Fixed, tid int) (*Conqueue, error) {
	sentinel, err := nodes.Allocptr(tid)
	if err != nil {
		return nil, err
	}
	nd := (*qnode)(sentinel)
	nd.next, nd.chunk = nil, nil
	return &Conqueue{nodes: nodes, head: sentinel, tail: sentinel}, nil
}

func (q *Conqueue) push(tid int, c unsafe.Pointer) error {
	ptr, err := q.nodes.Allocptr(tid)
	if err != nil {
		return err
	}
	nd := (*qnode)(ptr)
	atomic.StorePointer(&nd.next, nil)
	nd.chunk = c
	q.tailspin.Lock()
	atomic.StorePointer(&(*qnode)(q.tail).next, ptr)
	q.tail = ptr
	q.tailspin.Unlock()
	return nil
}

func (q *Conqueue) pop(tid int) unsafe.Pointer {
	q.headspin.Lock()
	sentinel := q.head
	first := atomic.LoadPointer(&(*qnode)(sentinel).next)
	if first == nil {
		q.headspin.Unlock()
		return nil
	}
	c := (*qnode)(first).chunk
	atomic.StorePointer(&q.head, first) // first is the new sentinel
	q.headspin.Unlock()
	q.nodes.Free(tid, sentinel)
	return c
}

func (q *Conqueue) empty() bool {
	head := atomic.LoadPointer(&q.head)
	if head == nil {
		return true
	}
	return atomic.LoadPointer(&(*qnode)(head).next) == nil
}

func (q *Conqueue) release(tid int) {
	q.headspin.Lock()
	q.tailspin.Lock()
	for nd := q.head; nd != nil; {
		next := (*qnode)(nd).next
		q.nodes.Free(tid, nd)
		nd = next
	}
	q.head, q.tail = nil, nil
	q.tailspin.Unlock()
	q.headspin.Unlock()
}

// seqstack non-concurrent LIFO, the shared container degenerates to
// this when the worklist is single threaded.
type seqstack struct {
	head unsafe.Pointer
}

func (s *seqstack) push(tid int, c unsafe.Pointer) error {
	*chunknext(c) = s.head
	s.head = c
	return nil
}

func (s *seqstack) pop(tid int) unsafe.Pointer {
	c := s.head
	if c == nil {
		return nil
	}
	s.head = *chunknext(c)
	return c
}

func (s *seqstack) empty() bool {
	return s.head == nil
}

func (s *seqstack) release(tid int) {
}

// seqqueue non-concurrent FIFO.
type seqqueue struct {
	head unsafe.Pointer
	tail unsafe.Pointer
}

func (q *seqqueue) push(tid int, c unsafe.Pointer) error {
	*chunknext(c) = nil
	if q.tail == nil {
		q.head, q.tail = c, c
		return nil
	}
	*chunknext(q.tail) = c
	q.tail = c
	return nil
}

func (q *seqqueue) pop(tid int) unsafe.Pointer {
	c := q.head
	if c == nil {
		return nil
	}
	q.head = *chunknext(c)
	if q.head == nil {
		q.tail = nil
	}
	return c
}

func (q *seqqueue) empty() bool {
	return q.head == nil
}

func (q *seqqueue) release(tid int) {
}
