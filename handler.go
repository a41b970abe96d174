package l2cap

import (
	"sync"
)

// Handler is a serialized execution context. Tasks posted to it run one at a
// time, on a single goroutine, in the order they were posted. The queue is
// unbounded so a task may post to its own handler.
type Handler struct {
	name string

	mu     sync.Mutex
	queue  []func()
	closed bool
	final  func()

	signal  chan struct{}
	done    chan struct{}
	stopped chan struct{}
}

// NewHandler starts a handler goroutine.
func NewHandler(name string) *Handler {
	h := &Handler{
		name:    name,
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Handler) Name() string { return h.name }

// Post queues fn. It returns false if the handler is closed, in which case fn
// will never run.
func (h *Handler) Post(fn func()) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.queue = append(h.queue, fn)
	h.mu.Unlock()

	select {
	case h.signal <- struct{}{}:
	default:
	}
	return true
}

// Call posts fn and waits for it to finish. It must not be called from a
// task running on h.
func (h *Handler) Call(fn func()) bool {
	ran := make(chan struct{})
	if !h.Post(func() {
		defer close(ran)
		fn()
	}) {
		return false
	}

	select {
	case <-ran:
		return true
	case <-h.stopped:
		// Close drains the queue before stopping, so fn has run.
		select {
		case <-ran:
			return true
		default:
			return false
		}
	}
}

// Sync waits until every task posted before it has run.
func (h *Handler) Sync() bool {
	return h.Call(func() {})
}

// Close rejects further posts, runs what is already queued and stops the
// handler goroutine. It must not be called from a task running on h.
func (h *Handler) Close() {
	h.CloseWith(nil)
}

// CloseWith is Close with fn run as the last task on h. Posting is already
// rejected when fn runs, so nothing can be queued behind it. fn is ignored if
// h is already closed.
func (h *Handler) CloseWith(fn func()) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		<-h.stopped
		return
	}
	h.closed = true
	h.final = fn
	h.mu.Unlock()

	close(h.done)
	<-h.stopped
}

func (h *Handler) loop() {
	defer close(h.stopped)

	for {
		select {
		case <-h.signal:
			h.runQueued()
		case <-h.done:
			h.runQueued()
			if h.final != nil {
				h.final()
			}
			return
		}
	}
}

func (h *Handler) runQueued() {
	for {
		h.mu.Lock()
		if len(h.queue) == 0 {
			h.mu.Unlock()
			return
		}
		fn := h.queue[0]
		h.queue[0] = nil
		h.queue = h.queue[1:]
		h.mu.Unlock()

		fn()
	}
}
